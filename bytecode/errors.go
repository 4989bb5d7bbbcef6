package bytecode

import (
	"fmt"
	"strings"
)

// ErrorKind categorizes a runtime error for typed catch handlers.
// The kind participates only in handler matching; rendering goes
// through the natural-language description and never shows the kind
// as a bracketed marker.
type ErrorKind byte

const (
	// KindRuntime covers general runtime errors (index out of bounds,
	// bad dictionary key, arity problems surfaced at runtime).
	KindRuntime ErrorKind = iota
	KindType
	KindMath
	KindFile
	KindJson
	KindNetwork
	KindValidation
	KindStackOverflow
	KindUndefined
	// KindCustom carries a user-chosen name in ErrorValue.Name.
	KindCustom
)

// TypeString returns the matching name for a built-in kind, e.g.
// "MathError". Custom kinds match on ErrorValue.Name instead.
func (k ErrorKind) TypeString() string {
	switch k {
	case KindRuntime:
		return "RuntimeError"
	case KindType:
		return "TypeError"
	case KindMath:
		return "MathError"
	case KindFile:
		return "FileError"
	case KindJson:
		return "JsonError"
	case KindNetwork:
		return "NetworkError"
	case KindValidation:
		return "ValidationError"
	case KindStackOverflow:
		return "StackOverflowError"
	case KindUndefined:
		return "UndefinedReferenceError"
	default:
		return "Error"
	}
}

// Description returns the natural English description used when the
// error is rendered for a person.
func (k ErrorKind) Description() string {
	switch k {
	case KindRuntime:
		return "a runtime error"
	case KindType:
		return "a type error"
	case KindMath:
		return "a math error"
	case KindFile:
		return "a file error"
	case KindJson:
		return "a JSON error"
	case KindNetwork:
		return "a network error"
	case KindValidation:
		return "a validation error"
	case KindStackOverflow:
		return "a stack overflow error"
	case KindUndefined:
		return "an undefined reference error"
	default:
		return "an error"
	}
}

// KindFromString maps a type name to a built-in kind, falling back to
// KindCustom. Matching is case-insensitive; custom names keep their
// original casing in ErrorValue.Name.
func KindFromString(s string) (ErrorKind, string) {
	switch strings.ToLower(s) {
	case "runtimeerror":
		return KindRuntime, ""
	case "typeerror":
		return KindType, ""
	case "matherror":
		return KindMath, ""
	case "fileerror":
		return KindFile, ""
	case "jsonerror":
		return KindJson, ""
	case "networkerror":
		return KindNetwork, ""
	case "validationerror":
		return KindValidation, ""
	case "stackoverflowerror":
		return KindStackOverflow, ""
	case "undefinedreferenceerror":
		return KindUndefined, ""
	default:
		return KindCustom, s
	}
}

// TraceFrame is one call-stack entry captured when an error is raised.
type TraceFrame struct {
	Function    string
	Instruction int
}

// ErrorValue is a raised runtime error: a kind (or custom name), a
// message, and the call stack captured at the raise site. It is a
// first-class value: handlers bind it to a variable and programs can
// print or re-raise it.
type ErrorValue struct {
	Kind    ErrorKind
	Name    string // set only for KindCustom
	Message string
	Trace   []TraceFrame
}

// NewError creates an error of a built-in kind.
func NewError(kind ErrorKind, format string, args ...any) *ErrorValue {
	return &ErrorValue{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewCustomError creates an error with a user-defined type name.
func NewCustomError(name, message string) *ErrorValue {
	return &ErrorValue{Kind: KindCustom, Name: name, Message: message}
}

// typeString returns the name this error matches against.
func (e *ErrorValue) typeString() string {
	if e.Kind == KindCustom {
		return e.Name
	}
	return e.Kind.TypeString()
}

// Matches reports whether a handler's type filter accepts this error.
// The empty filter is the untyped catch-all. Comparison is
// case-insensitive.
func (e *ErrorValue) Matches(filter string) bool {
	if filter == "" {
		return true
	}
	return strings.EqualFold(e.typeString(), filter)
}

// Render is the value projection of the error, shown when the error
// value itself is printed or inspected.
func (e *ErrorValue) Render() string {
	if e.Kind == KindCustom {
		return fmt.Sprintf("%s occurred: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("%s occurred: %s", e.Kind.Description(), e.Message)
}

// RenderUncaught is the host-facing rendering used when the error
// escapes the program, including the captured call stack.
func (e *ErrorValue) RenderUncaught() string {
	var sb strings.Builder
	if e.Kind == KindCustom {
		fmt.Fprintf(&sb, "%s occurred: %s", e.Name, e.Message)
	} else {
		fmt.Fprintf(&sb, "Error occurred: %s - %s", e.Kind.Description(), e.Message)
	}
	if len(e.Trace) > 0 {
		sb.WriteString("\nCall stack:")
		for _, f := range e.Trace {
			fmt.Fprintf(&sb, "\n  in %s at instruction %d", f.Function, f.Instruction)
		}
	}
	return sb.String()
}

// Error makes an uncaught ErrorValue usable as a Go error by the host.
func (e *ErrorValue) Error() string {
	return e.RenderUncaught()
}

// CompileError reports a problem found while lowering a syntax tree to
// bytecode. It is fatal: no program is produced.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Message
}

func compileErrorf(format string, args ...any) *CompileError {
	return &CompileError{Message: fmt.Sprintf(format, args...)}
}

// LoadError reports a malformed or incompatible serialized program.
// It is fatal: deserialization never returns a partial program.
type LoadError struct {
	Message string
}

func (e *LoadError) Error() string {
	return "load error: " + e.Message
}

func loadErrorf(format string, args ...any) *LoadError {
	return &LoadError{Message: fmt.Sprintf(format, args...)}
}

// ErrorValueOf wraps an ErrorValue as a runtime Value.
func ErrorValueOf(e *ErrorValue) Value {
	return Value{Kind: ValueError, Err: e}
}
