package bytecode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind discriminates the payload of a runtime Value.
type ValueKind byte

const (
	ValueNil ValueKind = iota
	ValueNumber
	ValueString
	ValueBoolean
	ValueList
	ValueDict
	ValueError
)

// Value is a runtime value on the VM stack. Numbers are float64,
// strings are immutable, lists and dicts share their backing storage
// between copies of the Value header.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
	List []Value
	Dict map[string]Value
	Err  *ErrorValue
}

func NilValue() Value               { return Value{Kind: ValueNil} }
func NumberValue(n float64) Value   { return Value{Kind: ValueNumber, Num: n} }
func StringValue(s string) Value    { return Value{Kind: ValueString, Str: s} }
func BooleanValue(b bool) Value     { return Value{Kind: ValueBoolean, Bool: b} }
func ListValue(elems []Value) Value { return Value{Kind: ValueList, List: elems} }
func DictValue(m map[string]Value) Value {
	return Value{Kind: ValueDict, Dict: m}
}

// IsTruthy implements the language's truthiness rules: false, nothing
// and zero are falsy; everything else (including "" and empty lists)
// follows the boolean/number interpretation below.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case ValueNil:
		return false
	case ValueBoolean:
		return v.Bool
	case ValueNumber:
		return v.Num != 0
	case ValueString:
		return v.Str != ""
	case ValueList:
		return len(v.List) > 0
	case ValueDict:
		return len(v.Dict) > 0
	default:
		return true
	}
}

// Equal is deep structural equality, used by EQ/NE.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueNil:
		return true
	case ValueNumber:
		return v.Num == other.Num
	case ValueString:
		return v.Str == other.Str
	case ValueBoolean:
		return v.Bool == other.Bool
	case ValueList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	case ValueDict:
		if len(v.Dict) != len(other.Dict) {
			return false
		}
		for k, a := range v.Dict {
			b, ok := other.Dict[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	case ValueError:
		return v.Err == other.Err
	default:
		return false
	}
}

// TypeName returns the language-level type name, used in type error
// messages ("Cannot add a number and a list").
func (v Value) TypeName() string {
	switch v.Kind {
	case ValueNil:
		return "nothing"
	case ValueNumber:
		return "a number"
	case ValueString:
		return "a string"
	case ValueBoolean:
		return "a boolean"
	case ValueList:
		return "a list"
	case ValueDict:
		return "a dictionary"
	case ValueError:
		return "an error"
	default:
		return "an unknown value"
	}
}

// String renders the value the way PRINT shows it.
func (v Value) String() string {
	switch v.Kind {
	case ValueNil:
		return "nothing"
	case ValueNumber:
		return formatNumber(v.Num)
	case ValueString:
		return v.Str
	case ValueBoolean:
		return strconv.FormatBool(v.Bool)
	case ValueList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.List {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.quoted())
		}
		sb.WriteByte(']')
		return sb.String()
	case ValueDict:
		keys := make([]string, 0, len(v.Dict))
		for k := range v.Dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%q: %s", k, v.Dict[k].quoted())
		}
		sb.WriteByte('}')
		return sb.String()
	case ValueError:
		return v.Err.Render()
	default:
		return "<invalid>"
	}
}

// quoted renders a value as a collection element, where strings keep
// their quotes.
func (v Value) quoted() string {
	if v.Kind == ValueString {
		return fmt.Sprintf("%q", v.Str)
	}
	return v.String()
}

// formatNumber prints whole numbers without a decimal point, so
// 1 + 2 displays as "3" rather than "3.0".
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
