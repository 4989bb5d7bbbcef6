package bytecode

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tliron/commonlog"
)

// Default resource limits for a VM instance.
const (
	DefaultMaxFrames = 1024
	DefaultMaxStack  = 64 * 1024
)

var vmLog = commonlog.GetLogger("pohlang.vm")

// Options configures one VM instance. The zero value gives the default
// limits, stdout for PRINT, and no instruction tracing.
type Options struct {
	Stdout    io.Writer
	MaxFrames int // call-frame depth limit; exceeding it raises a StackOverflowError
	MaxStack  int // operand stack depth limit
	Trace     bool
}

// frame is one activation record. Locals live in their own slice; base
// marks where the frame's temporaries start on the shared operand
// stack, so return can discard exactly this frame's values.
type frame struct {
	funcIndex int
	locals    []Value
	retAddr   int
	base      int
}

// tryContext is one active try-construct. It records how far to
// unwind (frame and stack depth at entry) and whether a handler of
// this construct is currently running, in which case its handlers no
// longer match new errors.
type tryContext struct {
	tryIndex     int
	frameDepth   int
	stackDepth   int
	pendingDepth int
	handling     bool
}

// pendingKind says what a finally block interrupted.
type pendingKind byte

const (
	pendingResume pendingKind = iota // normal exit, continue at resume
	pendingThrow                     // an error still propagating
	pendingReturn                    // an early return from the try body
)

// pendingAction is pushed when control is diverted into a finally
// block and consumed by END_FINALLY to resume the interrupted exit.
type pendingAction struct {
	kind   pendingKind
	resume int
	err    *ErrorValue
	val    Value
}

// VM executes one Program. Each instance is strictly sequential and
// fully isolated: its stack, frames, globals and try contexts are its
// own, so independent instances may run the same Program concurrently.
type VM struct {
	prog    *Program
	ip      int
	stack   []Value
	frames  []frame
	globals map[string]Value
	tries   []tryContext
	pending []pendingAction

	out       io.Writer
	maxFrames int
	maxStack  int
	trace     bool
}

// NewVM creates a VM for the given program.
func NewVM(prog *Program, opts Options) *VM {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultMaxFrames
	}
	if opts.MaxStack <= 0 {
		opts.MaxStack = DefaultMaxStack
	}
	return &VM{
		prog:      prog,
		globals:   make(map[string]Value),
		out:       opts.Stdout,
		maxFrames: opts.MaxFrames,
		maxStack:  opts.MaxStack,
		trace:     opts.Trace,
	}
}

// Execute compiles nothing and runs the program's top-level body to
// completion, returning the final value, or the uncaught *ErrorValue
// as the error.
func Execute(prog *Program, opts Options) (Value, error) {
	return NewVM(prog, opts).Run()
}

// Run executes the program from its entry point. It returns the final
// value left by the top-level body (nothing when the body is
// statement-only), or the uncaught error.
func (vm *VM) Run() (Value, error) {
	main := &vm.prog.Functions[0]
	vm.ip = main.Entry
	vm.frames = append(vm.frames[:0], frame{
		funcIndex: 0,
		locals:    make([]Value, main.LocalCount),
	})

	for {
		if vm.ip < 0 || vm.ip >= len(vm.prog.Instructions) {
			return NilValue(), vm.uncatchable("instruction pointer %d out of range", vm.ip)
		}
		in := vm.prog.Instructions[vm.ip]
		if vm.trace {
			vmLog.Debugf("%s %04d  %s  (sp=%d fp=%d)",
				vm.prog.FunctionAt(vm.ip).Name, vm.ip, in, len(vm.stack), len(vm.frames))
		}
		vm.ip++

		var raised *ErrorValue

		switch in.Op {
		case OpNop:
			// nothing

		case OpPop:
			vm.pop()
		case OpDup:
			vm.push(vm.peek())
		case OpSwap:
			n := len(vm.stack)
			vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]

		case OpConst:
			vm.push(vm.prog.Constants[in.A].Value())
		case OpTrue:
			vm.push(BooleanValue(true))
		case OpFalse:
			vm.push(BooleanValue(false))
		case OpNil:
			vm.push(NilValue())

		case OpLoadLocal:
			vm.push(vm.currentFrame().locals[in.A])
		case OpStoreLocal:
			vm.currentFrame().locals[in.A] = vm.pop()
		case OpLoadGlobal:
			name := vm.prog.Constants[in.A].Str
			val, ok := vm.globals[name]
			if !ok {
				raised = NewError(KindUndefined, "Undefined variable: %s", name)
				break
			}
			vm.push(val)
		case OpStoreGlobal:
			vm.globals[vm.prog.Constants[in.A].Str] = vm.pop()

		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			raised = vm.arithmetic(in.Op)
		case OpNeg:
			v := vm.pop()
			if v.Kind != ValueNumber {
				raised = NewError(KindType, "Cannot negate %s", v.TypeName())
				break
			}
			vm.push(NumberValue(-v.Num))

		case OpEq:
			b, a := vm.pop(), vm.pop()
			vm.push(BooleanValue(a.Equal(b)))
		case OpNe:
			b, a := vm.pop(), vm.pop()
			vm.push(BooleanValue(!a.Equal(b)))
		case OpLt, OpLe, OpGt, OpGe:
			raised = vm.compare(in.Op)

		case OpNot:
			vm.push(BooleanValue(!vm.pop().IsTruthy()))

		case OpJump:
			vm.ip = int(in.A)
		case OpJumpFalse:
			if !vm.pop().IsTruthy() {
				vm.ip = int(in.A)
			}
		case OpJumpTrue:
			if vm.pop().IsTruthy() {
				vm.ip = int(in.A)
			}

		case OpCall:
			raised = vm.call(int(in.A), int(in.B))
		case OpReturn:
			if len(vm.frames) <= 1 {
				return NilValue(), vm.uncatchable("return outside of a function")
			}
			vm.doReturn(vm.pop())

		case OpMakeList:
			n := int(in.A)
			elems := make([]Value, n)
			copy(elems, vm.stack[len(vm.stack)-n:])
			vm.stack = vm.stack[:len(vm.stack)-n]
			vm.push(ListValue(elems))
		case OpMakeDict:
			raised = vm.makeDict(int(in.A))
		case OpIndexGet:
			raised = vm.indexGet()
		case OpIndexSet:
			raised = vm.indexSet()

		case OpPushTry:
			vm.tries = append(vm.tries, tryContext{
				tryIndex:     int(in.A),
				frameDepth:   len(vm.frames) - 1,
				stackDepth:   len(vm.stack),
				pendingDepth: len(vm.pending),
			})
		case OpPopTry:
			ctx := vm.tries[len(vm.tries)-1]
			vm.tries = vm.tries[:len(vm.tries)-1]
			info := &vm.prog.Tries[ctx.tryIndex]
			if info.FinallyEntry >= 0 {
				vm.pending = append(vm.pending, pendingAction{kind: pendingResume, resume: vm.ip})
				vm.ip = info.FinallyEntry
			}
		case OpThrow:
			raised = vm.throw(in.A)
		case OpEndFinally:
			if len(vm.pending) == 0 {
				return NilValue(), vm.uncatchable("finally block completed with nothing to resume")
			}
			p := vm.pending[len(vm.pending)-1]
			vm.pending = vm.pending[:len(vm.pending)-1]
			switch p.kind {
			case pendingResume:
				vm.ip = p.resume
			case pendingThrow:
				raised = p.err
			case pendingReturn:
				vm.doReturn(p.val)
			}

		case OpPrint:
			fmt.Fprintln(vm.out, vm.pop().String())
		case OpReadFile:
			path := vm.pop()
			data, err := os.ReadFile(path.String())
			if err != nil {
				raised = NewError(KindFile, "Cannot read file %s: %v", path.String(), err)
				break
			}
			vm.push(StringValue(string(data)))
		case OpWriteFile:
			content := vm.pop()
			path := vm.pop()
			if err := os.WriteFile(path.String(), []byte(content.String()), 0o644); err != nil {
				raised = NewError(KindFile, "Cannot write file %s: %v", path.String(), err)
			}

		case OpHalt:
			if len(vm.stack) > 0 {
				return vm.stack[len(vm.stack)-1], nil
			}
			return NilValue(), nil

		default:
			return NilValue(), vm.uncatchable("invalid opcode 0x%02X", byte(in.Op))
		}

		if raised != nil {
			if uncaught := vm.raise(raised); uncaught != nil {
				return NilValue(), uncaught
			}
		}

		if len(vm.stack) > vm.maxStack {
			if uncaught := vm.raise(NewError(KindStackOverflow, "Operand stack limit of %d exceeded", vm.maxStack)); uncaught != nil {
				return NilValue(), uncaught
			}
		}
	}
}

// uncatchable reports a VM integrity violation. These indicate a
// corrupt program that slipped past verification and are deliberately
// not representable as catchable error values.
func (vm *VM) uncatchable(format string, args ...any) error {
	return fmt.Errorf("vm: "+format, args...)
}

// ============================================================================
// Stack helpers
// ============================================================================

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek() Value {
	return vm.stack[len(vm.stack)-1]
}

func (vm *VM) currentFrame() *frame {
	return &vm.frames[len(vm.frames)-1]
}

// ============================================================================
// Operations
// ============================================================================

var arithVerbs = map[Opcode]string{
	OpAdd: "add",
	OpSub: "subtract",
	OpMul: "multiply",
	OpDiv: "divide",
	OpMod: "take the remainder of",
}

func (vm *VM) arithmetic(op Opcode) *ErrorValue {
	b := vm.pop()
	a := vm.pop()

	// "plus" doubles as string concatenation.
	if op == OpAdd && (a.Kind == ValueString || b.Kind == ValueString) {
		vm.push(StringValue(a.String() + b.String()))
		return nil
	}
	if a.Kind != ValueNumber || b.Kind != ValueNumber {
		return NewError(KindType, "Cannot %s %s and %s", arithVerbs[op], a.TypeName(), b.TypeName())
	}

	switch op {
	case OpAdd:
		vm.push(NumberValue(a.Num + b.Num))
	case OpSub:
		vm.push(NumberValue(a.Num - b.Num))
	case OpMul:
		vm.push(NumberValue(a.Num * b.Num))
	case OpDiv:
		if b.Num == 0 {
			return NewError(KindMath, "Cannot divide by zero")
		}
		vm.push(NumberValue(a.Num / b.Num))
	case OpMod:
		if b.Num == 0 {
			return NewError(KindMath, "Cannot take a remainder by zero")
		}
		vm.push(NumberValue(math.Mod(a.Num, b.Num)))
	}
	return nil
}

func (vm *VM) compare(op Opcode) *ErrorValue {
	b := vm.pop()
	a := vm.pop()

	var less, equal bool
	switch {
	case a.Kind == ValueNumber && b.Kind == ValueNumber:
		less, equal = a.Num < b.Num, a.Num == b.Num
	case a.Kind == ValueString && b.Kind == ValueString:
		less, equal = a.Str < b.Str, a.Str == b.Str
	default:
		return NewError(KindType, "Cannot compare %s and %s", a.TypeName(), b.TypeName())
	}

	switch op {
	case OpLt:
		vm.push(BooleanValue(less))
	case OpLe:
		vm.push(BooleanValue(less || equal))
	case OpGt:
		vm.push(BooleanValue(!less && !equal))
	case OpGe:
		vm.push(BooleanValue(!less))
	}
	return nil
}

func (vm *VM) makeDict(n int) *ErrorValue {
	m := make(map[string]Value, n)
	base := len(vm.stack) - 2*n
	for i := 0; i < n; i++ {
		key := vm.stack[base+2*i]
		if key.Kind != ValueString {
			return NewError(KindType, "Dictionary keys must be strings, got %s", key.TypeName())
		}
		m[key.Str] = vm.stack[base+2*i+1]
	}
	vm.stack = vm.stack[:base]
	vm.push(DictValue(m))
	return nil
}

func (vm *VM) indexGet() *ErrorValue {
	key := vm.pop()
	target := vm.pop()
	switch target.Kind {
	case ValueList:
		if key.Kind != ValueNumber {
			return NewError(KindType, "List indexes must be numbers, got %s", key.TypeName())
		}
		i := int(key.Num)
		if i < 0 || i >= len(target.List) {
			return NewError(KindRuntime, "List index %d is out of range (list has %d items)", i, len(target.List))
		}
		vm.push(target.List[i])
	case ValueDict:
		if key.Kind != ValueString {
			return NewError(KindType, "Dictionary keys must be strings, got %s", key.TypeName())
		}
		val, ok := target.Dict[key.Str]
		if !ok {
			return NewError(KindRuntime, "Dictionary has no key %q", key.Str)
		}
		vm.push(val)
	default:
		return NewError(KindType, "Cannot index into %s", target.TypeName())
	}
	return nil
}

func (vm *VM) indexSet() *ErrorValue {
	val := vm.pop()
	key := vm.pop()
	target := vm.pop()
	switch target.Kind {
	case ValueList:
		if key.Kind != ValueNumber {
			return NewError(KindType, "List indexes must be numbers, got %s", key.TypeName())
		}
		i := int(key.Num)
		if i < 0 || i >= len(target.List) {
			return NewError(KindRuntime, "List index %d is out of range (list has %d items)", i, len(target.List))
		}
		target.List[i] = val
	case ValueDict:
		if key.Kind != ValueString {
			return NewError(KindType, "Dictionary keys must be strings, got %s", key.TypeName())
		}
		target.Dict[key.Str] = val
	default:
		return NewError(KindType, "Cannot index into %s", target.TypeName())
	}
	return nil
}

// call pushes a new frame for function funcIndex, moving argc
// arguments off the operand stack into its leading local slots and
// filling omitted trailing parameters from their declared defaults.
func (vm *VM) call(funcIndex, argc int) *ErrorValue {
	info := &vm.prog.Functions[funcIndex]

	if argc > info.Arity() || argc < info.RequiredArity() {
		return NewError(KindValidation, "Function %q expects %d to %d arguments, got %d",
			info.Name, info.RequiredArity(), info.Arity(), argc)
	}
	if len(vm.frames) >= vm.maxFrames {
		// Discard the arguments so the handler sees a clean stack.
		vm.stack = vm.stack[:len(vm.stack)-argc]
		return NewError(KindStackOverflow, "Call depth limit of %d exceeded in function %q", vm.maxFrames, info.Name)
	}

	locals := make([]Value, info.LocalCount)
	base := len(vm.stack) - argc
	for i := 0; i < argc; i++ {
		locals[i] = vm.stack[base+i]
	}
	for i := argc; i < info.Arity(); i++ {
		locals[i] = vm.prog.Constants[info.Params[i].DefaultConst].Value()
	}
	vm.stack = vm.stack[:base]

	vm.frames = append(vm.frames, frame{
		funcIndex: funcIndex,
		locals:    locals,
		retAddr:   vm.ip,
		base:      base,
	})
	vm.ip = info.Entry
	return nil
}

// doReturn leaves the current frame with the given value, first
// routing through any finally blocks of try-constructs still open in
// this frame.
func (vm *VM) doReturn(val Value) {
	for len(vm.tries) > 0 {
		ctx := vm.tries[len(vm.tries)-1]
		if ctx.frameDepth != len(vm.frames)-1 {
			break
		}
		vm.tries = vm.tries[:len(vm.tries)-1]
		vm.stack = vm.stack[:ctx.stackDepth]
		vm.pending = vm.pending[:ctx.pendingDepth]
		info := &vm.prog.Tries[ctx.tryIndex]
		if info.FinallyEntry >= 0 {
			vm.pending = append(vm.pending, pendingAction{kind: pendingReturn, val: val})
			vm.ip = info.FinallyEntry
			return
		}
	}

	f := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.stack = vm.stack[:f.base]
	vm.push(val)
	vm.ip = f.retAddr
}

// throw materializes the error for a THROW instruction. kindConst is
// the constant index of the type name, or -1 to re-raise the error
// value on top of the stack.
func (vm *VM) throw(kindConst int32) *ErrorValue {
	if kindConst < 0 {
		v := vm.pop()
		if v.Kind == ValueError {
			return v.Err
		}
		return NewError(KindRuntime, "%s", v.String())
	}
	msg := vm.pop()
	kind, name := KindFromString(vm.prog.Constants[kindConst].Str)
	if kind == KindCustom {
		return NewCustomError(name, msg.String())
	}
	return NewError(kind, "%s", msg.String())
}

// raise unwinds toward the innermost try-construct whose filters
// accept the error, running finally blocks along the way. It returns
// the error if nothing catches it.
func (vm *VM) raise(err *ErrorValue) *ErrorValue {
	if err.Trace == nil {
		err.Trace = vm.captureTrace()
	}

	for len(vm.tries) > 0 {
		ctx := &vm.tries[len(vm.tries)-1]
		info := &vm.prog.Tries[ctx.tryIndex]

		// Unwind frames, operands and any finally resumptions that were
		// interrupted between this construct and the raise site.
		vm.frames = vm.frames[:ctx.frameDepth+1]
		vm.stack = vm.stack[:ctx.stackDepth]
		vm.pending = vm.pending[:ctx.pendingDepth]

		if !ctx.handling {
			for _, h := range info.Handlers {
				if err.Matches(h.Filter) {
					// The context stays installed, marked handling, so the
					// handler's own POP_TRY routes through finally; new
					// errors inside the handler skip these filters.
					ctx.handling = true
					vm.currentFrame().locals[h.Slot] = ErrorValueOf(err)
					vm.ip = h.Entry
					return nil
				}
			}
		}

		vm.tries = vm.tries[:len(vm.tries)-1]
		if info.FinallyEntry >= 0 {
			vm.pending = append(vm.pending, pendingAction{kind: pendingThrow, err: err})
			vm.ip = info.FinallyEntry
			return nil
		}
	}
	return err
}

// captureTrace snapshots the call stack, innermost frame first.
func (vm *VM) captureTrace() []TraceFrame {
	trace := make([]TraceFrame, 0, len(vm.frames))
	at := vm.ip - 1
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		trace = append(trace, TraceFrame{
			Function:    vm.prog.Functions[f.funcIndex].Name,
			Instruction: at,
		})
		at = f.retAddr - 1
	}
	return trace
}
