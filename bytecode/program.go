package bytecode

import "fmt"

// BytecodeVersion is the current serialized program format version.
// Bump on any incompatible change to the instruction set or layout.
const BytecodeVersion uint16 = 1

// Magic bytes identifying a serialized program file.
var Magic = [4]byte{'P', 'O', 'H', 'C'}

// Operand width limits. Exceeding one is a CompileError, never a
// silent truncation.
const (
	MaxConstants = 1 << 16 // constant pool entries
	MaxLocals    = 1 << 8  // local slots per function
	MaxFunctions = 1 << 16 // function table entries
	MaxTries     = 1 << 16 // try table entries
	MaxArgs      = 1 << 8  // call arguments
)

// Instruction is one decoded bytecode instruction: an opcode and up to
// two operands. Operand meaning depends on the opcode (constant index,
// local slot, absolute jump target, function index, element count, try
// table index). Unused operands are zero.
type Instruction struct {
	Op Opcode
	A  int32
	B  int32
}

func (in Instruction) String() string {
	switch in.Op.OperandCount() {
	case 0:
		return in.Op.String()
	case 1:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	default:
		return fmt.Sprintf("%s %d %d", in.Op, in.A, in.B)
	}
}

// Param describes one declared function parameter. DefaultConst is the
// constant-pool index of the default value, or -1 when the parameter
// is required.
type Param struct {
	Name         string
	DefaultConst int32
}

// FunctionInfo maps a function to its contiguous instruction range
// [Entry, End), its parameters and its local slot count. Index 0 is
// always the synthetic top-level "(main)" body.
type FunctionInfo struct {
	Name       string
	Entry      int
	End        int
	Params     []Param
	LocalCount int
}

// Arity returns the declared parameter count.
func (f *FunctionInfo) Arity() int { return len(f.Params) }

// RequiredArity returns how many leading parameters have no default.
func (f *FunctionInfo) RequiredArity() int {
	n := 0
	for _, p := range f.Params {
		if p.DefaultConst < 0 {
			n++
		}
	}
	return n
}

// Handler is one (type filter, handler entry) pair of a try-construct.
// An empty Filter is the untyped catch-all. Slot is the local slot the
// matched error value is bound to before the handler body runs.
type Handler struct {
	Filter string
	Entry  int
	Slot   int
}

// TryInfo is the static description of one try-construct, referenced
// by index from a PUSH_TRY instruction. FinallyEntry is -1 when the
// construct has no finally block.
type TryInfo struct {
	Handlers     []Handler
	FinallyEntry int
}

// Program is an immutable compiled program: constant pool, instruction
// sequence, function table and try table. It is built once by the
// compiler (or deserializer) and may be shared read-only by any number
// of concurrently executing VM instances.
type Program struct {
	Version      uint16
	Constants    []Constant
	Instructions []Instruction
	Functions    []FunctionInfo
	Tries        []TryInfo
}

// NewProgram returns an empty program at the current format version
// with the synthetic main function registered at index 0.
func NewProgram() *Program {
	return &Program{
		Version:   BytecodeVersion,
		Functions: []FunctionInfo{{Name: "(main)"}},
	}
}

// AddConstant adds a constant to the pool, deduplicating by structural
// equality, and returns its index.
func (p *Program) AddConstant(c Constant) (int, error) {
	for i, existing := range p.Constants {
		if existing.Equal(c) {
			return i, nil
		}
	}
	if len(p.Constants) >= MaxConstants {
		return 0, fmt.Errorf("constant pool overflow (max %d entries)", MaxConstants)
	}
	p.Constants = append(p.Constants, c)
	return len(p.Constants) - 1, nil
}

// FunctionAt returns the function whose instruction range contains the
// given instruction index. Falls back to main for out-of-range input.
func (p *Program) FunctionAt(ip int) *FunctionInfo {
	for i := 1; i < len(p.Functions); i++ {
		f := &p.Functions[i]
		if ip >= f.Entry && ip < f.End {
			return f
		}
	}
	return &p.Functions[0]
}
