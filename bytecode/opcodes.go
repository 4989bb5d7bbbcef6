package bytecode

import "fmt"

// Opcode identifies a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst Opcode = 0x10 // Push constant from pool: OpConst <index>
	OpTrue  Opcode = 0x11 // Push boolean true
	OpFalse Opcode = 0x12 // Push boolean false
	OpNil   Opcode = 0x13 // Push nothing

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpLoadLocal   Opcode = 0x20 // Push local variable: OpLoadLocal <slot>
	OpStoreLocal  Opcode = 0x21 // Pop and store to local: OpStoreLocal <slot>
	OpLoadGlobal  Opcode = 0x22 // Push global: OpLoadGlobal <name_const>
	OpStoreGlobal Opcode = 0x23 // Pop and store global: OpStoreGlobal <name_const>

	// ========================================================================
	// Arithmetic (0x30-0x3F)
	// ========================================================================

	OpAdd Opcode = 0x30 // Pop two, push sum (or string concatenation)
	OpSub Opcode = 0x31 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x32 // Pop two, push product
	OpDiv Opcode = 0x33 // Pop two, push quotient
	OpMod Opcode = 0x34 // Pop two, push remainder
	OpNeg Opcode = 0x35 // Negate top of stack

	// ========================================================================
	// Comparison (0x40-0x47)
	// ========================================================================

	OpEq Opcode = 0x40 // Pop two, push true if equal
	OpNe Opcode = 0x41 // Pop two, push true if not equal
	OpLt Opcode = 0x42 // Pop two, push true if a < b
	OpLe Opcode = 0x43 // Pop two, push true if a <= b
	OpGt Opcode = 0x44 // Pop two, push true if a > b
	OpGe Opcode = 0x45 // Pop two, push true if a >= b

	// ========================================================================
	// Logical (0x48-0x4F)
	// ========================================================================

	OpNot Opcode = 0x48 // Logical NOT of top of stack

	// ========================================================================
	// Control flow (0x50-0x5F)
	// Jump operands are absolute instruction indices.
	// ========================================================================

	OpJump      Opcode = 0x50 // Unconditional jump: OpJump <target>
	OpJumpFalse Opcode = 0x51 // Pop, jump if falsy: OpJumpFalse <target>
	OpJumpTrue  Opcode = 0x52 // Pop, jump if truthy: OpJumpTrue <target>

	// ========================================================================
	// Calls (0x60-0x6F)
	// ========================================================================

	OpCall   Opcode = 0x60 // Call function: OpCall <func_index> <argc>
	OpReturn Opcode = 0x61 // Return top of stack from current frame

	// ========================================================================
	// Collections (0x70-0x7F)
	// ========================================================================

	OpMakeList Opcode = 0x70 // Pop n values, push list: OpMakeList <n>
	OpMakeDict Opcode = 0x71 // Pop n key/value pairs, push dict: OpMakeDict <n>
	OpIndexGet Opcode = 0x72 // Pop index, container; push element
	OpIndexSet Opcode = 0x73 // Pop value, index, container; store element

	// ========================================================================
	// Exceptions (0x80-0x8F)
	// ========================================================================

	OpPushTry    Opcode = 0x80 // Enter protected region: OpPushTry <try_index>
	OpPopTry     Opcode = 0x81 // Leave protected region normally
	OpThrow      Opcode = 0x82 // Pop message, raise error: OpThrow <kind_const> (-1 = pop error value and re-raise)
	OpEndFinally Opcode = 0x83 // Resume whatever the finally block interrupted

	// ========================================================================
	// I/O (0x90-0x9F)
	// ========================================================================

	OpPrint     Opcode = 0x90 // Pop and print top of stack
	OpReadFile  Opcode = 0x91 // Pop path, push file contents
	OpWriteFile Opcode = 0x92 // Pop contents, path; write file

	// ========================================================================
	// Termination (0xF0-0xFF)
	// ========================================================================

	OpHalt Opcode = 0xFF // Stop execution of the top-level frame
)

// VariableEffect marks opcodes whose stack effect depends on an operand
// (OpMakeList, OpMakeDict, OpCall).
const VariableEffect = -1

// OpcodeInfo provides metadata about each opcode for disassembly and
// static verification.
type OpcodeInfo struct {
	Name         string // Human-readable name
	StackPop     int    // Values popped from the stack (VariableEffect = operand-dependent)
	StackPush    int    // Values pushed to the stack
	OperandCount int    // Number of operands carried by the instruction
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0, 0},
	OpPop:  {"POP", 1, 0, 0},
	OpDup:  {"DUP", 1, 2, 0},
	OpSwap: {"SWAP", 2, 2, 0},

	// Constants
	OpConst: {"CONST", 0, 1, 1},
	OpTrue:  {"TRUE", 0, 1, 0},
	OpFalse: {"FALSE", 0, 1, 0},
	OpNil:   {"NIL", 0, 1, 0},

	// Variables
	OpLoadLocal:   {"LOAD_LOCAL", 0, 1, 1},
	OpStoreLocal:  {"STORE_LOCAL", 1, 0, 1},
	OpLoadGlobal:  {"LOAD_GLOBAL", 0, 1, 1},
	OpStoreGlobal: {"STORE_GLOBAL", 1, 0, 1},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, 0},
	OpSub: {"SUB", 2, 1, 0},
	OpMul: {"MUL", 2, 1, 0},
	OpDiv: {"DIV", 2, 1, 0},
	OpMod: {"MOD", 2, 1, 0},
	OpNeg: {"NEG", 1, 1, 0},

	// Comparison
	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},
	OpLt: {"LT", 2, 1, 0},
	OpLe: {"LE", 2, 1, 0},
	OpGt: {"GT", 2, 1, 0},
	OpGe: {"GE", 2, 1, 0},

	// Logical
	OpNot: {"NOT", 1, 1, 0},

	// Control flow
	OpJump:      {"JUMP", 0, 0, 1},
	OpJumpFalse: {"JUMP_FALSE", 1, 0, 1},
	OpJumpTrue:  {"JUMP_TRUE", 1, 0, 1},

	// Calls
	OpCall:   {"CALL", VariableEffect, 1, 2}, // Pops argc arguments
	OpReturn: {"RETURN", 1, 0, 0},

	// Collections
	OpMakeList: {"MAKE_LIST", VariableEffect, 1, 1}, // Pops n elements
	OpMakeDict: {"MAKE_DICT", VariableEffect, 1, 1}, // Pops 2*n values
	OpIndexGet: {"INDEX_GET", 2, 1, 0},
	OpIndexSet: {"INDEX_SET", 3, 0, 0},

	// Exceptions
	OpPushTry:    {"PUSH_TRY", 0, 0, 1},
	OpPopTry:     {"POP_TRY", 0, 0, 0},
	OpThrow:      {"THROW", 1, 0, 1},
	OpEndFinally: {"END_FINALLY", 0, 0, 0},

	// I/O
	OpPrint:     {"PRINT", 1, 0, 0},
	OpReadFile:  {"READ_FILE", 1, 1, 0},
	OpWriteFile: {"WRITE_FILE", 2, 0, 0},

	// Termination
	OpHalt: {"HALT", 0, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsValid reports whether the opcode is defined.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandCount returns the number of operands carried by this opcode.
func (op Opcode) OperandCount() int {
	return GetOpcodeInfo(op).OperandCount
}

// IsJump returns true if this opcode transfers control to its first operand.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpTrue
}

// IsTerminator returns true if this opcode never falls through to the
// next instruction.
func (op Opcode) IsTerminator() bool {
	return op == OpReturn || op == OpThrow || op == OpJump || op == OpHalt
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
