package bytecode

import (
	"strings"
	"testing"

	"github.com/AlhaqGH/PohLang-sub001/ast"
)

// handProgram builds a minimal program with one main function covering
// the given instructions.
func handProgram(constants []Constant, instrs ...Instruction) *Program {
	return &Program{
		Version:   BytecodeVersion,
		Constants: constants,
		Functions: []FunctionInfo{
			{Name: "(main)", Entry: 0, End: len(instrs)},
		},
		Instructions: instrs,
	}
}

func TestVerifyAcceptsCompiledPrograms(t *testing.T) {
	prog := mustCompile(t,
		&ast.FuncDef{
			Name:   "clamp",
			Params: []ast.Param{{Name: "n"}},
			Body: []ast.Stmt{
				&ast.If{
					Cond: bin(ast.OpLt, ident("n"), num(0)),
					Then: []ast.Stmt{&ast.Return{Value: num(0)}},
				},
				&ast.Return{Value: ident("n")},
			},
		},
		write(&ast.Call{Name: "clamp", Args: []ast.Expr{num(-3)}}),
	)
	if err := Verify(prog); err != nil {
		t.Errorf("Verify rejected a compiled program: %v", err)
	}
}

func TestVerifyRejectsStackUnderflow(t *testing.T) {
	prog := handProgram(nil,
		Instruction{Op: OpAdd}, // nothing on the stack to add
		Instruction{Op: OpHalt},
	)
	err := Verify(prog)
	if err == nil {
		t.Fatal("Expected an underflow error")
	}
	if !strings.Contains(err.Error(), "underflow") {
		t.Errorf("Expected an underflow message, got %v", err)
	}
}

func TestVerifyRejectsUnresolvedJump(t *testing.T) {
	prog := handProgram(nil,
		Instruction{Op: OpJump, A: -1},
		Instruction{Op: OpHalt},
	)
	if err := Verify(prog); err == nil {
		t.Fatal("Expected an unresolved jump to be rejected")
	}
}

func TestVerifyRejectsJumpOutsideFunction(t *testing.T) {
	prog := handProgram(nil,
		Instruction{Op: OpJump, A: 500},
		Instruction{Op: OpHalt},
	)
	if err := Verify(prog); err == nil {
		t.Fatal("Expected an out-of-range jump to be rejected")
	}
}

func TestVerifyRejectsInconsistentDepth(t *testing.T) {
	// One path reaches instruction 4 with an extra value, the other
	// without: TRUE, JUMP_FALSE 3 -> (TRUE | nothing), HALT.
	prog := handProgram(nil,
		Instruction{Op: OpTrue},
		Instruction{Op: OpJumpFalse, A: 4},
		Instruction{Op: OpTrue},
		Instruction{Op: OpNop},
		Instruction{Op: OpHalt},
	)
	err := Verify(prog)
	if err == nil {
		t.Fatal("Expected inconsistent depths to be rejected")
	}
	if !strings.Contains(err.Error(), "inconsistent") {
		t.Errorf("Expected an inconsistency message, got %v", err)
	}
}

func TestVerifyRejectsConstantIndexOutOfRange(t *testing.T) {
	prog := handProgram([]Constant{NumberConstant(1)},
		Instruction{Op: OpConst, A: 7},
		Instruction{Op: OpPop},
		Instruction{Op: OpHalt},
	)
	if err := Verify(prog); err == nil {
		t.Fatal("Expected an out-of-range constant index to be rejected")
	}
}

func TestVerifyRejectsBadLocalSlot(t *testing.T) {
	prog := handProgram(nil,
		Instruction{Op: OpLoadLocal, A: 3},
		Instruction{Op: OpPop},
		Instruction{Op: OpHalt},
	)
	// main declares zero local slots
	if err := Verify(prog); err == nil {
		t.Fatal("Expected an out-of-range local slot to be rejected")
	}
}

func TestVerifyRejectsFallThrough(t *testing.T) {
	prog := handProgram(nil,
		Instruction{Op: OpNop},
		Instruction{Op: OpNop},
	)
	err := Verify(prog)
	if err == nil {
		t.Fatal("Expected fall-through off the function end to be rejected")
	}
	if !strings.Contains(err.Error(), "falls off") {
		t.Errorf("Expected a fall-through message, got %v", err)
	}
}

func TestVerifyRejectsNonStringGlobalName(t *testing.T) {
	prog := handProgram([]Constant{NumberConstant(3)},
		Instruction{Op: OpLoadGlobal, A: 0},
		Instruction{Op: OpPop},
		Instruction{Op: OpHalt},
	)
	if err := Verify(prog); err == nil {
		t.Fatal("Expected a non-string global name constant to be rejected")
	}
}

func TestVerifyRejectsCallToMain(t *testing.T) {
	prog := handProgram(nil,
		Instruction{Op: OpCall, A: 0, B: 0},
		Instruction{Op: OpPop},
		Instruction{Op: OpHalt},
	)
	if err := Verify(prog); err == nil {
		t.Fatal("Expected a call to the main body to be rejected")
	}
}

func TestVerifyRejectsBadTryIndex(t *testing.T) {
	prog := handProgram(nil,
		Instruction{Op: OpPushTry, A: 2},
		Instruction{Op: OpPopTry},
		Instruction{Op: OpHalt},
	)
	if err := Verify(prog); err == nil {
		t.Fatal("Expected an out-of-range try index to be rejected")
	}
}
