package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
		if info.OperandCount < 0 || info.OperandCount > 2 {
			t.Errorf("Opcode %s has invalid operand count %d", info.Name, info.OperandCount)
		}
	}
}

func TestOpcodeNamesAreUnique(t *testing.T) {
	seen := make(map[string]Opcode)
	for _, op := range AllOpcodes() {
		name := op.String()
		if prev, dup := seen[name]; dup {
			t.Errorf("Opcodes 0x%02X and 0x%02X share the name %s", byte(prev), byte(op), name)
		}
		seen[name] = op
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xEE)
	if op.IsValid() {
		t.Error("Expected 0xEE to be undefined")
	}
	if !strings.HasPrefix(op.String(), "UNKNOWN") {
		t.Errorf("Expected an UNKNOWN name, got %q", op.String())
	}
}

func TestJumpClassification(t *testing.T) {
	for _, op := range []Opcode{OpJump, OpJumpFalse, OpJumpTrue} {
		if !op.IsJump() {
			t.Errorf("%s should be a jump", op)
		}
	}
	for _, op := range []Opcode{OpCall, OpReturn, OpHalt, OpPushTry} {
		if op.IsJump() {
			t.Errorf("%s should not be a jump", op)
		}
	}
}

func TestVariableEffectOpcodesAreKnown(t *testing.T) {
	// Only these three may report an operand-dependent stack effect;
	// everything else must have fixed counts for the verifier.
	variable := map[Opcode]bool{OpCall: true, OpMakeList: true, OpMakeDict: true}
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if (info.StackPop == VariableEffect) != variable[op] {
			t.Errorf("%s has unexpected stack effect %d", info.Name, info.StackPop)
		}
	}
}
