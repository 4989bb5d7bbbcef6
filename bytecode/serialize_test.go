package bytecode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/AlhaqGH/PohLang-sub001/ast"
)

func TestRoundTrip(t *testing.T) {
	prog := mustCompile(t, write(bin(ast.OpAdd, num(1), num(2))))

	data, err := Serialize(prog)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	loaded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	var fresh, reloaded bytes.Buffer
	if _, err := Execute(prog, Options{Stdout: &fresh}); err != nil {
		t.Fatalf("Fresh program failed: %v", err)
	}
	if _, err := Execute(loaded, Options{Stdout: &reloaded}); err != nil {
		t.Fatalf("Reloaded program failed: %v", err)
	}
	if fresh.String() != "3\n" {
		t.Errorf("Expected output %q, got %q", "3\n", fresh.String())
	}
	if fresh.String() != reloaded.String() {
		t.Errorf("Round trip drifted: %q vs %q", fresh.String(), reloaded.String())
	}
}

func TestRoundTripPreservesAllSections(t *testing.T) {
	// A program touching every serialized table: constants of all four
	// tags, a function with a default, and a try with handlers and
	// finally.
	fn := &ast.FuncDef{
		Name:   "greet",
		Params: []ast.Param{{Name: "name", Default: &ast.StringLit{Value: "world"}}},
		Body:   []ast.Stmt{&ast.Return{Value: ident("name")}},
	}
	prog := mustCompile(t,
		fn,
		setVar("flag", boolean(true)),
		setVar("nothing", &ast.NilLit{}),
		&ast.Try{
			Body: []ast.Stmt{write(&ast.Call{Name: "greet"})},
			Handlers: []ast.Handler{
				{TypeName: "RuntimeError", Var: "e", Body: []ast.Stmt{write(ident("e"))}},
			},
			Finally: []ast.Stmt{write(str("done"))},
		},
	)

	data, err := Serialize(prog)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	loaded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if len(loaded.Constants) != len(prog.Constants) {
		t.Errorf("Constant count drifted: %d vs %d", len(loaded.Constants), len(prog.Constants))
	}
	for i := range prog.Constants {
		if !loaded.Constants[i].Equal(prog.Constants[i]) {
			t.Errorf("Constant %d drifted: %v vs %v", i, loaded.Constants[i], prog.Constants[i])
		}
	}
	if len(loaded.Functions) != len(prog.Functions) {
		t.Fatalf("Function count drifted: %d vs %d", len(loaded.Functions), len(prog.Functions))
	}
	for i := range prog.Functions {
		a, b := prog.Functions[i], loaded.Functions[i]
		if a.Name != b.Name || a.Entry != b.Entry || a.End != b.End || a.LocalCount != b.LocalCount {
			t.Errorf("Function %d drifted: %+v vs %+v", i, a, b)
		}
	}
	if len(loaded.Tries) != len(prog.Tries) {
		t.Fatalf("Try count drifted: %d vs %d", len(loaded.Tries), len(prog.Tries))
	}
	if len(loaded.Instructions) != len(prog.Instructions) {
		t.Fatalf("Instruction count drifted: %d vs %d", len(loaded.Instructions), len(prog.Instructions))
	}
	for i := range prog.Instructions {
		if loaded.Instructions[i] != prog.Instructions[i] {
			t.Errorf("Instruction %d drifted: %v vs %v", i, loaded.Instructions[i], prog.Instructions[i])
		}
	}
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	prog := mustCompile(t, write(num(1)))
	data, _ := Serialize(prog)
	data[0] = 'X'
	if _, err := Deserialize(data); err == nil {
		t.Fatal("Expected a load error for bad magic")
	}
}

func TestDeserializeRejectsVersionMismatch(t *testing.T) {
	prog := mustCompile(t, write(num(1)))
	data, _ := Serialize(prog)
	data[4] = 0xFF // version high byte
	_, err := Deserialize(data)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected a *LoadError, got %v", err)
	}
	if !strings.Contains(le.Message, "version") {
		t.Errorf("Expected a version message, got %q", le.Message)
	}
}

func TestDeserializeRejectsTruncation(t *testing.T) {
	prog := mustCompile(t, write(str("a longer string constant")))
	data, _ := Serialize(prog)
	for _, cut := range []int{5, len(data) / 2, len(data) - 1} {
		if _, err := Deserialize(data[:cut]); err == nil {
			t.Errorf("Expected a load error when truncated to %d bytes", cut)
		}
	}
}

func TestDeserializeRejectsTrailingBytes(t *testing.T) {
	prog := mustCompile(t, write(num(1)))
	data, _ := Serialize(prog)
	data = append(data, 0x00)
	_, err := Deserialize(data)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected a *LoadError, got %v", err)
	}
}

func TestDeserializeRejectsUnknownOpcode(t *testing.T) {
	prog := mustCompile(t, write(num(1)))
	data, _ := Serialize(prog)
	// The last instruction byte region: HALT is the final opcode.
	// Overwrite it with an undefined opcode value.
	data[len(data)-1] = 0xEE
	if _, err := Deserialize(data); err == nil {
		t.Fatal("Expected a load error for an unknown opcode")
	}
}

func TestDeserializeRejectsOutOfRangeConstantIndex(t *testing.T) {
	prog := mustCompile(t, write(num(1)))
	data, _ := Serialize(prog)
	loaded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	// Corrupt in memory, re-serialize, and expect validation to catch
	// the out-of-range pool reference on load.
	for i := range loaded.Instructions {
		if loaded.Instructions[i].Op == OpConst {
			loaded.Instructions[i].A = 9999
		}
	}
	bad, err := Serialize(loaded)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if _, err := Deserialize(bad); err == nil {
		t.Fatal("Expected a load error for an out-of-range constant index")
	}
}

func TestDeserializeEmptyInput(t *testing.T) {
	if _, err := Deserialize(nil); err == nil {
		t.Fatal("Expected a load error for empty input")
	}
}
