package bytecode

import (
	"errors"
	"strings"
	"testing"

	"github.com/AlhaqGH/PohLang-sub001/ast"
)

func TestConstantDeduplication(t *testing.T) {
	prog := mustCompile(t,
		write(str("Hello")),
		write(str("Hello")),
	)
	count := 0
	for _, c := range prog.Constants {
		if c.Tag == TagString && c.Str == "Hello" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected one pool entry for \"Hello\", got %d", count)
	}
}

func TestNumberConstantDeduplication(t *testing.T) {
	prog := mustCompile(t,
		write(bin(ast.OpAdd, num(1), num(1))),
	)
	count := 0
	for _, c := range prog.Constants {
		if c.Tag == TagNumber && c.Num == 1 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected one pool entry for 1, got %d", count)
	}
}

func TestUndefinedVariableFailsAtCompileTime(t *testing.T) {
	_, err := Compile(&ast.Program{Stmts: []ast.Stmt{write(ident("ghost"))}})
	if err == nil {
		t.Fatal("Expected a compile error")
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a *CompileError, got %T", err)
	}
	if !strings.Contains(ce.Message, "ghost") {
		t.Errorf("Expected the message to name the variable, got %q", ce.Message)
	}
}

func TestCallToUndefinedFunctionFails(t *testing.T) {
	_, err := Compile(&ast.Program{Stmts: []ast.Stmt{
		&ast.ExprStmt{Expr: &ast.Call{Name: "missing"}},
	}})
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a *CompileError, got %v", err)
	}
}

func TestArityCheckedAtCompileTime(t *testing.T) {
	fn := &ast.FuncDef{
		Name:   "one",
		Params: []ast.Param{{Name: "a"}},
		Body:   []ast.Stmt{&ast.Return{Value: ident("a")}},
	}
	tests := []struct {
		name string
		call *ast.Call
	}{
		{"too few", &ast.Call{Name: "one"}},
		{"too many", &ast.Call{Name: "one", Args: []ast.Expr{num(1), num(2)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(&ast.Program{Stmts: []ast.Stmt{fn, write(tt.call)}})
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected a *CompileError, got %v", err)
			}
		})
	}
}

func TestReturnOutsideFunctionFails(t *testing.T) {
	_, err := Compile(&ast.Program{Stmts: []ast.Stmt{&ast.Return{}}})
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a *CompileError, got %v", err)
	}
}

func TestReturnInsideFinallyFails(t *testing.T) {
	fn := &ast.FuncDef{Name: "f", Body: []ast.Stmt{
		&ast.Try{
			Body:    []ast.Stmt{write(num(1))},
			Finally: []ast.Stmt{&ast.Return{Value: num(2)}},
		},
	}}
	_, err := Compile(&ast.Program{Stmts: []ast.Stmt{fn, &ast.ExprStmt{Expr: &ast.Call{Name: "f"}}}})
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a *CompileError, got %v", err)
	}
}

func TestRequiredParameterAfterDefaultFails(t *testing.T) {
	fn := &ast.FuncDef{
		Name: "f",
		Params: []ast.Param{
			{Name: "a", Default: &ast.NumberLit{Value: 1}},
			{Name: "b"},
		},
		Body: []ast.Stmt{&ast.Return{Value: ident("b")}},
	}
	_, err := Compile(&ast.Program{Stmts: []ast.Stmt{fn}})
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a *CompileError, got %v", err)
	}
}

func TestDuplicateFunctionFails(t *testing.T) {
	fn := func() ast.Stmt {
		return &ast.FuncDef{Name: "same", Body: []ast.Stmt{&ast.Return{}}}
	}
	_, err := Compile(&ast.Program{Stmts: []ast.Stmt{fn(), fn()}})
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a *CompileError, got %v", err)
	}
}

func TestNestedFunctionFails(t *testing.T) {
	outer := &ast.FuncDef{Name: "outer", Body: []ast.Stmt{
		&ast.FuncDef{Name: "inner", Body: []ast.Stmt{&ast.Return{}}},
	}}
	_, err := Compile(&ast.Program{Stmts: []ast.Stmt{outer}})
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a *CompileError, got %v", err)
	}
}

func TestAllJumpsResolved(t *testing.T) {
	// A program exercising every jump-emitting construct must leave no
	// placeholder target behind.
	prog := mustCompile(t,
		setVar("i", num(0)),
		&ast.While{
			Cond: bin(ast.OpLt, ident("i"), num(3)),
			Body: []ast.Stmt{
				&ast.If{
					Cond: bin(ast.OpAnd,
						bin(ast.OpGt, ident("i"), num(0)),
						bin(ast.OpOr, boolean(false), boolean(true))),
					Then: []ast.Stmt{write(ident("i"))},
					Else: []ast.Stmt{write(str("zero"))},
				},
				setVar("i", bin(ast.OpAdd, ident("i"), num(1))),
			},
		},
		&ast.Try{
			Body:    []ast.Stmt{write(str("ok"))},
			Finally: []ast.Stmt{write(str("done"))},
		},
	)
	for ip, in := range prog.Instructions {
		if in.Op.IsJump() && (in.A < 0 || int(in.A) > len(prog.Instructions)) {
			t.Errorf("Instruction %d (%s) has unresolved target %d", ip, in.Op, in.A)
		}
	}
	for ti, try := range prog.Tries {
		for _, h := range try.Handlers {
			if h.Entry < 0 || h.Entry >= len(prog.Instructions) {
				t.Errorf("Try %d handler entry %d out of range", ti, h.Entry)
			}
		}
	}
}

func TestMainBodyEndsWithHalt(t *testing.T) {
	prog := mustCompile(t, write(num(1)))
	main := prog.Functions[0]
	if last := prog.Instructions[main.End-1]; last.Op != OpHalt {
		t.Errorf("Expected main to end with HALT, got %s", last.Op)
	}
}

func TestFunctionAt(t *testing.T) {
	prog := mustCompile(t,
		&ast.FuncDef{Name: "f", Body: []ast.Stmt{&ast.Return{Value: num(1)}}},
		write(&ast.Call{Name: "f"}),
	)
	f := &prog.Functions[1]
	if got := prog.FunctionAt(f.Entry); got.Name != "f" {
		t.Errorf("FunctionAt(%d) = %s, want f", f.Entry, got.Name)
	}
	if got := prog.FunctionAt(f.End - 1); got.Name != "f" {
		t.Errorf("FunctionAt(%d) = %s, want f", f.End-1, got.Name)
	}
	if got := prog.FunctionAt(0); got.Name != "(main)" {
		t.Errorf("FunctionAt(0) = %s, want (main)", got.Name)
	}
	if got := prog.FunctionAt(-1); got.Name != "(main)" {
		t.Errorf("Out-of-range input must fall back to main, got %s", got.Name)
	}
}

func TestFunctionRangesAreContiguous(t *testing.T) {
	prog := mustCompile(t,
		&ast.FuncDef{Name: "a", Body: []ast.Stmt{&ast.Return{Value: num(1)}}},
		&ast.FuncDef{Name: "b", Body: []ast.Stmt{&ast.Return{Value: num(2)}}},
		write(&ast.Call{Name: "a"}),
	)
	prev := 0
	for i, f := range prog.Functions {
		if f.Entry != prev {
			t.Errorf("Function %d (%s) starts at %d, expected %d", i, f.Name, f.Entry, prev)
		}
		prev = f.End
	}
	if prev != len(prog.Instructions) {
		t.Errorf("Function ranges cover %d of %d instructions", prev, len(prog.Instructions))
	}
}
