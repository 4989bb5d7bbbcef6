package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AlhaqGH/PohLang-sub001/ast"
	"github.com/AlhaqGH/PohLang-sub001/bytecode"
	"github.com/AlhaqGH/PohLang-sub001/manifest"
)

func sumTree() *ast.Program {
	return &ast.Program{Stmts: []ast.Stmt{
		&ast.Set{Name: "total", Value: &ast.Binary{
			Op:    ast.OpAdd,
			Left:  &ast.NumberLit{Value: 40},
			Right: &ast.NumberLit{Value: 2},
		}},
	}}
}

func cachedManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m := manifest.Default()
	m.Cache.Enabled = true
	m.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	return m
}

func TestSessionCompileAndRun(t *testing.T) {
	s, err := NewSession(nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	prog, err := s.Compile(sumTree(), nil, "")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := s.Run(prog); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestSessionCompileMemoized(t *testing.T) {
	s, err := NewSession(cachedManifest(t))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	source := []byte("Set total to 40 plus 2")
	first, err := s.Compile(sumTree(), source, "sum.poh")
	if err != nil {
		t.Fatalf("First compile failed: %v", err)
	}
	second, err := s.Compile(sumTree(), source, "sum.poh")
	if err != nil {
		t.Fatalf("Second compile failed: %v", err)
	}

	if len(first.Instructions) != len(second.Instructions) {
		t.Fatalf("Cached program drifted: %d vs %d instructions",
			len(first.Instructions), len(second.Instructions))
	}
	for i := range first.Instructions {
		if first.Instructions[i] != second.Instructions[i] {
			t.Errorf("Instruction %d drifted: %v vs %v",
				i, first.Instructions[i], second.Instructions[i])
		}
	}
}

func TestSessionCompileToFile(t *testing.T) {
	s, err := NewSession(nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	out := filepath.Join(t.TempDir(), "sum.pbc")
	if err := s.CompileToFile(sumTree(), nil, "", out); err != nil {
		t.Fatalf("CompileToFile failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := bytecode.Deserialize(data)
	if err != nil {
		t.Fatalf("Written file does not load: %v", err)
	}
	if _, err := s.Run(prog); err != nil {
		t.Fatalf("Loaded program failed: %v", err)
	}
}

func TestSessionRunHonorsFrameLimit(t *testing.T) {
	m := manifest.Default()
	m.VM.MaxFrames = 8

	s, err := NewSession(m)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	// loop(n) calls itself forever; the frame cap must turn that into
	// an error instead of exhausting the host stack.
	tree := &ast.Program{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name:   "loop",
			Params: []ast.Param{{Name: "n"}},
			Body: []ast.Stmt{
				&ast.Return{Value: &ast.Call{Name: "loop", Args: []ast.Expr{&ast.Ident{Name: "n"}}}},
			},
		},
		&ast.ExprStmt{Expr: &ast.Call{Name: "loop", Args: []ast.Expr{&ast.NumberLit{Value: 1}}}},
	}}
	prog, err := s.Compile(tree, nil, "")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := s.Run(prog); err == nil {
		t.Fatal("Expected a stack overflow error")
	}
}
