// Package runtime ties the compiler, program cache and VM together
// into the surface a hosting application uses: compile a syntax tree
// (memoized by source hash), persist programs as .pbc files, and run
// them under configured limits.
package runtime

import (
	"fmt"
	"os"
	"time"

	"github.com/tliron/commonlog"

	"github.com/AlhaqGH/PohLang-sub001/ast"
	"github.com/AlhaqGH/PohLang-sub001/bytecode"
	"github.com/AlhaqGH/PohLang-sub001/cache"
	"github.com/AlhaqGH/PohLang-sub001/manifest"
)

var log = commonlog.GetLogger("pohlang.runtime")

// Session is one host-side compilation/execution context. It is safe
// to reuse across programs; each Run spins up an isolated VM.
type Session struct {
	manifest *manifest.Manifest
	store    *cache.Store
}

// NewSession creates a session from a manifest. When the manifest
// enables caching, the program cache is opened (and created on first
// use) at the configured path.
func NewSession(m *manifest.Manifest) (*Session, error) {
	if m == nil {
		m = manifest.Default()
	}
	s := &Session{manifest: m}
	if m.Cache.Enabled {
		store, err := cache.Open(m.CachePath())
		if err != nil {
			return nil, fmt.Errorf("opening program cache: %w", err)
		}
		s.store = store
	}
	return s, nil
}

// Close releases the cache handle, if any.
func (s *Session) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Compile lowers a syntax tree to a program. When caching is enabled,
// source is the original text the tree was parsed from and keys the
// cache; a hit skips compilation.
func (s *Session) Compile(tree *ast.Program, source []byte, sourcePath string) (*bytecode.Program, error) {
	if s.store == nil || len(source) == 0 {
		return bytecode.Compile(tree)
	}

	key := cache.Key(source)
	if prog, _, err := s.store.Get(key); err != nil {
		log.Errorf("cache lookup failed, compiling: %v", err)
	} else if prog != nil {
		log.Debugf("cache hit for %s", sourcePath)
		return prog, nil
	}

	prog, err := bytecode.Compile(tree)
	if err != nil {
		return nil, err
	}
	meta := cache.Meta{
		SourcePath: sourcePath,
		SourceSize: len(source),
		Version:    prog.Version,
		CompiledAt: time.Now().UTC(),
	}
	if err := s.store.Put(key, meta, prog); err != nil {
		log.Errorf("cache store failed: %v", err)
	}
	return prog, nil
}

// CompileToFile compiles a tree and writes the serialized program to
// a .pbc file.
func (s *Session) CompileToFile(tree *ast.Program, source []byte, sourcePath, outPath string) error {
	prog, err := s.Compile(tree, source, sourcePath)
	if err != nil {
		return err
	}
	data, err := bytecode.Serialize(prog)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

// Run executes a program under the session's configured limits and
// returns its final value. The error, when non-nil, is the uncaught
// *bytecode.ErrorValue (or a VM integrity failure).
func (s *Session) Run(prog *bytecode.Program) (bytecode.Value, error) {
	return bytecode.Execute(prog, bytecode.Options{
		MaxFrames: s.manifest.VM.MaxFrames,
		MaxStack:  s.manifest.VM.MaxStack,
		Trace:     s.manifest.VM.Trace,
	})
}
