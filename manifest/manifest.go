// Package manifest handles pohlang.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a pohlang.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	VM      VMConfig    `toml:"vm"`
	Cache   CacheConfig `toml:"cache"`

	// Dir is the directory containing the pohlang.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
}

// VMConfig configures execution limits and tracing.
type VMConfig struct {
	MaxFrames int  `toml:"max-frames"`
	MaxStack  int  `toml:"max-stack"`
	Trace     bool `toml:"trace"`
}

// CacheConfig configures the compiled-program cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load parses a pohlang.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "pohlang.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a pohlang.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "pohlang.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the configuration used when no pohlang.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.VM.MaxFrames <= 0 {
		m.VM.MaxFrames = 1024
	}
	if m.VM.MaxStack <= 0 {
		m.VM.MaxStack = 64 * 1024
	}
	if m.Cache.Path == "" {
		m.Cache.Path = ".pohlang/cache.db"
	}
}

// CachePath returns the absolute path of the compiled-program cache
// database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
