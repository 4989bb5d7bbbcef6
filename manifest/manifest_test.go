package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "pohlang.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "calc"
version = "0.3.0"
entry = "main.pbc"

[vm]
max-frames = 256
trace = true

[cache]
enabled = true
path = "build/cache.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "calc" || m.Project.Entry != "main.pbc" {
		t.Errorf("Unexpected project section: %+v", m.Project)
	}
	if m.VM.MaxFrames != 256 || !m.VM.Trace {
		t.Errorf("Unexpected vm section: %+v", m.VM)
	}
	if m.VM.MaxStack != 64*1024 {
		t.Errorf("Expected default max-stack, got %d", m.VM.MaxStack)
	}
	if !m.Cache.Enabled {
		t.Error("Expected cache to be enabled")
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, "build/cache.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("Expected an error for a missing pohlang.toml")
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = ")
	if _, err := Load(dir); err == nil {
		t.Fatal("Expected a parse error")
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	if m.VM.MaxFrames != 1024 {
		t.Errorf("Expected default max-frames 1024, got %d", m.VM.MaxFrames)
	}
	if m.VM.MaxStack != 64*1024 {
		t.Errorf("Expected default max-stack 65536, got %d", m.VM.MaxStack)
	}
	if m.Cache.Enabled {
		t.Error("Expected caching to default off")
	}
	if m.Cache.Path != ".pohlang/cache.db" {
		t.Errorf("Unexpected default cache path %q", m.Cache.Path)
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"up\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("Expected the manifest two levels up to be found")
	}
	if m.Project.Name != "up" {
		t.Errorf("Found the wrong manifest: %+v", m.Project)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("Expected no manifest, got %+v", m)
	}
}
