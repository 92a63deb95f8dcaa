package yaml

import (
	"os"
	"path/filepath"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"
)

type sample struct {
	Backend string `yaml:"backend"`
	Timeout int    `yaml:"timeout_sec"`
}

func TestAtomicWrite_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := AtomicWrite(path, &sample{Backend: "mock", Timeout: 30}); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var result sample
	if err := yamlv3.Unmarshal(content, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if result.Backend != "mock" || result.Timeout != 30 {
		t.Errorf("got %+v", result)
	}
}

func TestAtomicWrite_CreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := AtomicWrite(path, map[string]string{"backend": "mock"}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, map[string]string{"backend": "script"}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	var bak map[string]string
	if err := ReadFile(path+".bak", &bak); err != nil {
		t.Fatalf("read .bak failed: %v", err)
	}
	if bak["backend"] != "mock" {
		t.Errorf("backup backend: got %q, want %q", bak["backend"], "mock")
	}

	var cur map[string]string
	if err := ReadFile(path, &cur); err != nil {
		t.Fatalf("read current failed: %v", err)
	}
	if cur["backend"] != "script" {
		t.Errorf("current backend: got %q, want %q", cur["backend"], "script")
	}
}

func TestAtomicWriteRaw_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	err := AtomicWriteRaw(path, []byte(":\n  invalid: [\n    broken"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after failed write")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}
}

func TestReadFile_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("backend: mock\nbakend: typo\n"), 0644)

	var s sample
	if err := ReadFile(path, &s); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestReadFile_EmptyKeepsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, nil, 0644)

	s := sample{Backend: "mock"}
	if err := ReadFile(path, &s); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if s.Backend != "mock" {
		t.Errorf("expected untouched value, got %+v", s)
	}
}

func TestReadFile_Missing(t *testing.T) {
	var s sample
	err := ReadFile(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
