package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
slug: sample-step
name: Sample step
version: "1.0.0"
type: "data:text:sample:"
run:
  program: echo sample
`

func TestLoadFileParsesDescriptors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.yml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	defs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 || defs[0].Process.Slug != "sample-step" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
	if defs[0].Path != filepath.Clean(path) {
		t.Fatalf("unexpected path: %s", defs[0].Path)
	}
}

func TestLoadFileRejectsDirectories(t *testing.T) {
	_, err := LoadFile(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadDirSkipsNonYAMLAndMissingDirs(t *testing.T) {
	defs, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil || defs != nil {
		t.Fatalf("missing dir should load nothing, got %v (%v)", defs, err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	second := strings.Replace(sampleYAML, "sample-step", "another-step", 1)
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(second), 0o644); err != nil {
		t.Fatal(err)
	}
	defs, err = LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected two definitions, got %d", len(defs))
	}
	if defs[0].Process.Slug != "another-step" || defs[1].Process.Slug != "sample-step" {
		t.Fatalf("definitions should sort by path: %+v", defs)
	}
}
