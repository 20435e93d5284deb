package main

import (
	"os"
	"path/filepath"
	"testing"
)

const scriptedDefinition = `package main

func ProcessDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{
			"slug":    "scripted-step",
			"name":    "Scripted step",
			"version": "1.0.0",
			"type":    "data:text:scripted:",
			"run":     map[string]any{"program": "echo scripted"},
		},
	}, nil
}
`

const yamlDefinition = `slug: plain-step
name: Plain step
version: 1.0.0
type: "data:text:plain:"
run:
  program: echo plain
`

func TestInstallDefinitionFilesFromGoSource(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "scripted.go")
	if err := os.WriteFile(src, []byte(scriptedDefinition), 0o644); err != nil {
		t.Fatal(err)
	}

	defs, err := loadDefinitions(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 || defs[0].Process.Slug != "scripted-step" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}

	processesDir := t.TempDir()
	if err := installDefinitionFiles(processesDir, defs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	installed, err := os.ReadFile(filepath.Join(processesDir, "scripted.go"))
	if err != nil {
		t.Fatalf("installed file must exist: %v", err)
	}
	if string(installed) != scriptedDefinition {
		t.Fatalf("installed file must match the source")
	}
}

func TestInstallDefinitionFilesFromDirectory(t *testing.T) {
	srcDir := t.TempDir()
	for name, payload := range map[string]string{
		"scripted.go": scriptedDefinition,
		"plain.yaml":  yamlDefinition,
	} {
		if err := os.WriteFile(filepath.Join(srcDir, name), []byte(payload), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	defs, err := loadDefinitions(srcDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected both definitions, got %+v", defs)
	}

	processesDir := t.TempDir()
	if err := installDefinitionFiles(processesDir, defs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"scripted.go", "plain.yaml"} {
		if _, err := os.Stat(filepath.Join(processesDir, name)); err != nil {
			t.Fatalf("%s must be installed: %v", name, err)
		}
	}
}
