package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitProjectDirCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	if err := InitProjectDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range []string{"processes", "data", "logs", "upload"} {
		path := filepath.Join(dir, FreshetDir, sub)
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, FreshetDir, "config.yaml")); err != nil {
		t.Fatalf("default config should be written: %v", err)
	}
}

func TestInitProjectDirKeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	if err := InitProjectDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(dir, FreshetDir, "config.yaml")
	custom := []byte("version: 1\nexecutor:\n  mode: docker\n  image: alpine:3.20\n")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitProjectDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != string(custom) {
		t.Fatalf("existing config must not be overwritten: %v", err)
	}
}

func TestNewConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExecutorMode() != "local" {
		t.Fatalf("executor mode should default to local, got %s", cfg.ExecutorMode())
	}
	if cfg.MaxParallel() != defaultMaxParallel {
		t.Fatalf("max parallel should default to %d, got %d", defaultMaxParallel, cfg.MaxParallel())
	}
}

func TestNewConfigLoadsProjectFile(t *testing.T) {
	dir := t.TempDir()
	if err := InitProjectDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := "version: 1\nexecutor:\n  mode: docker\n  image: alpine:3.20\nruntime:\n  max_parallel: 2\n"
	if err := os.WriteFile(filepath.Join(dir, FreshetDir, "config.yaml"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExecutorMode() != "docker" || cfg.ExecutorImage() != "alpine:3.20" {
		t.Fatalf("unexpected executor config: %+v", cfg.Project.Executor)
	}
	if cfg.MaxParallel() != 2 {
		t.Fatalf("unexpected max parallel: %d", cfg.MaxParallel())
	}
}

func TestNewConfigRejectsBadExecutorMode(t *testing.T) {
	dir := t.TempDir()
	if err := InitProjectDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := "version: 1\nexecutor:\n  mode: teleport\n"
	if err := os.WriteFile(filepath.Join(dir, FreshetDir, "config.yaml"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewConfig(dir)
	if err == nil || !strings.Contains(err.Error(), "executor mode") {
		t.Fatalf("unexpected error: %v", err)
	}
}
