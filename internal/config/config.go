// internal/config/config.go
//
// This package handles configuration and the .freshet directory structure.
// Every project that uses freshet gets a .freshet/ folder created in its
// root: registered processes, data records, logs, and uploads all live
// underneath it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FreshetDir is the name of the directory we create in each project.
	FreshetDir = ".freshet"

	defaultMaxParallel = 4
)

const defaultProjectConfigYAML = `# freshet project configuration
version: 1

executor:
  # mode selects where scripts run: local (host shell) or docker.
  mode: local
  # image is the container image used when mode is docker.
  image: ubuntu:24.04

runtime:
  # max_parallel caps how many records may process at once.
  max_parallel: 4
`

// ExecutorConfig selects where rendered scripts run.
type ExecutorConfig struct {
	Mode  string `yaml:"mode"`
	Image string `yaml:"image,omitempty"`
}

// RuntimeConfig captures dispatch preferences.
type RuntimeConfig struct {
	MaxParallel int `yaml:"max_parallel"`
}

// ProjectConfig models .freshet/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Executor ExecutorConfig `yaml:"executor"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

// Config holds the runtime configuration for freshet.
type Config struct {
	// ProjectDir is the directory where the user ran `freshet` from.
	ProjectDir string

	// FreshetProjectDir is ProjectDir/.freshet.
	FreshetProjectDir string

	Project ProjectConfig
}

// InitProjectDir creates the .freshet directory structure in the given
// project directory.
//
// Structure created:
// .freshet/
// ├── processes/    <- registered process descriptors (YAML and Go)
// ├── data/         <- one directory per data record
// ├── logs/         <- runner log
// └── upload/       <- staged input files
func InitProjectDir(projectDir string) error {
	freshetDir := filepath.Join(projectDir, FreshetDir)

	dirs := []string{
		filepath.Join(freshetDir, "processes"),
		filepath.Join(freshetDir, "data"),
		filepath.Join(freshetDir, "logs"),
		filepath.Join(freshetDir, "upload"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(freshetDir, "config.yaml"))
}

// NewConfig creates a Config populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	if strings.TrimSpace(projectDir) == "" {
		return nil, fmt.Errorf("config: project directory is required")
	}
	cfg := &Config{
		ProjectDir:        projectDir,
		FreshetProjectDir: filepath.Join(projectDir, FreshetDir),
		Project:           defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProcessesDir returns the directory that holds registered processes.
func (c *Config) ProcessesDir() string {
	return filepath.Join(c.FreshetProjectDir, "processes")
}

// DataDir returns the root of the data record store.
func (c *Config) DataDir() string {
	return filepath.Join(c.FreshetProjectDir, "data")
}

// UploadDir returns the directory for staged input files.
func (c *Config) UploadDir() string {
	return filepath.Join(c.FreshetProjectDir, "upload")
}

// ProjectConfigPath returns the on-disk location for the config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.FreshetProjectDir, "config.yaml")
}

// ExecutorMode returns the configured executor mode.
func (c *Config) ExecutorMode() string {
	return c.Project.Executor.Mode
}

// ExecutorImage returns the configured container image.
func (c *Config) ExecutorImage() string {
	return c.Project.Executor.Image
}

// MaxParallel returns the configured dispatch cap.
func (c *Config) MaxParallel() int {
	return c.Project.Runtime.MaxParallel
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Executor: ExecutorConfig{
			Mode: "local",
		},
		Runtime: RuntimeConfig{
			MaxParallel: defaultMaxParallel,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Executor.Mode) == "" {
		pc.Executor.Mode = "local"
	}
	if pc.Runtime.MaxParallel == 0 {
		pc.Runtime.MaxParallel = defaultMaxParallel
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Executor.Mode {
	case "local", "docker":
	default:
		return fmt.Errorf("executor mode must be local or docker, got %q", pc.Executor.Mode)
	}
	if pc.Runtime.MaxParallel < 0 {
		return fmt.Errorf("runtime max_parallel must be >= 0")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
