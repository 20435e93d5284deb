package process

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefinitionFile pairs a parsed process with its on-disk source.
type DefinitionFile struct {
	Process Process
	Path    string
}

// ParseYAML decodes one or more process descriptors from a YAML payload.
// A payload may hold a single mapping or a sequence of mappings, the way
// process collections are conventionally shipped.
func ParseYAML(data []byte) ([]Process, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("process: definition payload is empty")
	}
	var list []Process
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single Process
		if singleErr := yaml.Unmarshal(data, &single); singleErr != nil {
			return nil, fmt.Errorf("process: decode definition: %w", err)
		}
		list = []Process{single}
	}
	out := make([]Process, 0, len(list))
	for idx, proc := range list {
		normalized := proc.Normalized()
		if err := normalized.Validate(); err != nil {
			return nil, fmt.Errorf("process: definition[%d]: %w", idx, err)
		}
		out = append(out, normalized)
	}
	return out, nil
}

// LoadFile reads process descriptors from an explicit YAML file path.
func LoadFile(path string) ([]DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("process: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("process: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("process: read %s: %w", path, err)
	}
	procs, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("process: %s: %w", path, err)
	}
	files := make([]DefinitionFile, 0, len(procs))
	for _, proc := range procs {
		files = append(files, DefinitionFile{Process: proc, Path: filepath.Clean(path)})
	}
	return files, nil
}

// LoadDir scans a directory for *.yaml/*.yml process files and returns the
// parsed definitions sorted by path. Missing directories are treated as "no
// processes" to simplify startup.
func LoadDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("process: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !isYAMLFile(entry.Name()) {
			continue
		}
		files, err := LoadFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, files...)
	}
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
