package process

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maintains known processes keyed by slug. Registration is
// version-aware: a newer version replaces the stored descriptor, re-posting
// the same version requires force, and older versions are rejected.
type Registry struct {
	mu        sync.RWMutex
	processes map[string]Process
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{processes: map[string]Process{}}
}

// Register installs or upgrades a process descriptor.
func (r *Registry) Register(proc Process, force bool) error {
	normalized := proc.Normalized()
	if err := normalized.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, exists := r.processes[normalized.Slug]
	if exists {
		switch CompareVersions(normalized.Version, existing.Version) {
		case -1:
			return fmt.Errorf("process: %s version %s is older than registered %s", normalized.Slug, normalized.Version, existing.Version)
		case 0:
			if !force {
				return fmt.Errorf("process: %s version %s already registered (use force to replace)", normalized.Slug, normalized.Version)
			}
		}
	}
	r.processes[normalized.Slug] = normalized
	return nil
}

// MustRegister panics if registration fails. Intended for builtin processes
// wired at startup.
func (r *Registry) MustRegister(proc Process) {
	if err := r.Register(proc, false); err != nil {
		panic(err)
	}
}

// RegisterAll installs every definition, failing on the first conflict.
func (r *Registry) RegisterAll(defs []DefinitionFile, force bool) error {
	for _, def := range defs {
		if err := r.Register(def.Process, force); err != nil {
			return fmt.Errorf("process: %s: %w", def.Path, err)
		}
	}
	return nil
}

// Resolve returns the registered process for a slug.
func (r *Registry) Resolve(slug string) (Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	proc, ok := r.processes[slug]
	if !ok {
		return Process{}, fmt.Errorf("process: unknown slug %s", slug)
	}
	return proc, nil
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.processes))
	for slug := range r.processes {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
