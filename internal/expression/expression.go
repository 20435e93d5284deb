// Package expression renders process programs. A process names the engine
// that interprets its program through the "expression-engine" requirement;
// processes without one get their program passed through verbatim. What a
// missing context attribute renders to is each engine's own policy.
package expression

import (
	"fmt"
	"sort"
	"sync"
)

// Context carries the values a program is rendered against, keyed by input
// field name.
type Context map[string]any

// Engine turns a templated program plus a context into a concrete script.
// Rendering must be pure: equal inputs yield byte-identical output.
type Engine interface {
	Name() string
	Render(program string, ctx Context) (string, error)
}

// Registry maintains known expression engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry returns a registry preloaded with the builtin engines.
func NewRegistry() *Registry {
	reg := &Registry{engines: map[string]Engine{}}
	reg.MustRegister(NewGoTemplateEngine())
	return reg
}

// Register installs an engine. Returns an error if the name already exists.
func (r *Registry) Register(engine Engine) error {
	if engine == nil {
		return fmt.Errorf("expression: engine is required")
	}
	name := engine.Name()
	if name == "" {
		return fmt.Errorf("expression: engine name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("expression: engine %s already registered", name)
	}
	r.engines[name] = engine
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(engine Engine) {
	if err := r.Register(engine); err != nil {
		panic(err)
	}
}

// Resolve returns the engine registered under name.
func (r *Registry) Resolve(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("expression: unknown engine %s", name)
	}
	return engine, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render evaluates a program through the named engine. An empty engine name
// returns the program untouched.
func (r *Registry) Render(engineName, program string, ctx Context) (string, error) {
	if engineName == "" {
		return program, nil
	}
	engine, err := r.Resolve(engineName)
	if err != nil {
		return "", err
	}
	return engine.Render(program, ctx)
}
