// Package engine dispatches process runs: it validates inputs, renders the
// process program, executes it, and persists the resulting record.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/freshet-io/freshet/internal/data"
	"github.com/freshet-io/freshet/internal/executor"
	"github.com/freshet-io/freshet/internal/expression"
	"github.com/freshet-io/freshet/internal/logging"
	"github.com/freshet-io/freshet/internal/process"
	"github.com/freshet-io/freshet/internal/schema"
)

const stdoutFileName = "stdout.txt"

// Engine coordinates process resolution, rendering, and execution while
// persisting record state.
type Engine struct {
	registry    *process.Registry
	engines     *expression.Registry
	store       *data.Store
	exec        executor.Executor
	logger      *logging.Logger
	clock       func() time.Time
	maxParallel int
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithExecutor selects where rendered scripts run.
func WithExecutor(exec executor.Executor) Option {
	return func(e *Engine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithLogger attaches the project log.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxParallel caps how many records RunAll processes at once. Values
// <= 0 disable the limit.
func WithMaxParallel(limit int) Option {
	return func(e *Engine) {
		e.maxParallel = limit
	}
}

// New wires an engine to the process registry, expression engines, and
// record store.
func New(registry *process.Registry, engines *expression.Registry, store *data.Store, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: process registry is required")
	}
	if engines == nil {
		return nil, fmt.Errorf("engine: expression registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: record store is required")
	}
	engine := &Engine{
		registry: registry,
		engines:  engines,
		store:    store,
		exec:     executor.NewLocal(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// RunRequest asks for one run of a registered process.
type RunRequest struct {
	Slug string
	// Name overrides the record name; empty renders the process data_name
	// template, falling back to the slug.
	Name  string
	Input map[string]any
}

// Run executes a process to completion and returns the persisted record.
// On failure the returned record carries the error status alongside the
// error itself.
func (e *Engine) Run(ctx context.Context, req RunRequest) (data.Record, error) {
	proc, err := e.registry.Resolve(req.Slug)
	if err != nil {
		return data.Record{}, err
	}

	input := cloneInput(req.Input)
	schema.ApplyDefaults(input, proc.Input)
	if err := schema.Validate(input, proc.Input, schema.ValidateOptions{TestRequired: true}); err != nil {
		return data.Record{}, fmt.Errorf("engine: %s input: %w", proc.Slug, err)
	}

	checksum := process.Checksum(input, proc.Slug, proc.Version)
	if proc.Persistence == process.PersistenceCached || proc.Persistence == process.PersistenceTemp {
		if cached, ok, err := e.store.FindByChecksum(checksum); err != nil {
			return data.Record{}, err
		} else if ok {
			e.logf("run %s: reusing record %s (checksum %s)", proc.Slug, cached.ID, checksum)
			return cached, nil
		}
	}

	record := data.NewRecord(proc.Slug, proc.Version, proc.Type, input, e.now())
	record.Checksum = checksum
	record.Name = e.recordName(proc, req, input)
	if err := e.store.Save(record); err != nil {
		return data.Record{}, err
	}

	script, err := e.renderScript(proc, input)
	if err != nil {
		return e.fail(record, err)
	}

	dir, err := e.store.EnsureRecordDir(record.ID)
	if err != nil {
		return e.fail(record, err)
	}

	record.Status = data.StatusProcessing
	record.StartedAt = e.now()
	if err := e.store.Save(record); err != nil {
		return data.Record{}, err
	}
	e.logf("run %s: record %s processing via %s", proc.Slug, record.ID, e.exec.Name())

	rc, outputs, runErr := e.execute(ctx, record, dir, script)
	record.RC = rc
	if runErr != nil {
		return e.fail(record, runErr)
	}
	if rc != 0 {
		return e.fail(record, fmt.Errorf("engine: %s: script exited with code %d", proc.Slug, rc))
	}

	// Scripts may announce bookkeeping values the output schema does not
	// declare; those are dropped rather than failing the run.
	for name := range outputs {
		if _, ok := schema.FieldByName(proc.Output, name); !ok {
			e.logf("run %s: record %s: dropping undeclared output %q", proc.Slug, record.ID, name)
			delete(outputs, name)
		}
	}

	if err := schema.Validate(outputs, proc.Output, schema.ValidateOptions{TestRequired: true, PathPrefix: dir}); err != nil {
		return e.fail(record, fmt.Errorf("engine: %s output: %w", proc.Slug, err))
	}
	if err := data.HydrateSizes(outputs, proc.Output, dir); err != nil {
		return e.fail(record, err)
	}

	record.Output = outputs
	record.Status = data.StatusDone
	record.FinishedAt = e.now()
	if err := e.store.Save(record); err != nil {
		return data.Record{}, err
	}
	e.logf("run %s: record %s done", proc.Slug, record.ID)
	return record, nil
}

// RunAll dispatches a batch of runs, high-priority processes first, with at
// most maxParallel in flight. The returned records align with the request
// order; the first error is reported after every run settles.
func (e *Engine) RunAll(ctx context.Context, reqs []RunRequest) ([]data.Record, error) {
	order, err := e.dispatchOrder(reqs)
	if err != nil {
		return nil, err
	}
	records := make([]data.Record, len(reqs))
	group, ctx := errgroup.WithContext(ctx)
	if e.maxParallel > 0 {
		group.SetLimit(e.maxParallel)
	}
	for _, idx := range order {
		idx := idx
		group.Go(func() error {
			record, err := e.Run(ctx, reqs[idx])
			records[idx] = record
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return records, err
	}
	return records, nil
}

// Render resolves a process and renders its program without executing it.
func (e *Engine) Render(req RunRequest) (string, error) {
	proc, err := e.registry.Resolve(req.Slug)
	if err != nil {
		return "", err
	}
	input := cloneInput(req.Input)
	schema.ApplyDefaults(input, proc.Input)
	if err := schema.Validate(input, proc.Input, schema.ValidateOptions{TestRequired: true}); err != nil {
		return "", fmt.Errorf("engine: %s input: %w", proc.Slug, err)
	}
	return e.renderScript(proc, input)
}

func (e *Engine) renderScript(proc process.Process, input map[string]any) (string, error) {
	hydrated := cloneInput(input)
	if err := data.HydrateInputReferences(hydrated, proc.Input, e.resolveFinished); err != nil {
		return "", err
	}
	script, err := e.engines.Render(proc.ExpressionEngine(), proc.Run.Program, expression.Context(hydrated))
	if err != nil {
		return "", fmt.Errorf("engine: %s: %w", proc.Slug, err)
	}
	return script, nil
}

// resolveFinished loads referenced records and insists they are done:
// half-produced outputs must never leak into another run's script.
func (e *Engine) resolveFinished(id string) (data.Record, error) {
	record, err := e.store.Load(id)
	if err != nil {
		return data.Record{}, err
	}
	if record.Status != data.StatusDone {
		return data.Record{}, fmt.Errorf("engine: referenced record %s is %s, not done", id, record.Status)
	}
	// Output paths are stored relative to the record dir; consumers of the
	// reference need them resolved.
	if proc, procErr := e.registry.Resolve(record.ProcessSlug); procErr == nil {
		output := cloneInput(record.Output)
		if err := data.HydratePaths(output, proc.Output, e.store.RecordDir(record.ID)); err == nil {
			record.Output = output
		}
	}
	return record, nil
}

func (e *Engine) execute(ctx context.Context, record data.Record, dir, script string) (int, map[string]any, error) {
	stdout, err := os.Create(filepath.Join(dir, stdoutFileName))
	if err != nil {
		return -1, nil, fmt.Errorf("engine: create stdout file: %w", err)
	}
	defer stdout.Close()

	results := executor.NewResultWriter(stdout)
	rc, err := e.exec.Run(ctx, executor.RunSpec{
		RecordID: record.ID,
		Dir:      dir,
		Script:   script,
		Output:   results,
	})
	results.Flush()
	if err != nil {
		return rc, nil, err
	}
	return rc, results.Outputs(), nil
}

func (e *Engine) recordName(proc process.Process, req RunRequest, input map[string]any) string {
	if req.Name != "" {
		return req.Name
	}
	if proc.DataName != "" {
		name, err := e.engines.Render(proc.ExpressionEngine(), proc.DataName, expression.Context(input))
		if err == nil && name != "" {
			return name
		}
	}
	return proc.Slug
}

func (e *Engine) dispatchOrder(reqs []RunRequest) ([]int, error) {
	type entry struct {
		idx      int
		priority process.Priority
	}
	entries := make([]entry, len(reqs))
	for i, req := range reqs {
		proc, err := e.registry.Resolve(req.Slug)
		if err != nil {
			return nil, err
		}
		entries[i] = entry{idx: i, priority: proc.Priority}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority == process.PriorityHigh && entries[j].priority != process.PriorityHigh
	})
	order := make([]int, len(entries))
	for i, item := range entries {
		order[i] = item.idx
	}
	return order, nil
}

func (e *Engine) fail(record data.Record, cause error) (data.Record, error) {
	record.Status = data.StatusError
	record.Error = cause.Error()
	record.FinishedAt = e.now()
	if saveErr := e.store.Save(record); saveErr != nil {
		return record, fmt.Errorf("%w (and saving the record failed: %v)", cause, saveErr)
	}
	e.logf("run %s: record %s failed: %v", record.ProcessSlug, record.ID, cause)
	return record, cause
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) logf(format string, args ...any) {
	e.logger.Printf(format, args...)
}

func cloneInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
