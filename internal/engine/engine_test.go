package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freshet-io/freshet/internal/archive"
	"github.com/freshet-io/freshet/internal/data"
	"github.com/freshet-io/freshet/internal/executor"
	"github.com/freshet-io/freshet/internal/expression"
	"github.com/freshet-io/freshet/internal/process"
	"github.com/freshet-io/freshet/internal/schema"
)

func boolPtr(v bool) *bool { return &v }

// fakeExecutor records the scripts it was asked to run and emits canned
// protocol output instead of spawning a shell.
type fakeExecutor struct {
	mu      sync.Mutex
	scripts []string
	output  string
	files   []string
	rc      int
	err     error
}

func (f *fakeExecutor) Name() string { return "fake" }

func (f *fakeExecutor) Run(_ context.Context, spec executor.RunSpec) (int, error) {
	f.mu.Lock()
	f.scripts = append(f.scripts, spec.Script)
	f.mu.Unlock()
	for _, name := range f.files {
		if err := os.WriteFile(filepath.Join(spec.Dir, name), []byte("x"), 0o644); err != nil {
			return -1, err
		}
	}
	if spec.Output != nil && f.output != "" {
		if _, err := spec.Output.Write([]byte(f.output)); err != nil {
			return -1, err
		}
	}
	return f.rc, f.err
}

func (f *fakeExecutor) lastScript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scripts) == 0 {
		return ""
	}
	return f.scripts[len(f.scripts)-1]
}

func wordCountProcess() process.Process {
	return process.Process{
		Slug:    "word-count",
		Name:    "Word count",
		Version: "1.0.0",
		Type:    "data:text:wordcount:",
		Input: []schema.Field{
			{Name: "text", Type: schema.TypeString},
		},
		Output: []schema.Field{
			{Name: "words", Type: schema.TypeInteger},
		},
		Run: process.Run{Program: `echo "re-save words 3"`},
	}.Normalized()
}

func newTestEngine(t *testing.T, procs []process.Process, exec executor.Executor) (*Engine, *data.Store) {
	t.Helper()
	registry := process.NewRegistry()
	for _, proc := range procs {
		if err := registry.Register(proc, false); err != nil {
			t.Fatalf("register %s: %v", proc.Slug, err)
		}
	}
	store := data.NewStore(t.TempDir())
	engine, err := New(registry, expression.NewRegistry(), store, WithExecutor(exec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return engine, store
}

func TestRunHappyPath(t *testing.T) {
	exec := &fakeExecutor{output: "re-save words 3\n"}
	engine, store := newTestEngine(t, []process.Process{wordCountProcess()}, exec)

	record, err := engine.Run(context.Background(), RunRequest{
		Slug:  "word-count",
		Input: map[string]any{"text": "one two three"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != data.StatusDone {
		t.Fatalf("unexpected status: %s (%s)", record.Status, record.Error)
	}
	if record.Output["words"] != float64(3) {
		t.Fatalf("unexpected outputs: %#v", record.Output)
	}
	if record.Checksum == "" {
		t.Fatalf("record must carry a checksum")
	}

	persisted, err := store.Load(record.ID)
	if err != nil || persisted.Status != data.StatusDone {
		t.Fatalf("record should persist as done: %+v (%v)", persisted, err)
	}
	stdout := filepath.Join(store.RecordDir(record.ID), "stdout.txt")
	if _, err := os.Stat(stdout); err != nil {
		t.Fatalf("stdout should be captured: %v", err)
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	engine, _ := newTestEngine(t, []process.Process{wordCountProcess()}, &fakeExecutor{})
	_, err := engine.Run(context.Background(), RunRequest{Slug: "word-count"})
	if !errors.Is(err, schema.ErrRequiredMissing) {
		t.Fatalf("expected ErrRequiredMissing, got %v", err)
	}
}

func TestRunUnknownProcess(t *testing.T) {
	engine, _ := newTestEngine(t, nil, &fakeExecutor{})
	_, err := engine.Run(context.Background(), RunRequest{Slug: "ghost"})
	if err == nil || !strings.Contains(err.Error(), "unknown slug") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunNonZeroExitMarksError(t *testing.T) {
	exec := &fakeExecutor{rc: 2}
	engine, store := newTestEngine(t, []process.Process{wordCountProcess()}, exec)

	record, err := engine.Run(context.Background(), RunRequest{
		Slug:  "word-count",
		Input: map[string]any{"text": "x"},
	})
	if err == nil || !strings.Contains(err.Error(), "exited with code 2") {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != data.StatusError || record.RC != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
	persisted, loadErr := store.Load(record.ID)
	if loadErr != nil || persisted.Status != data.StatusError {
		t.Fatalf("error status should persist: %+v (%v)", persisted, loadErr)
	}
}

func TestRunDropsUndeclaredOutputs(t *testing.T) {
	exec := &fakeExecutor{output: "re-save progress 0.5\nre-save words 3\nre-save proc.rc 0\n"}
	engine, _ := newTestEngine(t, []process.Process{wordCountProcess()}, exec)

	record, err := engine.Run(context.Background(), RunRequest{
		Slug:  "word-count",
		Input: map[string]any{"text": "x"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != data.StatusDone {
		t.Fatalf("unexpected status: %s (%s)", record.Status, record.Error)
	}
	if record.Output["words"] != float64(3) {
		t.Fatalf("declared output must survive: %#v", record.Output)
	}
	for _, name := range []string{"progress", "proc.rc"} {
		if _, ok := record.Output[name]; ok {
			t.Fatalf("undeclared output %q must be dropped: %#v", name, record.Output)
		}
	}
}

func TestRunMissingDeclaredOutputMarksError(t *testing.T) {
	exec := &fakeExecutor{output: "no protocol lines here\n"}
	engine, _ := newTestEngine(t, []process.Process{wordCountProcess()}, exec)

	record, err := engine.Run(context.Background(), RunRequest{
		Slug:  "word-count",
		Input: map[string]any{"text": "x"},
	})
	if !errors.Is(err, schema.ErrRequiredMissing) {
		t.Fatalf("expected ErrRequiredMissing, got %v", err)
	}
	if record.Status != data.StatusError {
		t.Fatalf("unexpected status: %s", record.Status)
	}
}

func TestRunCachedPersistenceReusesChecksum(t *testing.T) {
	proc := wordCountProcess()
	proc.Persistence = process.PersistenceCached
	exec := &fakeExecutor{output: "re-save words 3\n"}
	engine, _ := newTestEngine(t, []process.Process{proc}, exec)

	req := RunRequest{Slug: "word-count", Input: map[string]any{"text": "abc"}}
	first, err := engine.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("cached run should reuse the finished record")
	}
	if len(exec.scripts) != 1 {
		t.Fatalf("script should run once, ran %d times", len(exec.scripts))
	}

	other := RunRequest{Slug: "word-count", Input: map[string]any{"text": "different"}}
	third, err := engine.Run(context.Background(), other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("different inputs must not share a record")
	}
}

func TestRunRendersDataName(t *testing.T) {
	proc := wordCountProcess()
	proc.DataName = "Count of {{.text}}"
	proc.Requirements = map[string]string{"expression-engine": "gotpl"}
	proc.Run.Program = `echo "re-save words 3"`
	exec := &fakeExecutor{output: "re-save words 3\n"}
	engine, _ := newTestEngine(t, []process.Process{proc}, exec)

	record, err := engine.Run(context.Background(), RunRequest{
		Slug:  "word-count",
		Input: map[string]any{"text": "notes"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Name != "Count of notes" {
		t.Fatalf("unexpected record name: %q", record.Name)
	}
}

func TestArchiverRunRendersTraversalOrder(t *testing.T) {
	archiver := archive.Definition()
	producer := process.Process{
		Slug:    "producer",
		Name:    "Producer",
		Version: "1.0.0",
		Type:    "data:text:producer:",
		Output: []schema.Field{
			{Name: "out", Type: schema.TypeFile, Required: boolPtr(false)},
		},
		Run: process.Run{Program: "true"},
	}.Normalized()

	exec := &fakeExecutor{
		output: "re-save-file archive archive.zip\n",
		files:  []string{"archive.zip"},
	}
	engine, store := newTestEngine(t, []process.Process{archiver, producer}, exec)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var refs []string
	for i, name := range []string{"first.txt", "second.txt"} {
		record := data.NewRecord("producer", "1.0.0", "data:text:producer:", nil, now.Add(time.Duration(i)*time.Minute))
		record.Status = data.StatusDone
		record.Output = map[string]any{"out": map[string]any{"file": name}}
		if err := store.Save(record); err != nil {
			t.Fatalf("save producer record: %v", err)
		}
		refs = append(refs, record.ID)
	}

	record, err := engine.Run(context.Background(), RunRequest{
		Slug: "archiver",
		Input: map[string]any{
			"data":   []any{refs[0], refs[1]},
			"fields": []any{"out"},
			"j":      true,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v (%s)", err, record.Error)
	}
	if record.Status != data.StatusDone {
		t.Fatalf("unexpected status: %s (%s)", record.Status, record.Error)
	}

	wantFirst := filepath.Join(store.RecordDir(refs[0]), "first.txt")
	wantSecond := filepath.Join(store.RecordDir(refs[1]), "second.txt")
	want := fmt.Sprintf("zip -0 -j archive.zip %s %s && re-save-file archive archive.zip", wantFirst, wantSecond)
	if exec.lastScript() != want {
		t.Fatalf("unexpected script:\n got: %q\nwant: %q", exec.lastScript(), want)
	}

	archiveOut, ok := record.Output["archive"].(map[string]any)
	if !ok || archiveOut["file"] != "archive.zip" {
		t.Fatalf("unexpected archive output: %#v", record.Output)
	}
	if archiveOut["size"] != int64(1) {
		t.Fatalf("archive size should be hydrated: %#v", archiveOut)
	}
}

func TestRunRefusesUnfinishedReferences(t *testing.T) {
	archiver := archive.Definition()
	exec := &fakeExecutor{}
	engine, store := newTestEngine(t, []process.Process{archiver}, exec)

	pending := data.NewRecord("producer", "1.0.0", "data:text:producer:", nil, time.Now())
	pending.Status = data.StatusProcessing
	if err := store.Save(pending); err != nil {
		t.Fatal(err)
	}

	record, err := engine.Run(context.Background(), RunRequest{
		Slug: "archiver",
		Input: map[string]any{
			"data":   []any{pending.ID},
			"fields": []any{"out"},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "not done") {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != data.StatusError {
		t.Fatalf("unexpected status: %s", record.Status)
	}
}

func TestRenderDoesNotExecute(t *testing.T) {
	exec := &fakeExecutor{}
	engine, _ := newTestEngine(t, []process.Process{wordCountProcess()}, exec)
	script, err := engine.Render(RunRequest{Slug: "word-count", Input: map[string]any{"text": "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if script != `echo "re-save words 3"` {
		t.Fatalf("unexpected script: %q", script)
	}
	if len(exec.scripts) != 0 {
		t.Fatalf("render must not execute")
	}
}

func TestRunAllRespectsPriorityAndLimit(t *testing.T) {
	urgent := wordCountProcess()
	urgent.Slug = "urgent-count"
	urgent.Priority = process.PriorityHigh

	exec := &fakeExecutor{output: "re-save words 3\n"}
	registry := process.NewRegistry()
	for _, proc := range []process.Process{wordCountProcess(), urgent} {
		if err := registry.Register(proc, false); err != nil {
			t.Fatal(err)
		}
	}
	store := data.NewStore(t.TempDir())
	engine, err := New(registry, expression.NewRegistry(), store, WithExecutor(exec), WithMaxParallel(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := engine.RunAll(context.Background(), []RunRequest{
		{Slug: "word-count", Input: map[string]any{"text": "a"}},
		{Slug: "urgent-count", Input: map[string]any{"text": "b"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two records, got %d", len(records))
	}
	if records[0].ProcessSlug != "word-count" || records[1].ProcessSlug != "urgent-count" {
		t.Fatalf("results must align with request order: %+v", records)
	}
	all, err := store.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two persisted records, got %d", len(all))
	}
	// With a single slot the high-priority request runs first.
	if all[0].ProcessSlug != "urgent-count" {
		t.Fatalf("high priority should dispatch first, got %s", all[0].ProcessSlug)
	}
}
