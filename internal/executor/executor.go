// Package executor runs rendered process scripts in a shell and harvests
// the outputs they announce through the result protocol.
package executor

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// RunSpec describes one script execution.
type RunSpec struct {
	// RecordID names the run; containerized executors use it as the
	// container name.
	RecordID string
	// Dir is the working directory the script runs in.
	Dir string
	// Script is the rendered program.
	Script string
	// Output receives the combined stdout/stderr stream.
	Output io.Writer
}

// Executor runs a script to completion and reports its exit code.
type Executor interface {
	Name() string
	Run(ctx context.Context, spec RunSpec) (int, error)
}

// scriptPrologue precedes every script: trace commands and disable brace
// expansion so rendered file arguments pass through literally.
const scriptPrologue = "set -x\nset +B\n"

const (
	saveCommand     = "re-save"
	saveFileCommand = "re-save-file"
)

// ParseResultLine interprets one output line as a result-protocol command.
// "re-save <name> <value>" stores a scalar or JSON value; "re-save-file
// <name> <path> [refs...]" stores a file descriptor. Anything else is plain
// log output (ok = false).
func ParseResultLine(line string) (string, any, bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, saveFileCommand+" "):
		fields := strings.Fields(trimmed)
		if len(fields) < 3 {
			return "", nil, false
		}
		desc := map[string]any{"file": fields[2]}
		if len(fields) > 3 {
			refs := make([]any, 0, len(fields)-3)
			for _, ref := range fields[3:] {
				refs = append(refs, ref)
			}
			desc["refs"] = refs
		}
		return fields[1], desc, true
	case strings.HasPrefix(trimmed, saveCommand+" "):
		parts := strings.SplitN(trimmed, " ", 3)
		if len(parts) < 3 {
			return "", nil, false
		}
		name := parts[1]
		raw := strings.TrimSpace(parts[2])
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		return name, value, true
	default:
		return "", nil, false
	}
}

// ResultWriter tees an output stream while collecting result-protocol
// commands. Safe for the single writer the executors drive.
type ResultWriter struct {
	mu      sync.Mutex
	next    io.Writer
	pending strings.Builder
	outputs map[string]any
}

// NewResultWriter wraps next; pass io.Discard to only collect results.
func NewResultWriter(next io.Writer) *ResultWriter {
	return &ResultWriter{next: next, outputs: map[string]any{}}
}

// Write implements io.Writer.
func (w *ResultWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending.Write(p)
	for {
		buffered := w.pending.String()
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		w.consume(buffered[:idx])
		w.pending.Reset()
		w.pending.WriteString(buffered[idx+1:])
	}
	if w.next == nil {
		return len(p), nil
	}
	return w.next.Write(p)
}

// Flush processes any trailing line without a newline. Call after the
// script finishes.
func (w *ResultWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Len() > 0 {
		w.consume(w.pending.String())
		w.pending.Reset()
	}
}

// Outputs returns the collected output values.
func (w *ResultWriter) Outputs() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]any, len(w.outputs))
	for key, value := range w.outputs {
		out[key] = value
	}
	return out
}

func (w *ResultWriter) consume(line string) {
	// Scripts run under set -x, so every command is echoed with a "+ "
	// prefix before it executes; only the echoed form is authoritative
	// output, the traced form is skipped.
	if strings.HasPrefix(strings.TrimSpace(line), "+") {
		return
	}
	if name, value, ok := ParseResultLine(line); ok {
		w.outputs[name] = value
	}
}
