// Package data models the records produced by process runs and their
// on-disk store.
package data

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status tracks a record through its lifecycle.
type Status string

const (
	// StatusPreparing means the record exists but inputs are still being
	// validated and hydrated.
	StatusPreparing Status = "preparing"
	// StatusWaiting means the record is queued for execution.
	StatusWaiting Status = "waiting"
	// StatusProcessing means the rendered program is running.
	StatusProcessing Status = "processing"
	// StatusDone means the run finished and outputs validated.
	StatusDone Status = "done"
	// StatusError means the run failed; Error carries the reason.
	StatusError Status = "error"
)

// Record is one concrete run of a process: the inputs it was given and the
// outputs it produced.
type Record struct {
	ID             string         `json:"id"`
	Name           string         `json:"name,omitempty"`
	ProcessSlug    string         `json:"process_slug"`
	ProcessVersion string         `json:"process_version"`
	ProcessType    string         `json:"process_type,omitempty"`
	Checksum       string         `json:"checksum,omitempty"`
	Status         Status         `json:"status"`
	Input          map[string]any `json:"input,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	RC             int            `json:"rc"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      time.Time      `json:"started_at,omitempty"`
	FinishedAt     time.Time      `json:"finished_at,omitempty"`
}

// NewRecord mints a record for one run of a process.
func NewRecord(processSlug, processVersion, processType string, input map[string]any, now time.Time) Record {
	return Record{
		ID:             uuid.NewString(),
		ProcessSlug:    processSlug,
		ProcessVersion: processVersion,
		ProcessType:    processType,
		Status:         StatusPreparing,
		Input:          input,
		Output:         map[string]any{},
		CreatedAt:      now,
	}
}

// Validate ensures the record carries the fields the store depends on.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("data: record id is required")
	}
	if r.ProcessSlug == "" {
		return fmt.Errorf("data: record %s: process slug is required", r.ID)
	}
	switch r.Status {
	case StatusPreparing, StatusWaiting, StatusProcessing, StatusDone, StatusError:
	default:
		return fmt.Errorf("data: record %s: unknown status %q", r.ID, r.Status)
	}
	return nil
}

// Finished reports whether the record reached a terminal status.
func (r Record) Finished() bool {
	return r.Status == StatusDone || r.Status == StatusError
}
