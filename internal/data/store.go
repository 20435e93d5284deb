package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrRecordNotFound is returned when no record exists under a given ID.
var ErrRecordNotFound = errors.New("data: record not found")

const recordFileName = "record.json"

// Store keeps one directory per record under its root: record.json holds
// the metadata, everything else in the directory is the run's working
// files.
type Store struct {
	root string
}

// NewStore builds a store rooted at dir.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// RecordDir returns the working directory for a record, creating nothing.
func (s *Store) RecordDir(id string) string {
	return filepath.Join(s.root, id)
}

// EnsureRecordDir creates the record's working directory.
func (s *Store) EnsureRecordDir(id string) (string, error) {
	dir := s.RecordDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("data: ensure record dir: %w", err)
	}
	return dir, nil
}

// Save persists the record metadata with best-effort atomicity.
func (s *Store) Save(record Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	dir, err := s.EnsureRecordDir(record.ID)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("data: encode record %s: %w", record.ID, err)
	}
	path := filepath.Join(dir, recordFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("data: write record %s: %w", record.ID, err)
	}
	return os.Rename(tmp, path)
}

// Load reads one record by ID.
func (s *Store) Load(id string) (Record, error) {
	raw, err := os.ReadFile(filepath.Join(s.RecordDir(id), recordFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return Record{}, fmt.Errorf("data: read record %s: %w", id, err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("data: decode record %s: %w", id, err)
	}
	return record, nil
}

// List returns every stored record ordered by creation time, oldest first.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("data: read store: %w", err)
	}
	var records []Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := s.Load(entry.Name())
		if err != nil {
			// A corrupt or half-written record must not take down the
			// whole listing.
			continue
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// FindByChecksum returns the newest finished record with a matching
// checksum, used for cached-persistence reuse.
func (s *Store) FindByChecksum(checksum string) (Record, bool, error) {
	if checksum == "" {
		return Record{}, false, nil
	}
	records, err := s.List()
	if err != nil {
		return Record{}, false, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if record.Checksum == checksum && record.Status == StatusDone {
			return record, true, nil
		}
	}
	return Record{}, false, nil
}

// Purge removes a record and its working directory.
func (s *Store) Purge(id string) error {
	if id == "" {
		return fmt.Errorf("data: record id is required")
	}
	return os.RemoveAll(s.RecordDir(id))
}
