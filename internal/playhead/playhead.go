// Package playhead persists the entry the playback loop is about to encode.
// The record is written before each encoder invocation so a crash mid-encode
// leaves an accurate last known position for the next start.
package playhead

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"rerun/internal/fileutil"
	"rerun/internal/services"
)

// Record identifies what a specific loop process was last playing.
type Record struct {
	EntryPath string    `json:"entry_path"`
	ProcessID string    `json:"process_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes the playhead file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Write replaces the playhead record atomically.
func (s *Store) Write(record Record) error {
	if record.EntryPath == "" {
		return services.Wrap(services.ErrValidation, "playhead", "write", "empty entry path", nil)
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, "playhead", "write", "encode playhead record", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "playhead", "write", "write playhead file", err)
	}
	return nil
}

// Read returns the persisted record. A missing file reports found=false; a
// corrupt file does too, after surfacing a transient error, because a stale
// or damaged playhead is recoverable via watch progress.
func (s *Store) Read() (Record, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, services.Wrap(services.ErrTransient, "playhead", "read", "read playhead file", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, services.Wrap(services.ErrTransient, "playhead", "read", "parse playhead file", err)
	}
	if record.EntryPath == "" {
		return Record{}, false, nil
	}
	return record, true, nil
}

// Clear removes the playhead file, used when the loop drains cleanly.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "playhead", "clear", "remove playhead file", err)
	}
	return nil
}
