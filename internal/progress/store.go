// Package progress persists which episodes have finished playing. Records
// are bounded: once the store is full the oldest record by insertion order
// is evicted, so the file never grows without limit.
package progress

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"

	"rerun/internal/fileutil"
	"rerun/internal/services"
)

// Record maps an episode identity to its last completion time.
type Record struct {
	Key         string    `json:"key"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store is the durable watch-progress file. Writes go through a sidecar
// file lock plus atomic replace so concurrent writers never interleave and
// readers never observe a partial file.
type Store struct {
	path       string
	maxRecords int
}

// NewStore returns a store at path keeping at most maxRecords entries.
// A non-positive maxRecords disables eviction.
func NewStore(path string, maxRecords int) *Store {
	return &Store{path: path, maxRecords: maxRecords}
}

// Load reads all records in insertion order. A missing file is an empty
// store; an unreadable or unparseable file is a fatal storage error because
// resuming from guessed progress would replay or skip content silently.
func (s *Store) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrFatalStorage, "progress", "load", "read watch progress file", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, services.Wrap(services.ErrFatalStorage, "progress", "load", "parse watch progress file", err)
	}
	return records, nil
}

// MarkCompleted records that the episode identified by key finished at the
// given time. An existing key is updated in place, keeping its insertion
// position; a new key appends and may evict the oldest record.
func (s *Store) MarkCompleted(key string, at time.Time) error {
	if key == "" {
		return services.Wrap(services.ErrValidation, "progress", "mark", "empty progress key", nil)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return services.Wrap(services.ErrTransient, "progress", "mark", "acquire progress lock", err)
	}
	defer lock.Unlock()

	records, err := s.Load()
	if err != nil {
		return err
	}

	updated := false
	for i := range records {
		if records[i].Key == key {
			records[i].CompletedAt = at
			updated = true
			break
		}
	}
	if !updated {
		records = append(records, Record{Key: key, CompletedAt: at})
	}
	if s.maxRecords > 0 && len(records) > s.maxRecords {
		records = records[len(records)-s.maxRecords:]
	}

	return s.write(records)
}

// LastCompleted returns the record with the most recent completion time.
func (s *Store) LastCompleted() (Record, bool, error) {
	records, err := s.Load()
	if err != nil {
		return Record{}, false, err
	}
	var latest Record
	found := false
	for _, record := range records {
		if !found || record.CompletedAt.After(latest.CompletedAt) {
			latest = record
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) write(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, "progress", "write", "encode watch progress", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "progress", "write", "write watch progress file", err)
	}
	return nil
}
