package playlist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"rerun/internal/fileutil"
	"rerun/internal/services"
)

// Store reads and rewrites the channel playlist file. The file's
// modification time doubles as its version token: every successful write
// produces a new version, and conditional writes reject when the version
// on disk no longer matches the one the caller read.
type Store struct {
	path string
}

// NewStore returns a store over the playlist file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the playlist file location.
func (s *Store) Path() string {
	return s.path
}

// Read loads and classifies the playlist, returning the entries and the
// version token observed. Blank lines and lines starting with '#' are
// skipped. A missing file yields an empty playlist with a zero version.
func (s *Store) Read() ([]Entry, time.Time, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, services.Wrap(services.ErrTransient, "playlist", "read", "read playlist file", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, time.Time{}, services.Wrap(services.ErrTransient, "playlist", "read", "stat playlist file", err)
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		entries = append(entries, Classify(line))
	}
	return entries, info.ModTime(), nil
}

// Write replaces the playlist unconditionally via atomic rename and returns
// the new version token.
func (s *Store) Write(entries []Entry) (time.Time, error) {
	if err := fileutil.WriteFileAtomic(s.path, serialize(entries), 0o644); err != nil {
		return time.Time{}, services.Wrap(services.ErrTransient, "playlist", "write", "write playlist file", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrTransient, "playlist", "write", "stat playlist file", err)
	}
	return info.ModTime(), nil
}

// ReplaceIf replaces the playlist only when the version on disk still equals
// base. The check and the write run under a sidecar file lock so concurrent
// conditional writers serialize; a stale base yields a conflict error and
// leaves the file untouched.
func (s *Store) ReplaceIf(base time.Time, entries []Entry) (time.Time, error) {
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return time.Time{}, services.Wrap(services.ErrTransient, "playlist", "replace", "acquire playlist lock", err)
	}
	defer lock.Unlock()

	current := time.Time{}
	info, err := os.Stat(s.path)
	switch {
	case err == nil:
		current = info.ModTime()
	case errors.Is(err, fs.ErrNotExist):
		// Treated as zero version.
	default:
		return time.Time{}, services.Wrap(services.ErrTransient, "playlist", "replace", "stat playlist file", err)
	}

	if !current.Equal(base) {
		return time.Time{}, services.Wrap(
			services.ErrConflict,
			"playlist",
			"replace",
			fmt.Sprintf("playlist changed since read (have %s, want %s)", current.Format(time.RFC3339Nano), base.Format(time.RFC3339Nano)),
			nil,
		)
	}

	return s.Write(entries)
}

func serialize(entries []Entry) []byte {
	var b strings.Builder
	for _, entry := range entries {
		line := entry.Raw
		if strings.TrimSpace(line) == "" {
			line = entry.Path
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
