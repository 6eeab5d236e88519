// Package rendercache indexes rendered bumper files in SQLite so identical
// render requests reuse earlier output. The cache is bounded: least recently
// used entries are evicted, and eviction deletes the backing file.
package rendercache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rerun/internal/services"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS rendered_bumpers (
	request_key TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	output_path TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	last_used   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rendered_last_used ON rendered_bumpers(last_used);
`

// Cache is the persistent render index.
type Cache struct {
	db         *sql.DB
	path       string
	maxEntries int
}

// Open initializes or connects to the cache database at dbPath, keeping at
// most maxEntries indexed files.
func Open(dbPath string, maxEntries int) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init render cache schema: %w", err)
	}

	if maxEntries <= 0 {
		maxEntries = 200
	}
	return &Cache{db: db, path: dbPath, maxEntries: maxEntries}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key derives a stable cache key from the render parameters.
func Key(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached output path for a request key when the backing
// file still exists. A hit refreshes the entry's recency; a stale entry
// whose file vanished is dropped.
func (c *Cache) Lookup(ctx context.Context, requestKey string) (string, bool, error) {
	ctx = ensureContext(ctx)
	var outputPath string
	err := retryOnBusy(ctx, func() error {
		row := c.db.QueryRowContext(ctx, `SELECT output_path FROM rendered_bumpers WHERE request_key = ?`, requestKey)
		return row.Scan(&outputPath)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, services.Wrap(services.ErrTransient, "rendercache", "lookup", "query render cache", err)
	}

	if info, statErr := os.Stat(outputPath); statErr != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		_ = c.remove(ctx, requestKey)
		return "", false, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.execWithRetry(ctx, `UPDATE rendered_bumpers SET last_used = ? WHERE request_key = ?`, now, requestKey); err != nil {
		return "", false, services.Wrap(services.ErrTransient, "rendercache", "lookup", "refresh cache entry", err)
	}
	return outputPath, true, nil
}

// Store records a rendered file for a request key and evicts the least
// recently used entries beyond the cache bound.
func (c *Cache) Store(ctx context.Context, requestKey, kind, outputPath string) error {
	ctx = ensureContext(ctx)
	if requestKey == "" || outputPath == "" {
		return services.Wrap(services.ErrValidation, "rendercache", "store", "empty request key or output path", nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := c.execWithRetry(ctx, `
INSERT INTO rendered_bumpers (request_key, kind, output_path, created_at, last_used)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(request_key) DO UPDATE SET output_path = excluded.output_path, last_used = excluded.last_used`,
		requestKey, kind, outputPath, now, now)
	if err != nil {
		return services.Wrap(services.ErrTransient, "rendercache", "store", "insert cache entry", err)
	}
	return c.evict(ctx)
}

// Len reports the number of indexed entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rendered_bumpers`).Scan(&count)
	})
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "rendercache", "len", "count cache entries", err)
	}
	return count, nil
}

func (c *Cache) evict(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `
SELECT request_key, output_path FROM rendered_bumpers
ORDER BY last_used DESC
LIMIT -1 OFFSET ?`, c.maxEntries)
	if err != nil {
		return services.Wrap(services.ErrTransient, "rendercache", "evict", "select eviction candidates", err)
	}
	type victim struct{ key, path string }
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.key, &v.path); err != nil {
			_ = rows.Close()
			return services.Wrap(services.ErrTransient, "rendercache", "evict", "scan eviction candidate", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Close(); err != nil {
		return services.Wrap(services.ErrTransient, "rendercache", "evict", "read eviction candidates", err)
	}

	for _, v := range victims {
		if err := c.remove(ctx, v.key); err != nil {
			return err
		}
		if err := os.Remove(v.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrTransient, "rendercache", "evict", "delete evicted file", err)
		}
	}
	return nil
}

func (c *Cache) remove(ctx context.Context, requestKey string) error {
	if err := c.execWithRetry(ctx, `DELETE FROM rendered_bumpers WHERE request_key = ?`, requestKey); err != nil {
		return services.Wrap(services.ErrTransient, "rendercache", "remove", "delete cache entry", err)
	}
	return nil
}

func (c *Cache) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx, query, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
