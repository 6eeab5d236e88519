package playlist_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rerun/internal/playlist"
	"rerun/internal/services"
)

func newStore(t *testing.T) (*playlist.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlist.txt")
	return playlist.NewStore(path), path
}

func TestStoreReadMissingFile(t *testing.T) {
	store, _ := newStore(t)
	entries, version, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty playlist, got %d entries", len(entries))
	}
	if !version.IsZero() {
		t.Fatalf("expected zero version, got %s", version)
	}
}

func TestStoreReadSkipsCommentsAndBlanks(t *testing.T) {
	store, path := newStore(t)
	content := "# channel lineup\n\nshows/Show/S01E01.mp4\n  \nUP NEXT\n# trailing note\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed playlist: %v", err)
	}

	entries, version, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if version.IsZero() {
		t.Fatal("expected non-zero version for existing file")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != playlist.KindEpisode || entries[1].Kind != playlist.KindUpNext {
		t.Fatalf("unexpected kinds: %s, %s", entries[0].Kind, entries[1].Kind)
	}
}

func TestStoreWriteRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	in := playlist.ClassifyAll([]string{
		"bumpers/up_next/next.mp4",
		"shows/Show/S01E01.mp4",
	})

	version, err := store.Write(in)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if version.IsZero() {
		t.Fatal("expected non-zero version after write")
	}

	out, readVersion, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !readVersion.Equal(version) {
		t.Fatalf("version mismatch: wrote %s, read %s", version, readVersion)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d entries, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("entry %d changed across round trip: %+v vs %+v", i, in[i], out[i])
		}
	}
}

func TestStoreReplaceIfAdvancesVersion(t *testing.T) {
	store, _ := newStore(t)
	base, err := store.Write(playlist.ClassifyAll([]string{"shows/Show/S01E01.mp4"}))
	if err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	next, err := store.ReplaceIf(base, playlist.ClassifyAll([]string{
		"shows/Show/S01E02.mp4",
		"shows/Show/S01E01.mp4",
	}))
	if err != nil {
		t.Fatalf("conditional replace failed: %v", err)
	}
	if next.Equal(base) {
		t.Fatalf("expected version to advance past %s", base)
	}

	entries, _, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Path != "shows/Show/S01E02.mp4" {
		t.Fatalf("replacement not applied: %+v", entries)
	}
}

func TestStoreReplaceIfRejectsStaleVersion(t *testing.T) {
	store, path := newStore(t)
	base, err := store.Write(playlist.ClassifyAll([]string{"shows/Show/S01E01.mp4"}))
	if err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	// Simulate an external edit by bumping the file's mtime.
	bumped := base.Add(2 * time.Second)
	if err := os.Chtimes(path, bumped, bumped); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	_, err = store.ReplaceIf(base, playlist.ClassifyAll([]string{"shows/Show/S01E02.mp4"}))
	if !services.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	entries, _, err := store.Read()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "shows/Show/S01E01.mp4" {
		t.Fatalf("rejected replace must leave playlist untouched: %+v", entries)
	}
}

func TestStoreReplaceIfOnMissingFile(t *testing.T) {
	store, _ := newStore(t)
	version, err := store.ReplaceIf(time.Time{}, playlist.ClassifyAll([]string{"shows/Show/S01E01.mp4"}))
	if err != nil {
		t.Fatalf("replace against zero version failed: %v", err)
	}
	if version.IsZero() {
		t.Fatal("expected non-zero version after create")
	}
}
