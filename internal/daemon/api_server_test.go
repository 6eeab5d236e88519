package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"rerun/internal/api"
	"rerun/internal/logging"
	"rerun/internal/testsupport"
)

func newTestServer(t *testing.T) (*apiServer, *Daemon) {
	t.Helper()
	d, err := New(testsupport.NewConfig(t), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return &apiServer{daemon: d, service: d.service, logger: logging.NewNop()}, d
}

func seedPlaylist(t *testing.T, d *Daemon, lines string) time.Time {
	t.Helper()
	if err := os.WriteFile(d.cfg.Paths.PlaylistPath, []byte(lines), 0o644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	_, version, err := d.store.Read()
	if err != nil {
		t.Fatalf("read playlist: %v", err)
	}
	return version
}

func TestAPIServerStatus(t *testing.T) {
	srv, d := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var status Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.PlaylistPath != d.cfg.Paths.PlaylistPath {
		t.Fatalf("unexpected playlist path: %q", status.PlaylistPath)
	}
	if status.Running {
		t.Fatal("daemon was never started")
	}
}

func TestAPIServerPlaylistSnapshot(t *testing.T) {
	srv, d := newTestServer(t)
	seedPlaylist(t, d, "UP NEXT\n/shows/trek/S01E01.mkv\n/shows/trek/S01E02.mkv\n")

	req := httptest.NewRequest(http.MethodGet, "/api/playlist/snapshot?limit=5", nil)
	w := httptest.NewRecorder()
	srv.handlePlaylist(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var snapshot api.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if snapshot.TotalSegments != 2 {
		t.Fatalf("expected 2 segments, got %d", snapshot.TotalSegments)
	}
	if snapshot.Version.IsZero() {
		t.Fatal("expected a version token")
	}
}

func TestAPIServerPlaylistBadLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/playlist/snapshot?limit=nope", nil)
	w := httptest.NewRecorder()
	srv.handlePlaylist(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPIServerPatchStaleVersion(t *testing.T) {
	srv, d := newTestServer(t)
	seedPlaylist(t, d, "/shows/trek/S01E01.mkv\n/shows/trek/S01E02.mkv\n")

	body, err := json.Marshal(api.PatchRequest{
		Version: time.Unix(1, 0),
		Skip:    []string{"/shows/trek/S01E01.mkv"},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/playlist/reorder", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handlePlaylistPatch(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestAPIServerPatchApplies(t *testing.T) {
	srv, d := newTestServer(t)
	version := seedPlaylist(t, d, "/shows/trek/S01E01.mkv\n/shows/trek/S01E02.mkv\n")

	body, err := json.Marshal(api.PatchRequest{
		Version: version,
		Skip:    []string{"/shows/trek/S01E02.mkv"},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/playlist/reorder", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handlePlaylistPatch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var snapshot api.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if snapshot.TotalSegments != 1 {
		t.Fatalf("expected 1 segment after skip, got %d", snapshot.TotalSegments)
	}
}

func TestAPIServerSkipWhenIdle(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/playback/skip", nil)
	w := httptest.NewRecorder()
	srv.handleSkip(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when nothing is playing, got %d", w.Code)
	}
}
