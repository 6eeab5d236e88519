package ipc

import (
	"rerun/internal/api"
	"rerun/internal/daemon"
)

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = daemon.Dependency

// StatusResponse represents combined daemon/playback status information.
type StatusResponse struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	LockPath      string             `json:"lock_path"`
	PlaylistPath  string             `json:"playlist_path"`
	State         string             `json:"state"`
	CurrentEntry  string             `json:"current_entry"`
	CurrentIndex  int                `json:"current_index"`
	SegmentCount  int                `json:"segment_count"`
	PendingBlocks int                `json:"pending_blocks"`
	LastError     string             `json:"last_error"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// SnapshotRequest fetches the playlist snapshot.
type SnapshotRequest struct {
	Limit int `json:"limit"`
}

// SnapshotResponse contains the playlist snapshot.
type SnapshotResponse struct {
	Snapshot api.Snapshot `json:"snapshot"`
}

// PatchRequest submits a playlist edit against a version token.
type PatchRequest struct {
	Patch api.PatchRequest `json:"patch"`
}

// PatchResponse reports the edit outcome and the fresh snapshot.
type PatchResponse struct {
	Applied  bool         `json:"applied"`
	Conflict bool         `json:"conflict"`
	Message  string       `json:"message"`
	Snapshot api.Snapshot `json:"snapshot"`
}

// SkipRequest interrupts the entry playing right now.
type SkipRequest struct{}

// SkipResponse reports whether anything was skipped.
type SkipResponse struct {
	Skipped  bool         `json:"skipped"`
	Snapshot api.Snapshot `json:"snapshot"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse indicates notification test result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
