package ipc

import (
	"path/filepath"

	"rerun/internal/config"
)

// SocketPath returns the daemon control socket location for a config.
func SocketPath(cfg *config.Config) string {
	if cfg == nil {
		return "rerun.sock"
	}
	return filepath.Join(cfg.Paths.StateDir, "rerun.sock")
}
