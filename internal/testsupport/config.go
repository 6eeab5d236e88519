// Package testsupport provides helpers shared across package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"rerun/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// The HTTP control surface and bumper blocks default to off so tests opt in
// explicitly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ChannelDir = base
	cfg.Paths.PlaylistPath = filepath.Join(base, "playlist.txt")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfg.Paths.OutputDir = filepath.Join(base, "stream")
	cfg.Paths.MusicDir = filepath.Join(base, "music")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = ""
	cfg.Bumpers.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAPIBind enables the HTTP control surface on the given address.
func WithAPIBind(bind string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIBind = bind
	}
}

// WithBumpers toggles bumper block generation on the test config.
func WithBumpers(enabled bool) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Bumpers.Enabled = enabled
	}
}
