package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	// ChannelDir is the root directory holding episodes and bumpers.
	ChannelDir string `toml:"channel_dir"`
	// PlaylistPath is the shared playlist file walked by the playback loop.
	PlaylistPath string `toml:"playlist_path"`
	// StateDir holds watch progress, playhead, lock, and socket files.
	StateDir string `toml:"state_dir"`
	// ScratchDir holds rendered bumper temp files awaiting playback.
	ScratchDir string `toml:"scratch_dir"`
	// OutputDir receives the encoder's streaming segments.
	OutputDir string `toml:"output_dir"`
	// MusicDir holds background music candidates for bumper blocks.
	MusicDir string `toml:"music_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// Encoder contains configuration for the external encoder process.
type Encoder struct {
	Binary       string   `toml:"binary"`
	ExtraArgs    []string `toml:"extra_args"`
	SegmentSecs  int      `toml:"segment_seconds"`
	PlaylistName string   `toml:"playlist_name"`
	// ProbeTimeout bounds synchronous ffprobe calls in seconds. Probes run
	// inline in the playback path; a hang here would stall the channel.
	ProbeTimeout int `toml:"probe_timeout"`
}

// Renderer contains configuration for the external bumper renderer.
type Renderer struct {
	Binary         string `toml:"binary"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Playback contains playback loop behavior settings.
type Playback struct {
	Loop bool `toml:"loop"`
	// SegmentFailureThreshold abandons a segment after this many consecutive
	// entry failures.
	SegmentFailureThreshold int `toml:"segment_failure_threshold"`
	WatchProgressMaxRecords int `toml:"watch_progress_max_records"`
	// SkipGraceSeconds is how long to wait after SIGTERM before SIGKILL when
	// a skip-current request interrupts a running encode.
	SkipGraceSeconds int `toml:"skip_grace_seconds"`
}

// Bumpers contains bumper block coordinator settings.
type Bumpers struct {
	Enabled bool `toml:"enabled"`
	// BlocksAhead bounds how many upcoming segments get pre-generated blocks.
	BlocksAhead    int    `toml:"blocks_ahead"`
	NetworkName    string `toml:"network_name"`
	WeatherEnabled bool   `toml:"weather_enabled"`
	WeatherURL     string `toml:"weather_url"`
	WeatherTimeout int    `toml:"weather_timeout"`
}

// RenderCache contains configuration for the rendered-bumper cache index.
type RenderCache struct {
	Enabled    bool `toml:"enabled"`
	MaxEntries int  `toml:"max_entries"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ChannelEvents  bool   `toml:"channel_events"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for rerun.
//
// Configuration sections by subsystem:
//   - Paths: channel content, shared state files, and API bind address
//   - Encoder: external encoder binary and invocation parameters
//   - Renderer: external bumper renderer binary
//   - Playback: loop behavior and failure thresholds
//   - Bumpers: block coordinator look-ahead and bumper content settings
//   - RenderCache: rendered-bumper reuse index
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Encoder       Encoder       `toml:"encoder"`
	Renderer      Renderer      `toml:"renderer"`
	Playback      Playback      `toml:"playback"`
	Bumpers       Bumpers       `toml:"bumpers"`
	RenderCache   RenderCache   `toml:"render_cache"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/rerun/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/rerun/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rerun.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the daemon can start when
// the serving volume is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.ScratchDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// EncoderBinary returns the external encoder executable name.
func (c *Config) EncoderBinary() string {
	if binary := strings.TrimSpace(c.Encoder.Binary); binary != "" {
		return binary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// RendererBinary returns the external bumper renderer executable name.
func (c *Config) RendererBinary() string {
	if binary := strings.TrimSpace(c.Renderer.Binary); binary != "" {
		return binary
	}
	return "rerun-render"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
