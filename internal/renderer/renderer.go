// Package renderer shells out to the bumper renderer. The renderer is an
// external collaborator: given a request it produces a video file at the
// requested path or fails with a reason. Rendering is idempotent for
// identical parameters when the target file already exists.
package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"rerun/internal/logging"
	"rerun/internal/playlist"
	"rerun/internal/services"
)

var commandContext = exec.CommandContext

// Request describes one bumper to render.
type Request struct {
	Kind playlist.Kind
	// Title is the display text, e.g. the upcoming episode title.
	Title string
	// EpisodeKey ties the bumper to the episode it introduces.
	EpisodeKey string
	// MusicPath is the shared background track for the block.
	MusicPath string
	// WeatherText is the pre-fetched forecast payload, weather bumpers only.
	WeatherText string
	// OutputPath is where the rendered file must land.
	OutputPath string
}

// Client renders bumpers.
type Client interface {
	Render(ctx context.Context, req Request) (string, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default renderer binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithLogger attaches a logger for render events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CLI) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestTimeout bounds each render invocation. Zero leaves the
// caller's context in charge.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *CLI) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// CLI wraps the renderer command-line tool.
type CLI struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "rerun-render", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Render produces the requested bumper file and returns its path. An
// existing non-empty file at the target path is reused without invoking the
// renderer.
func (c *CLI) Render(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if info, err := os.Stat(req.OutputPath); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		c.logger.Debug("render target already present",
			logging.String("output", req.OutputPath),
			logging.String("kind", string(req.Kind)),
		)
		return req.OutputPath, nil
	}

	args := []string{
		"--kind", string(req.Kind),
		"--output", req.OutputPath,
	}
	if req.Title != "" {
		args = append(args, "--title", req.Title)
	}
	if req.EpisodeKey != "" {
		args = append(args, "--episode", req.EpisodeKey)
	}
	if req.MusicPath != "" {
		args = append(args, "--music", req.MusicPath)
	}
	if req.WeatherText != "" {
		args = append(args, "--weather-text", req.WeatherText)
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", services.Wrap(
			services.ErrExternalTool,
			"renderer",
			"render",
			fmt.Sprintf("%s bumper: %s", req.Kind, strings.TrimSpace(string(output))),
			err,
		)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return "", services.Wrap(services.ErrExternalTool, "renderer", "render", "renderer reported success but produced no file", err)
	}
	return req.OutputPath, nil
}

func validate(req Request) error {
	if req.OutputPath == "" {
		return services.Wrap(services.ErrValidation, "renderer", "render", "empty output path", nil)
	}
	switch req.Kind {
	case playlist.KindUpNext, playlist.KindSassy, playlist.KindNetwork, playlist.KindWeather:
		return nil
	default:
		return services.Wrap(services.ErrValidation, "renderer", "render", fmt.Sprintf("kind %q is not renderable", req.Kind), nil)
	}
}

var _ Client = (*CLI)(nil)
