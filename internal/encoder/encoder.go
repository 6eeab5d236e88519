// Package encoder drives the external transcoder that turns playlist
// entries into streaming output. One entry encodes at a time; the playback
// loop blocks on Wait and a skip request terminates the child out of band.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"rerun/internal/logging"
	"rerun/internal/services"
)

var commandContext = exec.CommandContext

// ErrSkipped reports that an encode ended because a skip was requested, not
// because the encoder failed.
var ErrSkipped = errors.New("encode skipped")

// Process is a single running encode.
type Process interface {
	// InputPath reports which file the encoder opened. This is the live
	// signal position resolution trusts above any persisted record.
	InputPath() string
	// Wait blocks until the encoder exits. A skip surfaces as ErrSkipped;
	// any other nonzero exit is a transient failure.
	Wait() error
	// Skip asks the encoder to stop early: term first, kill after grace.
	Skip(grace time.Duration)
}

// Client starts encodes.
type Client interface {
	Start(ctx context.Context, inputPath string) (Process, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithSegmentSeconds sets the HLS segment duration.
func WithSegmentSeconds(secs int) Option {
	return func(c *CLI) {
		if secs > 0 {
			c.segmentSecs = secs
		}
	}
}

// WithPlaylistName sets the output playlist filename.
func WithPlaylistName(name string) Option {
	return func(c *CLI) {
		if name != "" {
			c.playlistName = name
		}
	}
}

// WithExtraArgs appends extra encoder arguments before the output clause.
func WithExtraArgs(args []string) Option {
	return func(c *CLI) {
		c.extraArgs = append([]string(nil), args...)
	}
}

// WithLogger attaches a logger for encode lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CLI) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// CLI invokes ffmpeg to produce the channel's HLS output.
type CLI struct {
	binary       string
	outputDir    string
	playlistName string
	segmentSecs  int
	extraArgs    []string
	logger       *slog.Logger
}

// NewCLI constructs an ffmpeg client writing into outputDir.
func NewCLI(outputDir string, opts ...Option) *CLI {
	cli := &CLI{
		binary:       "ffmpeg",
		outputDir:    outputDir,
		playlistName: "channel.m3u8",
		segmentSecs:  6,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Start launches an encode for inputPath. The returned process appends to
// the channel's live HLS playlist and removes stale segment files as it goes.
func (c *CLI) Start(ctx context.Context, inputPath string) (Process, error) {
	inputPath = strings.TrimSpace(inputPath)
	if inputPath == "" {
		return nil, services.Wrap(services.ErrValidation, "encoder", "start", "empty input path", nil)
	}
	if c.outputDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "encoder", "start", "output directory not set", nil)
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "encoder", "start", "create output directory", err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-re",
		"-i", inputPath,
	}
	args = append(args, c.extraArgs...)
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(c.segmentSecs),
		"-hls_list_size", "10",
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", filepath.Join(c.outputDir, "segment_%06d.ts"),
		filepath.Join(c.outputDir, c.playlistName),
	)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "encoder", "start", fmt.Sprintf("start %s", c.binary), err)
	}

	c.logger.Info("encode started",
		logging.String("input", inputPath),
		logging.Int("pid", cmd.Process.Pid),
	)
	return &process{cmd: cmd, input: inputPath}, nil
}

type process struct {
	cmd   *exec.Cmd
	input string

	mu      sync.Mutex
	skipped bool
}

func (p *process) InputPath() string {
	return p.input
}

func (p *process) Wait() error {
	err := p.cmd.Wait()

	p.mu.Lock()
	skipped := p.skipped
	p.mu.Unlock()
	if skipped {
		return ErrSkipped
	}
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "wait", "encoder exited with failure", err)
	}
	return nil
}

// Skip terminates the running encode. The encoder gets grace to shut down
// after the term signal before it is killed outright.
func (p *process) Skip(grace time.Duration) {
	p.mu.Lock()
	if p.skipped {
		p.mu.Unlock()
		return
	}
	p.skipped = true
	p.mu.Unlock()

	if p.cmd.Process == nil {
		return
	}
	proc := p.cmd.Process
	_ = proc.Signal(syscall.SIGTERM)
	if grace <= 0 {
		grace = 3 * time.Second
	}
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		<-timer.C
		// os.Process refuses to signal once Wait has reaped the child,
		// so a recycled PID is never killed here.
		_ = proc.Kill()
	}()
}

var _ Client = (*CLI)(nil)
