// Package daemon assembles the channel's long-running actors: the playback
// loop, the bumper block coordinator, the HTTP control surface, and the
// single-instance lock that keeps two daemons off the same state directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"rerun/internal/api"
	"rerun/internal/bumper"
	"rerun/internal/config"
	"rerun/internal/encoder"
	"rerun/internal/logging"
	"rerun/internal/media/ffprobe"
	"rerun/internal/music"
	"rerun/internal/notifications"
	"rerun/internal/playback"
	"rerun/internal/playhead"
	"rerun/internal/playlist"
	"rerun/internal/progress"
	"rerun/internal/rendercache"
	"rerun/internal/renderer"
	"rerun/internal/weather"
)

// Dependency describes one external tool the daemon shells out to.
type Dependency struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool            `json:"running"`
	PID           int             `json:"pid"`
	LockPath      string          `json:"lock_path"`
	PlaylistPath  string          `json:"playlist_path"`
	PendingBlocks int             `json:"pending_blocks"`
	Playback      playback.Status `json:"playback"`
	Dependencies  []Dependency    `json:"dependencies"`
}

// Daemon owns the channel's runtime components.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *playlist.Store
	progress    *progress.Store
	playhead    *playhead.Store
	cache       *rendercache.Cache
	coordinator *bumper.Coordinator
	loop        *playback.Loop
	service     *api.Service
	notifier    notifications.Service
	httpServer  *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	loopErr atomic.Value
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store := playlist.NewStore(cfg.Paths.PlaylistPath)
	prog := progress.NewStore(
		filepath.Join(cfg.Paths.StateDir, "watch_progress.json"),
		cfg.Playback.WatchProgressMaxRecords,
	)
	head := playhead.NewStore(filepath.Join(cfg.Paths.StateDir, "playhead.json"))

	notifier := notifications.NewService(notifications.Options{
		Topic:          cfg.Notifications.NtfyTopic,
		RequestTimeout: time.Duration(cfg.Notifications.RequestTimeout) * time.Second,
	})

	enc := encoder.NewCLI(cfg.Paths.OutputDir,
		encoder.WithBinary(cfg.EncoderBinary()),
		encoder.WithSegmentSeconds(cfg.Encoder.SegmentSecs),
		encoder.WithPlaylistName(cfg.Encoder.PlaylistName),
		encoder.WithExtraArgs(cfg.Encoder.ExtraArgs),
		encoder.WithLogger(logging.NewComponentLogger(logger, "encoder")),
	)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		progress: prog,
		playhead: head,
		notifier: notifier,
		lockPath: filepath.Join(cfg.Paths.StateDir, "rerund.lock"),
	}
	d.lock = flock.New(d.lockPath)

	if cfg.Bumpers.Enabled {
		coordinator, err := d.buildCoordinator(cfg, logger)
		if err != nil {
			return nil, err
		}
		d.coordinator = coordinator
	}

	probeTimeout := time.Duration(cfg.Encoder.ProbeTimeout) * time.Second
	loop, err := playback.New(playback.Options{
		Playlist:    store,
		Progress:    prog,
		Playhead:    head,
		Encoder:     enc,
		Coordinator: d.coordinator,
		Notifier:    notifier,
		Logger:      logging.NewComponentLogger(logger, "playback"),
		Probe: func(ctx context.Context, path string) error {
			result, err := ffprobe.Inspect(ctx, cfg.FFprobeBinary(), path, probeTimeout)
			if err != nil {
				return err
			}
			if !result.HasVideoStream() {
				return errors.New("no video stream")
			}
			return nil
		},
		ProcessID:        uuid.NewString(),
		FailureThreshold: cfg.Playback.SegmentFailureThreshold,
		LoopPlaylist:     cfg.Playback.Loop,
		SkipGrace:        time.Duration(cfg.Playback.SkipGraceSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	d.loop = loop

	service, err := api.NewService(store, prog, head, loop, logging.NewComponentLogger(logger, "api"))
	if err != nil {
		return nil, err
	}
	d.service = service

	httpServer, err := newAPIServer(cfg, d, logging.NewComponentLogger(logger, "http"))
	if err != nil {
		return nil, err
	}
	d.httpServer = httpServer

	return d, nil
}

func (d *Daemon) buildCoordinator(cfg *config.Config, logger *slog.Logger) (*bumper.Coordinator, error) {
	rend := renderer.NewCLI(
		renderer.WithBinary(cfg.RendererBinary()),
		renderer.WithRequestTimeout(time.Duration(cfg.Renderer.RequestTimeout)*time.Second),
		renderer.WithLogger(logging.NewComponentLogger(logger, "renderer")),
	)

	var cache *rendercache.Cache
	if cfg.RenderCache.Enabled {
		var err error
		cache, err = rendercache.Open(
			filepath.Join(cfg.Paths.StateDir, "render_cache.db"),
			cfg.RenderCache.MaxEntries,
		)
		if err != nil {
			return nil, fmt.Errorf("open render cache: %w", err)
		}
		d.cache = cache
	}

	library, err := music.NewLibrary(cfg.Paths.MusicDir, time.Now().UnixNano())
	if err != nil {
		// Missing music degrades blocks, it does not stop the daemon.
		logger.Warn("music library unavailable", logging.Error(err))
		library, _ = music.NewLibrary("", 0)
	}

	var provider weather.Provider
	if cfg.Bumpers.WeatherEnabled {
		provider = weather.NewHTTPProvider(
			cfg.Bumpers.WeatherURL,
			time.Duration(cfg.Bumpers.WeatherTimeout)*time.Second,
		)
	}

	return bumper.NewCoordinator(bumper.Options{
		Renderer:    rend,
		Cache:       cache,
		Music:       library,
		Weather:     provider,
		ScratchDir:  cfg.Paths.ScratchDir,
		NetworkName: cfg.Bumpers.NetworkName,
		BlocksAhead: cfg.Bumpers.BlocksAhead,
		Logger:      logging.NewComponentLogger(logger, "bumper"),
	})
}

// Start acquires the daemon lock and launches the loop, the coordinator's
// playlist watcher, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rerun daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.httpServer != nil {
		if err := d.httpServer.start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}

	if d.coordinator != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.coordinator.Watch(runCtx, d.cfg.Paths.PlaylistPath); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("playlist watcher stopped", logging.Error(err))
			}
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.loop.Run(runCtx); err != nil {
			d.loopErr.Store(err.Error())
			d.logger.Error("playback loop failed", logging.Error(err))
			if notifyErr := d.notifier.NotifyError(context.WithoutCancel(runCtx), err, "playback loop"); notifyErr != nil {
				d.logger.Warn("error notification failed", logging.Error(notifyErr))
			}
		}
	}()

	d.running.Store(true)
	d.logger.Info("rerun daemon started",
		logging.String("lock", d.lockPath),
		logging.String("playlist", d.cfg.Paths.PlaylistPath),
	)
	return nil
}

// Stop cancels the runtime goroutines and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.httpServer != nil {
		d.httpServer.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("rerun daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.cache != nil {
		return d.cache.Close()
	}
	return nil
}

// Service exposes the control-surface operations for HTTP and IPC callers.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// SkipCurrent interrupts the entry playing right now.
func (d *Daemon) SkipCurrent() bool {
	return d.loop.SkipCurrent()
}

// TestNotification pushes a test message through the notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

// LastLoopError reports the most recent fatal loop error, empty when none.
func (d *Daemon) LastLoopError() string {
	if v, ok := d.loopErr.Load().(string); ok {
		return v
	}
	return ""
}

// Status reports runtime information for status commands and the HTTP API.
func (d *Daemon) Status(ctx context.Context) Status {
	pending := 0
	if d.coordinator != nil {
		pending = d.coordinator.Pending()
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockPath:      d.lockPath,
		PlaylistPath:  d.cfg.Paths.PlaylistPath,
		PendingBlocks: pending,
		Playback:      d.loop.Status(),
		Dependencies:  d.Dependencies(),
	}
}

// Dependencies probes the external tools the daemon relies on.
func (d *Daemon) Dependencies() []Dependency {
	deps := []Dependency{
		{
			Name:        "encoder",
			Command:     d.cfg.EncoderBinary(),
			Description: "transcodes entries into the streaming output",
		},
		{
			Name:        "ffprobe",
			Command:     d.cfg.FFprobeBinary(),
			Description: "validates media files before playback",
		},
		{
			Name:        "renderer",
			Command:     d.cfg.RendererBinary(),
			Description: "renders bumper cards",
			Optional:    !d.cfg.Bumpers.Enabled,
		},
	}
	for i := range deps {
		_, err := exec.LookPath(deps[i].Command)
		deps[i].Available = err == nil
	}
	return deps
}
