// Package playback runs the channel: it walks the playlist in segment
// order, drives the external encoder one entry at a time, and keeps the
// durable position records accurate enough that a crash or restart resumes
// where the channel left off.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rerun/internal/bumper"
	"rerun/internal/encoder"
	"rerun/internal/fileutil"
	"rerun/internal/logging"
	"rerun/internal/notifications"
	"rerun/internal/playhead"
	"rerun/internal/playlist"
	"rerun/internal/progress"
	"rerun/internal/segment"
	"rerun/internal/services"
)

// State names the loop's position in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StatePlaying   State = "playing"
	StateAdvancing State = "advancing"
	StateDraining  State = "draining"
	StateFailed    State = "failed"
)

// DefaultFailureThreshold abandons a segment after this many consecutive
// encoder failures, so one poisoned file cannot stall the channel forever.
const DefaultFailureThreshold = 3

const emptyPlaylistBackoff = 5 * time.Second

// Status is a point-in-time view of the loop for external observers.
type Status struct {
	State        State     `json:"state"`
	CurrentIndex int       `json:"current_index"`
	CurrentEntry string    `json:"current_entry"`
	SegmentCount int       `json:"segment_count"`
	Version      time.Time `json:"playlist_version"`
	StartedAt    time.Time `json:"started_at"`
}

// Options wires the loop's collaborators.
type Options struct {
	Playlist    *playlist.Store
	Progress    *progress.Store
	Playhead    *playhead.Store
	Encoder     encoder.Client
	Coordinator *bumper.Coordinator
	Notifier    notifications.Service
	Logger      *slog.Logger

	// Probe inspects an entry before the encoder gets it. Optional;
	// entries failing the probe are skipped like missing files.
	Probe func(ctx context.Context, path string) error

	// ProcessID tags playhead records with the writing process.
	ProcessID string
	// FailureThreshold overrides DefaultFailureThreshold when positive.
	FailureThreshold int
	// LoopPlaylist wraps back to the first segment at end of playlist
	// instead of draining.
	LoopPlaylist bool
	// SkipGrace is how long a skipped encoder gets to exit after the term
	// signal before it is killed.
	SkipGrace time.Duration
}

// Loop is the playback state machine.
type Loop struct {
	playlist    *playlist.Store
	progress    *progress.Store
	playhead    *playhead.Store
	encoder     encoder.Client
	coordinator *bumper.Coordinator
	notifier    notifications.Service
	logger      *slog.Logger
	probe       func(ctx context.Context, path string) error

	processID string
	threshold int
	loopWrap  bool
	skipGrace time.Duration

	mu      sync.Mutex
	status  Status
	current encoder.Process
}

// New validates the wiring and returns an idle loop.
func New(opts Options) (*Loop, error) {
	if opts.Playlist == nil || opts.Progress == nil || opts.Playhead == nil || opts.Encoder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "playback", "new", "playlist, progress, playhead, and encoder are required", nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(notifications.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.ProcessID == "" {
		opts.ProcessID = uuid.NewString()
	}
	return &Loop{
		playlist:    opts.Playlist,
		progress:    opts.Progress,
		playhead:    opts.Playhead,
		encoder:     opts.Encoder,
		coordinator: opts.Coordinator,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		probe:       opts.Probe,
		processID:   opts.ProcessID,
		threshold:   opts.FailureThreshold,
		loopWrap:    opts.LoopPlaylist,
		skipGrace:   opts.SkipGrace,
		status:      Status{State: StateIdle},
	}, nil
}

// Status returns the loop's current view.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// LiveInput reports the file the running encoder has open, empty when the
// loop is between entries.
func (l *Loop) LiveInput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return ""
	}
	return l.current.InputPath()
}

// SkipCurrent terminates the entry playing right now. The loop's blocking
// wait unblocks immediately and the rest of the segment is skipped. Reports
// whether an encode was actually running.
func (l *Loop) SkipCurrent() bool {
	l.mu.Lock()
	proc := l.current
	l.mu.Unlock()
	if proc == nil {
		return false
	}
	l.logger.Info("skip requested", logging.String(logging.FieldEntry, proc.InputPath()))
	proc.Skip(l.skipGrace)
	return true
}

// Run drives the channel until ctx is cancelled or the playlist drains.
// Unreadable shared state at startup is fatal: the loop refuses to stream
// from an unknown position.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateResolving)

	entries, version, err := l.playlist.Read()
	if err != nil {
		l.setState(StateFailed)
		return services.Wrap(services.ErrFatalStorage, "playback", "run", "playlist unreadable at startup", err)
	}
	segments := segment.Build(entries)

	last, _, err := l.progress.LastCompleted()
	if err != nil {
		l.setState(StateFailed)
		return err
	}
	record, _, err := l.playhead.Read()
	if err != nil {
		// A damaged playhead degrades to watch progress.
		l.logger.Warn("playhead unreadable, falling back to watch progress", logging.Error(err))
	}

	index := ResolveIndex(segments, Signals{
		EncoderInput:     l.LiveInput(),
		PlayheadPath:     record.EntryPath,
		LastCompletedKey: last.Key,
	})
	l.updateStatus(func(s *Status) {
		s.CurrentIndex = index
		s.SegmentCount = len(segments)
		s.Version = version
		s.StartedAt = time.Now().UTC()
	})
	l.logger.Info("channel starting",
		logging.Int(logging.FieldSegmentIndex, index),
		logging.Int("segments", len(segments)),
	)
	if err := l.notifier.NotifyChannelStarted(ctx, l.playlist.Path(), len(segments)); err != nil {
		l.logger.Warn("start notification failed", logging.Error(err))
	}
	l.collectAhead(ctx, segments, index)

	playedSinceWrap := false
	for {
		if ctx.Err() != nil {
			return l.drain(ctx, "shutdown requested")
		}

		if len(segments) == 0 {
			if !l.sleep(ctx, emptyPlaylistBackoff) {
				return l.drain(ctx, "shutdown requested")
			}
			segments, version = l.reread(segments, &index)
			continue
		}

		if index >= len(segments) {
			if l.loopWrap {
				if !playedSinceWrap {
					// A full pass where nothing encoded would spin on the
					// store. Back off before trying the playlist again.
					if !l.sleep(ctx, emptyPlaylistBackoff) {
						return l.drain(ctx, "shutdown requested")
					}
				}
				index = 0
				playedSinceWrap = false
				continue
			}
			l.setState(StateDraining)
			if err := l.notifier.NotifyPlaylistDrained(ctx); err != nil {
				l.logger.Warn("drain notification failed", logging.Error(err))
			}
			if err := l.playhead.Clear(); err != nil {
				l.logger.Warn("playhead clear failed", logging.Error(err))
			}
			l.logger.Info("playlist drained, channel stopping")
			return nil
		}

		seg := segments[index]
		l.updateStatus(func(s *Status) {
			s.CurrentIndex = index
			s.SegmentCount = len(segments)
			s.Version = version
		})
		if l.playSegment(ctx, seg) {
			playedSinceWrap = true
		}

		// Segment boundary: pick up control-surface edits before moving on.
		l.setState(StateAdvancing)
		var advanced bool
		segments, version, index, advanced = l.advance(segments, version, index, seg)
		if advanced {
			l.collectAhead(ctx, segments, index)
		}
	}
}

// playSegment reports whether at least one entry actually reached the
// encoder, so the caller can tell a productive pass from a dead one.
func (l *Loop) playSegment(ctx context.Context, seg segment.Segment) bool {
	l.setState(StatePlaying)
	episode, hasEpisode := seg.Episode()

	var block *bumper.Block
	if l.coordinator != nil && hasEpisode && len(seg.Bumpers()) > 0 {
		var ok bool
		block, ok = l.coordinator.Acquire(episode.ProgressKey())
		if !ok {
			// No block ready in time; generate inline. Slower but correct.
			var err error
			block, err = l.coordinator.Generate(ctx, seg)
			if err != nil {
				l.logger.Warn("inline block generation failed",
					logging.String(logging.FieldEpisodeKey, episode.ProgressKey()),
					logging.Error(err),
				)
			}
		}
	}
	if block != nil {
		// Temp files outlive the segment, never the other way around: the
		// encoder may still have them open until the last entry finishes.
		defer func() {
			if err := block.Release(); err != nil {
				l.logger.Warn("block cleanup failed", logging.Error(err))
			}
		}()
	}

	items := playItems(seg, block)
	failures := 0
	played := false
	for i := 0; i < len(items); i++ {
		if ctx.Err() != nil {
			return played
		}
		item := items[i]

		if !fileutil.IsReadableFile(item.filePath) {
			l.logger.Warn("entry file missing, skipping",
				logging.String(logging.FieldEntry, item.entry.Path),
			)
			continue
		}
		if l.probe != nil {
			if err := l.probe(ctx, item.filePath); err != nil {
				l.logger.Warn("entry failed media probe, skipping",
					logging.String(logging.FieldEntry, item.entry.Path),
					logging.Error(err),
				)
				continue
			}
		}

		if err := l.playhead.Write(playhead.Record{
			EntryPath: item.entry.Path,
			ProcessID: l.processID,
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			l.logger.Warn("playhead write failed", logging.Error(err))
		}

		err := l.encodeOne(ctx, item.filePath)
		switch {
		case err == nil:
			failures = 0
			played = true
			if item.isEpisode {
				if markErr := l.progress.MarkCompleted(episode.ProgressKey(), time.Now().UTC()); markErr != nil {
					l.logger.Warn("watch progress update failed", logging.Error(markErr))
				}
			}
		case errors.Is(err, encoder.ErrSkipped):
			l.logger.Info("segment skipped",
				logging.String(logging.FieldEntry, item.entry.Path),
			)
			return true
		default:
			failures++
			l.logger.Warn("encoder failed",
				logging.String(logging.FieldEntry, item.entry.Path),
				logging.Int("consecutive_failures", failures),
				logging.Error(err),
			)
			if failures >= l.threshold {
				l.logger.Warn("segment abandoned",
					logging.String(logging.FieldEpisodeKey, episodeLabel(seg)),
					logging.Int("failures", failures),
				)
				if notifyErr := l.notifier.NotifySegmentAbandoned(ctx, episodeLabel(seg), failures); notifyErr != nil {
					l.logger.Warn("abandon notification failed", logging.Error(notifyErr))
				}
				return played
			}
			if item.isEpisode {
				// The episode is the last chance to salvage the segment;
				// retry it until the threshold says stop.
				i--
			}
		}
	}
	return played
}

func (l *Loop) encodeOne(ctx context.Context, filePath string) error {
	proc, err := l.encoder.Start(ctx, filePath)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.current = proc
	l.status.CurrentEntry = filePath
	l.mu.Unlock()

	err = proc.Wait()

	l.mu.Lock()
	l.current = nil
	l.status.CurrentEntry = ""
	l.mu.Unlock()
	return err
}

// advance re-reads the store and relocates the position after the segment
// that just played. A reorder applied mid-segment takes effect here, at the
// boundary, which is the documented latency bound for edits.
func (l *Loop) advance(segments []segment.Segment, version time.Time, index int, played segment.Segment) ([]segment.Segment, time.Time, int, bool) {
	entries, newVersion, err := l.playlist.Read()
	if err != nil {
		l.logger.Warn("playlist re-read failed, keeping previous order", logging.Error(err))
		return segments, version, index + 1, false
	}
	rebuilt := segment.Build(entries)

	if episode, ok := played.Episode(); ok {
		if idx, found := segment.FindIndex(rebuilt, episode.Path); found {
			return rebuilt, newVersion, idx + 1, true
		}
		// The played episode was removed by an edit; its old numeric slot
		// is the best approximation of "after it".
	}
	next := index + 1
	if next > len(rebuilt) {
		next = len(rebuilt)
	}
	return rebuilt, newVersion, next, true
}

func (l *Loop) reread(segments []segment.Segment, index *int) ([]segment.Segment, time.Time) {
	entries, version, err := l.playlist.Read()
	if err != nil {
		l.logger.Warn("playlist re-read failed", logging.Error(err))
		return segments, time.Time{}
	}
	rebuilt := segment.Build(entries)
	if *index > len(rebuilt) {
		*index = 0
	}
	return rebuilt, version
}

func (l *Loop) drain(ctx context.Context, reason string) error {
	l.setState(StateDraining)
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.notifier.NotifyChannelStopped(notifyCtx, reason); err != nil {
		l.logger.Warn("stop notification failed", logging.Error(err))
	}
	l.logger.Info("channel stopped", logging.String("reason", reason))
	return nil
}

func (l *Loop) collectAhead(ctx context.Context, segments []segment.Segment, index int) {
	if l.coordinator == nil {
		return
	}
	go func() {
		if err := l.coordinator.CollectNeeded(ctx, segments, index); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("block collection failed", logging.Error(err))
		}
	}()
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) setState(state State) {
	l.updateStatus(func(s *Status) { s.State = state })
}

func (l *Loop) updateStatus(fn func(*Status)) {
	l.mu.Lock()
	fn(&l.status)
	l.mu.Unlock()
}

type playItem struct {
	entry     playlist.Entry
	filePath  string
	isEpisode bool
}

// playItems flattens a segment into the files the encoder plays. With a
// block, the block's rendered items replace the raw bumper entries; without
// one, file-backed bumpers play directly and sentinel-only bumpers are
// skipped by the readability check.
func playItems(seg segment.Segment, block *bumper.Block) []playItem {
	var items []playItem
	if block != nil {
		for _, item := range block.Items {
			items = append(items, playItem{entry: item.Entry, filePath: item.FilePath})
		}
	} else {
		for _, entry := range seg.Bumpers() {
			items = append(items, playItem{entry: entry, filePath: entry.Path})
		}
	}
	if episode, ok := seg.Episode(); ok {
		items = append(items, playItem{entry: episode, filePath: episode.Path, isEpisode: true})
	}
	return items
}

func episodeLabel(seg segment.Segment) string {
	if episode, ok := seg.Episode(); ok {
		return episode.Path
	}
	return "(no episode)"
}
