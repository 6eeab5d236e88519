// Package api implements the control surface's read and write operations
// against the playlist: versioned snapshots for admin callers and
// optimistic-concurrency patches for reorder and skip requests.
package api

import (
	"context"
	"log/slog"
	"time"

	"rerun/internal/logging"
	"rerun/internal/playback"
	"rerun/internal/playhead"
	"rerun/internal/playlist"
	"rerun/internal/progress"
	"rerun/internal/segment"
	"rerun/internal/services"
)

// DefaultUpcomingLimit bounds snapshot size when the caller asks for none.
const DefaultUpcomingLimit = 10

// SegmentView is one controllable segment as shown to admin callers.
type SegmentView struct {
	Index       int      `json:"index"`
	EpisodePath string   `json:"episode_path"`
	EpisodeKey  string   `json:"episode_key"`
	Show        string   `json:"show,omitempty"`
	EpisodeCode string   `json:"episode_code,omitempty"`
	Bumpers     []string `json:"bumpers,omitempty"`
}

// Snapshot is the read-only playlist view plus the version token callers
// must echo back with any write.
type Snapshot struct {
	Current       *SegmentView     `json:"current,omitempty"`
	Upcoming      []SegmentView    `json:"upcoming"`
	TotalSegments int              `json:"total_segments"`
	Version       time.Time        `json:"version"`
	Playback      *playback.Status `json:"playback,omitempty"`
}

// PatchRequest reorders and removes upcoming segments. Version must match
// the store or the patch is rejected; no merge is ever attempted.
type PatchRequest struct {
	Version      time.Time `json:"version"`
	DesiredOrder []string  `json:"desired_order"`
	Skip         []string  `json:"skip"`
}

// Controller is the slice of the playback loop the control surface needs.
type Controller interface {
	Status() playback.Status
	LiveInput() string
	SkipCurrent() bool
}

// Service answers control-surface requests.
type Service struct {
	store      *playlist.Store
	progress   *progress.Store
	playhead   *playhead.Store
	controller Controller
	logger     *slog.Logger
}

// NewService wires the service. Controller may be nil when no loop runs in
// this process; snapshots then resolve position from the durable records.
func NewService(store *playlist.Store, prog *progress.Store, head *playhead.Store, controller Controller, logger *slog.Logger) (*Service, error) {
	if store == nil || prog == nil || head == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "new", "playlist, progress, and playhead stores are required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:      store,
		progress:   prog,
		playhead:   head,
		controller: controller,
		logger:     logger,
	}, nil
}

// Snapshot returns the current segment, the next limit controllable
// segments, and the version token.
func (s *Service) Snapshot(ctx context.Context, limit int) (Snapshot, error) {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}

	entries, version, err := s.store.Read()
	if err != nil {
		return Snapshot{}, err
	}
	segments := segment.Build(entries)

	currentIdx := s.resolveCurrent(segments)
	snapshot := Snapshot{
		TotalSegments: len(segment.Controllable(segments)),
		Version:       version,
		Upcoming:      []SegmentView{},
	}
	if s.controller != nil {
		status := s.controller.Status()
		snapshot.Playback = &status
	}

	if currentIdx >= 0 && currentIdx < len(segments) && segments[currentIdx].Controllable() {
		view := viewOf(segments[currentIdx], currentIdx)
		snapshot.Current = &view
	}
	for i := currentIdx + 1; i < len(segments) && len(snapshot.Upcoming) < limit; i++ {
		if !segments[i].Controllable() {
			continue
		}
		snapshot.Upcoming = append(snapshot.Upcoming, viewOf(segments[i], i))
	}
	return snapshot, nil
}

// ApplyPatch validates the version, removes skipped segments, reorders the
// rest, and writes the result. A stale version is rejected with a conflict;
// the caller re-fetches and retries.
func (s *Service) ApplyPatch(ctx context.Context, req PatchRequest) (Snapshot, error) {
	entries, version, err := s.store.Read()
	if err != nil {
		return Snapshot{}, err
	}
	if !version.Equal(req.Version) {
		return Snapshot{}, services.Wrap(services.ErrConflict, "api", "patch", "playlist changed since snapshot", nil)
	}

	segments := segment.Build(entries)
	reordered := applyPatch(segments, req)

	var next []playlist.Entry
	for _, seg := range reordered {
		next = append(next, seg.Entries...)
	}

	// ReplaceIf re-checks the version under the store lock, so two racing
	// patches that both read this version cannot both land.
	if _, err := s.store.ReplaceIf(version, next); err != nil {
		return Snapshot{}, err
	}

	s.logger.Info("playlist patched",
		logging.Int("segments", len(reordered)),
		logging.Int("skipped", len(req.Skip)),
	)
	return s.Snapshot(ctx, DefaultUpcomingLimit)
}

// SkipCurrent interrupts the entry playing right now and returns a fresh
// snapshot.
func (s *Service) SkipCurrent(ctx context.Context) (Snapshot, bool, error) {
	skipped := false
	if s.controller != nil {
		skipped = s.controller.SkipCurrent()
	}
	snapshot, err := s.Snapshot(ctx, DefaultUpcomingLimit)
	return snapshot, skipped, err
}

// resolveCurrent mirrors the loop's own position resolution so snapshots
// agree with what is actually on air.
func (s *Service) resolveCurrent(segments []segment.Segment) int {
	sig := playback.Signals{}
	if s.controller != nil {
		sig.EncoderInput = s.controller.LiveInput()
	}
	if record, found, err := s.playhead.Read(); err == nil && found {
		sig.PlayheadPath = record.EntryPath
	}
	if last, found, err := s.progress.LastCompleted(); err == nil && found {
		sig.LastCompletedKey = last.Key
	}
	return playback.ResolveIndex(segments, sig)
}

// applyPatch removes skipped segments and orders the remaining controllable
// segments to match the requested order. Segments the request does not name
// keep their relative order after the named ones; non-controllable segments
// stay attached to the end.
func applyPatch(segments []segment.Segment, req PatchRequest) []segment.Segment {
	skip := make(map[int]bool)
	for _, target := range req.Skip {
		if idx, ok := segment.FindIndex(segments, target); ok {
			skip[idx] = true
		}
	}

	var controllable []segment.Segment
	var trailing []segment.Segment
	for i, seg := range segments {
		if skip[i] {
			continue
		}
		if seg.Controllable() {
			controllable = append(controllable, seg)
		} else {
			trailing = append(trailing, seg)
		}
	}

	used := make([]bool, len(controllable))
	var ordered []segment.Segment
	for _, target := range req.DesiredOrder {
		if idx, ok := segment.FindIndex(controllable, target); ok && !used[idx] {
			ordered = append(ordered, controllable[idx])
			used[idx] = true
		}
	}
	for i, seg := range controllable {
		if !used[i] {
			ordered = append(ordered, seg)
		}
	}

	return append(ordered, trailing...)
}

func viewOf(seg segment.Segment, index int) SegmentView {
	episode, _ := seg.Episode()
	view := SegmentView{
		Index:       index,
		EpisodePath: episode.Path,
		EpisodeKey:  episode.ProgressKey(),
		Show:        episode.Identity.Show,
		EpisodeCode: episode.Identity.EpisodeCode(),
	}
	for _, b := range seg.Bumpers() {
		view.Bumpers = append(view.Bumpers, b.Path)
	}
	return view
}
