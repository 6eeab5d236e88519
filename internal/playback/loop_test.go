package playback_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rerun/internal/encoder"
	"rerun/internal/playback"
	"rerun/internal/playhead"
	"rerun/internal/playlist"
	"rerun/internal/progress"
)

type fakeProcess struct {
	input string
	err   error
}

func (p *fakeProcess) InputPath() string        { return p.input }
func (p *fakeProcess) Wait() error              { return p.err }
func (p *fakeProcess) Skip(grace time.Duration) {}

type fakeEncoder struct {
	mu      sync.Mutex
	started []string
	// results queues Wait outcomes per input path; missing or exhausted
	// queues succeed.
	results map[string][]error
	onStart func(input string)
}

func (f *fakeEncoder) Start(ctx context.Context, input string) (encoder.Process, error) {
	f.mu.Lock()
	f.started = append(f.started, input)
	var err error
	if queue := f.results[input]; len(queue) > 0 {
		err = queue[0]
		f.results[input] = queue[1:]
	}
	f.mu.Unlock()
	if f.onStart != nil {
		f.onStart(input)
	}
	return &fakeProcess{input: input, err: err}, nil
}

func (f *fakeEncoder) startedCount(input string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.started {
		if s == input {
			count++
		}
	}
	return count
}

type fixture struct {
	dir      string
	store    *playlist.Store
	progress *progress.Store
	playhead *playhead.Store
	encoder  *fakeEncoder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:      dir,
		store:    playlist.NewStore(filepath.Join(dir, "playlist.txt")),
		progress: progress.NewStore(filepath.Join(dir, "progress.json"), 100),
		playhead: playhead.NewStore(filepath.Join(dir, "playhead.json")),
		encoder:  &fakeEncoder{results: map[string][]error{}},
	}
}

// seedEpisode creates a playable file and returns its absolute path.
func (f *fixture) seedEpisode(t *testing.T, rel string) string {
	t.Helper()
	path := filepath.Join(f.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatalf("seed %s: %v", rel, err)
	}
	return path
}

func (f *fixture) writePlaylist(t *testing.T, paths ...string) {
	t.Helper()
	if _, err := f.store.Write(playlist.ClassifyAll(paths)); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
}

func (f *fixture) newLoop(t *testing.T) *playback.Loop {
	t.Helper()
	loop, err := playback.New(playback.Options{
		Playlist: f.store,
		Progress: f.progress,
		Playhead: f.playhead,
		Encoder:  f.encoder,
	})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return loop
}

func runToDrain(t *testing.T, loop *playback.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestRunPlaysThroughAndRecordsProgress(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	e2 := f.seedEpisode(t, "Show/S01E02.mp4")
	f.writePlaylist(t, e1, e2)

	loop := f.newLoop(t)
	runToDrain(t, loop)

	records, err := f.progress.Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 progress records, got %d", len(records))
	}
	if loop.Status().State != playback.StateDraining {
		t.Fatalf("expected drained loop, got %s", loop.Status().State)
	}
}

func TestBumperCompletionDoesNotUpdateProgress(t *testing.T) {
	f := newFixture(t)
	b := f.seedEpisode(t, "bumpers/sassy/msg1.mp4")
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	f.writePlaylist(t, b, e1)

	loop := f.newLoop(t)
	runToDrain(t, loop)

	if got := f.encoder.startedCount(b); got != 1 {
		t.Fatalf("bumper should play once, got %d", got)
	}
	records, err := f.progress.Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if len(records) != 1 || records[0].Key != "show s01e01" {
		t.Fatalf("only the episode may update progress: %+v", records)
	}
}

func TestSegmentAbandonedAfterConsecutiveFailures(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	e2 := f.seedEpisode(t, "Show/S01E02.mp4")
	f.writePlaylist(t, e1, e2)

	boom := errors.New("encoder exploded")
	f.encoder.results[e1] = []error{boom, boom, boom}

	loop := f.newLoop(t)
	runToDrain(t, loop)

	if got := f.encoder.startedCount(e1); got != 3 {
		t.Fatalf("expected 3 attempts before abandoning, got %d", got)
	}
	records, err := f.progress.Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if len(records) != 1 || records[0].Key != "show s01e02" {
		t.Fatalf("abandoned episode must not reach progress: %+v", records)
	}
}

func TestEpisodeRecoversWithinThreshold(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	f.writePlaylist(t, e1)

	f.encoder.results[e1] = []error{errors.New("blip"), errors.New("blip")}

	loop := f.newLoop(t)
	runToDrain(t, loop)

	// Two failures, then the third attempt succeeds.
	if got := f.encoder.startedCount(e1); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	records, err := f.progress.Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("recovered episode must reach progress: %+v", records)
	}
}

func TestSkippedEncodeEndsSegmentWithoutProgress(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	e2 := f.seedEpisode(t, "Show/S01E02.mp4")
	f.writePlaylist(t, e1, e2)

	f.encoder.results[e1] = []error{encoder.ErrSkipped}

	loop := f.newLoop(t)
	runToDrain(t, loop)

	if got := f.encoder.startedCount(e1); got != 1 {
		t.Fatalf("skipped entry must not be retried, got %d attempts", got)
	}
	records, err := f.progress.Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if len(records) != 1 || records[0].Key != "show s01e02" {
		t.Fatalf("skipped episode must not reach progress: %+v", records)
	}
}

func TestMissingFileIsSkippedNotFatal(t *testing.T) {
	f := newFixture(t)
	e2 := f.seedEpisode(t, "Show/S01E02.mp4")
	missing := filepath.Join(f.dir, "Show", "S01E01.mp4")
	f.writePlaylist(t, missing, e2)

	loop := f.newLoop(t)
	runToDrain(t, loop)

	if got := f.encoder.startedCount(missing); got != 0 {
		t.Fatalf("missing file must never reach the encoder, got %d", got)
	}
	if got := f.encoder.startedCount(e2); got != 1 {
		t.Fatalf("later segments must still play, got %d", got)
	}
}

func TestEditAppliedAtSegmentBoundary(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	e2 := f.seedEpisode(t, "Show/S01E02.mp4")
	e3 := f.seedEpisode(t, "Show/S01E03.mp4")
	f.writePlaylist(t, e1, e2, e3)

	var once sync.Once
	f.encoder.onStart = func(input string) {
		if input == e1 {
			// Concurrent control-surface edit while the first segment
			// plays: drop E02. It must never start.
			once.Do(func() {
				if _, err := f.store.Write(playlist.ClassifyAll([]string{e1, e3})); err != nil {
					t.Errorf("edit playlist: %v", err)
				}
			})
		}
	}

	loop := f.newLoop(t)
	runToDrain(t, loop)

	if got := f.encoder.startedCount(e2); got != 0 {
		t.Fatalf("edited-out episode must not play, got %d", got)
	}
	if got := f.encoder.startedCount(e3); got != 1 {
		t.Fatalf("remaining episode must play once, got %d", got)
	}
}

func TestPlayheadWrittenBeforeEncode(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	f.writePlaylist(t, e1)

	var seen struct {
		sync.Mutex
		path  string
		found bool
	}
	f.encoder.onStart = func(input string) {
		record, found, err := f.playhead.Read()
		if err != nil {
			t.Errorf("read playhead: %v", err)
			return
		}
		seen.Lock()
		seen.path, seen.found = record.EntryPath, found
		seen.Unlock()
	}

	loop := f.newLoop(t)
	runToDrain(t, loop)

	seen.Lock()
	defer seen.Unlock()
	if !seen.found || seen.path != e1 {
		t.Fatalf("playhead must be persisted before the encode: found=%t path=%q", seen.found, seen.path)
	}
}

func TestRunFailsOnCorruptProgressAtStartup(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	f.writePlaylist(t, e1)
	if err := os.WriteFile(filepath.Join(f.dir, "progress.json"), []byte("{corrupt"), 0o644); err != nil {
		t.Fatalf("seed corrupt progress: %v", err)
	}

	loop := f.newLoop(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := loop.Run(ctx); err == nil {
		t.Fatal("expected fatal error for corrupt watch progress")
	}
	if loop.Status().State != playback.StateFailed {
		t.Fatalf("expected failed state, got %s", loop.Status().State)
	}
}

func TestCancelDrainsCleanly(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	f.writePlaylist(t, e1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := f.newLoop(t)
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("cancelled run must drain cleanly: %v", err)
	}
	if loop.Status().State != playback.StateDraining {
		t.Fatalf("expected draining state, got %s", loop.Status().State)
	}
}

func TestDeadPlaylistWrapBacksOff(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	e2 := f.seedEpisode(t, "Show/S01E02.mp4")
	f.writePlaylist(t, e1, e2)

	var probeCalls atomic.Int32
	loop, err := playback.New(playback.Options{
		Playlist:     f.store,
		Progress:     f.progress,
		Playhead:     f.playhead,
		Encoder:      f.encoder,
		LoopPlaylist: true,
		Probe: func(ctx context.Context, path string) error {
			probeCalls.Add(1)
			return errors.New("container damaged")
		},
	})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// One full pass probes both entries, then the wrap must sleep instead
	// of re-walking the playlist until the deadline fires.
	if got := probeCalls.Load(); got > 4 {
		t.Fatalf("loop kept spinning over an unplayable playlist, %d probes", got)
	}
	if got := f.encoder.startedCount(e1); got != 0 {
		t.Fatalf("unplayable entry reached the encoder %d times", got)
	}
}

func TestProbeRejectionSkipsEntry(t *testing.T) {
	f := newFixture(t)
	e1 := f.seedEpisode(t, "Show/S01E01.mp4")
	e2 := f.seedEpisode(t, "Show/S01E02.mp4")
	f.writePlaylist(t, e1, e2)

	loop, err := playback.New(playback.Options{
		Playlist: f.store,
		Progress: f.progress,
		Playhead: f.playhead,
		Encoder:  f.encoder,
		Probe: func(ctx context.Context, path string) error {
			if path == e1 {
				return errors.New("no video stream")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	runToDrain(t, loop)

	if got := f.encoder.startedCount(e1); got != 0 {
		t.Fatalf("rejected entry reached the encoder %d times", got)
	}
	if got := f.encoder.startedCount(e2); got != 1 {
		t.Fatalf("expected one play of the healthy entry, got %d", got)
	}
}
