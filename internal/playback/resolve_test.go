package playback

import (
	"testing"

	"rerun/internal/playlist"
	"rerun/internal/segment"
)

func resolveSegments(t *testing.T) []segment.Segment {
	t.Helper()
	return segment.Build(playlist.ClassifyAll([]string{
		"bumpers/up_next/a.mp4",
		"Show/S01E01.mp4",
		"Show/S01E02.mp4",
		"Show/S01E03.mp4",
	}))
}

func TestResolveIndexPrefersLiveEncoderState(t *testing.T) {
	segments := resolveSegments(t)
	idx := ResolveIndex(segments, Signals{
		EncoderInput:     "Show/S01E03.mp4",
		PlayheadPath:     "Show/S01E01.mp4",
		LastCompletedKey: "show s01e01",
	})
	if idx != 2 {
		t.Fatalf("expected encoder state to win, got %d", idx)
	}
}

func TestResolveIndexFallsBackToPlayhead(t *testing.T) {
	segments := resolveSegments(t)
	idx := ResolveIndex(segments, Signals{
		PlayheadPath:     "Show/S01E02.mp4",
		LastCompletedKey: "show s01e03",
	})
	if idx != 1 {
		t.Fatalf("expected playhead to win over watch progress, got %d", idx)
	}
}

func TestResolveIndexMatchesBumperPath(t *testing.T) {
	segments := resolveSegments(t)
	idx := ResolveIndex(segments, Signals{PlayheadPath: "bumpers/up_next/a.mp4"})
	if idx != 0 {
		t.Fatalf("playhead on a bumper must resolve its segment, got %d", idx)
	}
}

func TestResolveIndexFallsBackToWatchProgress(t *testing.T) {
	segments := resolveSegments(t)
	idx := ResolveIndex(segments, Signals{LastCompletedKey: "show s01e01"})
	if idx != 1 {
		t.Fatalf("expected segment after last completed episode, got %d", idx)
	}
}

func TestResolveIndexStaleSignalsDegradeInOrder(t *testing.T) {
	segments := resolveSegments(t)
	// Both the encoder input and playhead reference entries no longer in
	// the playlist, so resolution falls through to watch progress.
	idx := ResolveIndex(segments, Signals{
		EncoderInput:     "Removed/S09E01.mp4",
		PlayheadPath:     "Removed/S09E02.mp4",
		LastCompletedKey: "show s01e02",
	})
	if idx != 2 {
		t.Fatalf("expected fallback chain to reach watch progress, got %d", idx)
	}
}

func TestResolveIndexNoSignals(t *testing.T) {
	segments := resolveSegments(t)
	if idx := ResolveIndex(segments, Signals{}); idx != 0 {
		t.Fatalf("expected start of playlist, got %d", idx)
	}
}
