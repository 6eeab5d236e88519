package playback

import (
	"rerun/internal/segment"
)

// Signals are the inputs position resolution reconciles on startup or after
// an external reorder. They are plain values so resolution stays a pure,
// testable function.
type Signals struct {
	// EncoderInput is the file a live encoder process has open, empty when
	// no encoder is running. Authoritative: it is ground truth of what is
	// actually being encoded right now.
	EncoderInput string
	// PlayheadPath is the entry the loop persisted before its last encode.
	PlayheadPath string
	// LastCompletedKey is the watch-progress identity of the last episode
	// that finished.
	LastCompletedKey string
}

// ResolveIndex picks the segment to play next. Priority order: live encoder
// state, then the persisted playhead, then watch progress. With no signal at
// all the channel starts from the top.
func ResolveIndex(segments []segment.Segment, sig Signals) int {
	if sig.EncoderInput != "" {
		if idx, ok := segment.IndexContaining(segments, sig.EncoderInput); ok {
			return idx
		}
	}
	if sig.PlayheadPath != "" {
		if idx, ok := segment.IndexContaining(segments, sig.PlayheadPath); ok {
			return idx
		}
	}
	return segment.ResumeIndex(segments, sig.LastCompletedKey)
}
