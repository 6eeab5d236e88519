// Package segment groups classified playlist entries into controllable
// units. A segment is zero or more bumpers followed by exactly one episode;
// skipping or reordering a segment moves the bumpers together with the
// episode they introduce.
package segment

import (
	"strings"

	"rerun/internal/playlist"
)

// Segment is a contiguous run of playlist entries. A controllable segment
// ends in exactly one episode; trailing bumpers with no following episode
// form a single non-controllable segment at the end of the playlist.
type Segment struct {
	Entries []playlist.Entry
}

// Controllable reports whether the segment ends in an episode and can be
// addressed by reorder and skip operations.
func (s Segment) Controllable() bool {
	if len(s.Entries) == 0 {
		return false
	}
	return s.Entries[len(s.Entries)-1].IsEpisode()
}

// Episode returns the closing episode entry, when the segment has one.
func (s Segment) Episode() (playlist.Entry, bool) {
	if !s.Controllable() {
		return playlist.Entry{}, false
	}
	return s.Entries[len(s.Entries)-1], true
}

// Bumpers returns the entries preceding the closing episode, or all entries
// for a non-controllable segment.
func (s Segment) Bumpers() []playlist.Entry {
	if !s.Controllable() {
		return s.Entries
	}
	return s.Entries[:len(s.Entries)-1]
}

// Build partitions entries into segments with a single left-to-right pass.
// Every entry lands in exactly one segment and segment order preserves
// playlist order.
func Build(entries []playlist.Entry) []Segment {
	var segments []Segment
	var pending []playlist.Entry
	for _, entry := range entries {
		pending = append(pending, entry)
		if entry.IsEpisode() {
			segments = append(segments, Segment{Entries: pending})
			pending = nil
		}
	}
	if len(pending) > 0 {
		segments = append(segments, Segment{Entries: pending})
	}
	return segments
}

// Controllable filters segments down to the addressable ones.
func Controllable(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Controllable() {
			out = append(out, s)
		}
	}
	return out
}

// FindIndex locates the first controllable segment whose episode matches
// target, which may be an episode path, a progress key, or an identity key.
// When the same episode appears twice only the first occurrence is
// addressable.
func FindIndex(segments []Segment, target string) (int, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, false
	}
	lowered := strings.ToLower(target)
	for i, s := range segments {
		episode, ok := s.Episode()
		if !ok {
			continue
		}
		if episode.Path == target || episode.ProgressKey() == lowered || episode.Identity.Key() == lowered {
			return i, true
		}
	}
	return 0, false
}

// IndexContaining locates the segment holding the entry with the given
// path, bumpers included.
func IndexContaining(segments []Segment, path string) (int, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, false
	}
	for i, s := range segments {
		for _, entry := range s.Entries {
			if entry.Path == path {
				return i, true
			}
		}
	}
	return 0, false
}

// ResumeIndex returns the index of the controllable segment immediately
// after the last completed episode. An empty or unmatched key restarts from
// the first segment; completing the final episode wraps to the start.
func ResumeIndex(segments []Segment, lastCompletedKey string) int {
	if lastCompletedKey == "" {
		return 0
	}
	index, ok := FindIndex(segments, lastCompletedKey)
	if !ok {
		return 0
	}
	for next := index + 1; next < len(segments); next++ {
		if segments[next].Controllable() {
			return next
		}
	}
	return 0
}
