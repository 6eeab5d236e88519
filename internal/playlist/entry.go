package playlist

import (
	"fmt"
	"strings"
)

// Kind identifies the semantic type of a playlist entry.
type Kind string

const (
	KindEpisode Kind = "episode"
	KindUpNext  Kind = "up_next"
	KindSassy   Kind = "sassy"
	KindNetwork Kind = "network"
	KindWeather Kind = "weather"
	KindUnknown Kind = "unknown"
)

// Identity is the normalized identity of an episode entry. All fields are
// optional; a zero Identity means the filename was unparseable and the entry
// is treated as an opaque path.
type Identity struct {
	Show    string
	Season  int
	Episode int
}

// HasNumbers reports whether season and episode were both extracted.
func (id Identity) HasNumbers() bool {
	return id.Season > 0 && id.Episode > 0
}

// Key returns a stable lowercase identity key such as "south park s05e03",
// or "" when nothing was extracted.
func (id Identity) Key() string {
	show := strings.ToLower(strings.TrimSpace(id.Show))
	if !id.HasNumbers() {
		return show
	}
	code := fmt.Sprintf("s%02de%02d", id.Season, id.Episode)
	if show == "" {
		return code
	}
	return show + " " + code
}

// EpisodeCode returns the SxxEyy label for display, or "" when unknown.
func (id Identity) EpisodeCode() string {
	if !id.HasNumbers() {
		return ""
	}
	return fmt.Sprintf("S%02dE%02d", id.Season, id.Episode)
}

// Entry is a single classified playlist line. Entries are immutable once
// classified; re-classifying the same raw text yields an equal Entry.
type Entry struct {
	// Raw is the playlist line exactly as read.
	Raw string
	// Path is the trimmed form of Raw used for file access and matching.
	Path string
	Kind Kind
	// Identity is populated for episodes when the filename parses.
	Identity Identity
}

// IsEpisode reports whether the entry closes a segment.
func (e Entry) IsEpisode() bool {
	return e.Kind == KindEpisode
}

// IsBumper reports whether the entry is interstitial content.
func (e Entry) IsBumper() bool {
	switch e.Kind {
	case KindUpNext, KindSassy, KindNetwork, KindWeather:
		return true
	default:
		return false
	}
}

// ProgressKey is the identity used for watch-progress records: the parsed
// identity key when available, the opaque path otherwise.
func (e Entry) ProgressKey() string {
	if key := e.Identity.Key(); key != "" {
		return key
	}
	return e.Path
}
