// Package music picks background tracks for bumper blocks. Every bumper in
// one block shares a single track for continuity, so selection happens once
// per block.
package music

import (
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"rerun/internal/services"
)

// Track is one candidate background track.
type Track struct {
	Path            string
	Title           string
	Artist          string
	DurationSeconds float64
}

// Library scans a directory of music files once and serves per-block picks.
type Library struct {
	tracks []Track
	rng    *rand.Rand
}

// NewLibrary scans dir for mp3 files, reads their tags, and builds the
// selection pool. Files whose tags cannot be read still qualify; the title
// falls back to the filename.
func NewLibrary(dir string, seed int64) (*Library, error) {
	if dir == "" {
		return &Library{rng: rand.New(rand.NewSource(seed))}, nil
	}

	var tracks []Track
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp3") {
			return nil
		}
		tracks = append(tracks, buildTrack(path))
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "music", "scan", "scan music directory", err)
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Path < tracks[j].Path })
	return &Library{tracks: tracks, rng: rand.New(rand.NewSource(seed))}, nil
}

// Len reports the number of usable tracks.
func (l *Library) Len() int {
	return len(l.tracks)
}

// Tracks returns the scanned pool in path order.
func (l *Library) Tracks() []Track {
	return append([]Track(nil), l.tracks...)
}

// Pick selects the shared track for one block. An empty library reports
// found=false; blocks render without music rather than failing.
func (l *Library) Pick() (Track, bool) {
	if len(l.tracks) == 0 {
		return Track{}, false
	}
	return l.tracks[l.rng.Intn(len(l.tracks))], true
}

func buildTrack(path string) Track {
	track := Track{
		Path:  path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	f, err := os.Open(path)
	if err != nil {
		return track
	}
	defer f.Close()

	if meta, err := tag.ReadFrom(f); err == nil {
		if title := strings.TrimSpace(meta.Title()); title != "" {
			track.Title = title
		}
		track.Artist = strings.TrimSpace(meta.Artist())
	}

	if _, err := f.Seek(0, io.SeekStart); err == nil {
		if dur, err := computeDuration(f); err == nil && dur > 0 {
			track.DurationSeconds = dur
		}
	}
	return track
}

func computeDuration(r io.Reader) (float64, error) {
	decoder := mp3.NewDecoder(r)
	var frame mp3.Frame
	var skipped int
	var total float64
	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}
	return total, nil
}
