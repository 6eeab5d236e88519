package bumper

import (
	"errors"
	"io/fs"
	"os"

	"rerun/internal/playlist"
)

// Item is one playable bumper inside a block.
type Item struct {
	Entry playlist.Entry
	// FilePath is the file the encoder plays: either the entry's own
	// backing file or a rendered output.
	FilePath string
}

// Block is the pre-rendered bumper bundle attached to one upcoming episode.
// All rendered items in a block share one background music track. The block
// carries a cleanup obligation: its temporary files are deleted only after
// the segment finishes playing, never before.
type Block struct {
	// EpisodeKey identifies the episode this block precedes.
	EpisodeKey string
	Items      []Item
	MusicPath  string

	cleanup []string
}

// CleanupFiles lists the temporary files owed deletion once the block's
// segment has finished.
func (b *Block) CleanupFiles() []string {
	return append([]string(nil), b.cleanup...)
}

// Release deletes the block's temporary files. Safe to call more than once.
func (b *Block) Release() error {
	var firstErr error
	for _, path := range b.cleanup {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	b.cleanup = nil
	return firstErr
}
