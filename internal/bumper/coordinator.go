// Package bumper pre-renders the interstitial content that plays before
// episodes. The coordinator runs ahead of playback with a bounded look-ahead
// and hands finished blocks to the loop; rendering latency never stalls the
// channel because the loop falls back to inline generation when no block is
// ready.
package bumper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"rerun/internal/fileutil"
	"rerun/internal/logging"
	"rerun/internal/music"
	"rerun/internal/playlist"
	"rerun/internal/rendercache"
	"rerun/internal/renderer"
	"rerun/internal/segment"
	"rerun/internal/services"
	"rerun/internal/weather"
)

// DefaultBlocksAhead bounds how many upcoming segments get pre-rendered
// blocks. Rendering further ahead wastes storage and stales weather content.
const DefaultBlocksAhead = 3

// Options wires the coordinator's collaborators.
type Options struct {
	Renderer    renderer.Client
	Cache       *rendercache.Cache
	Music       *music.Library
	Weather     weather.Provider
	ScratchDir  string
	NetworkName string
	BlocksAhead int
	Logger      *slog.Logger
}

// Coordinator maintains the queue of pre-rendered blocks, keyed by the
// episode they precede. It is the single producer; the playback loop is the
// single consumer.
type Coordinator struct {
	renderer    renderer.Client
	cache       *rendercache.Cache
	music       *music.Library
	weather     weather.Provider
	scratchDir  string
	networkName string
	blocksAhead int
	logger      *slog.Logger

	mu     sync.Mutex
	blocks map[string]*Block
	order  []string
}

// NewCoordinator builds a coordinator. Renderer and ScratchDir are required;
// the rest degrade gracefully when absent.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Renderer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "bumper", "new", "renderer client required", nil)
	}
	if strings.TrimSpace(opts.ScratchDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "bumper", "new", "scratch directory required", nil)
	}
	if opts.BlocksAhead <= 0 {
		opts.BlocksAhead = DefaultBlocksAhead
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		renderer:    opts.Renderer,
		cache:       opts.Cache,
		music:       opts.Music,
		weather:     opts.Weather,
		scratchDir:  opts.ScratchDir,
		networkName: opts.NetworkName,
		blocksAhead: opts.BlocksAhead,
		logger:      logger,
		blocks:      make(map[string]*Block),
	}, nil
}

// CollectNeeded ensures blocks exist for the next blocks-ahead controllable
// segments starting at fromIndex, wrapping past the end. Episodes already
// covered by an unconsumed block are skipped, so repeated calls never
// duplicate work.
func (c *Coordinator) CollectNeeded(ctx context.Context, segments []segment.Segment, fromIndex int) error {
	targets := upcoming(segments, fromIndex, c.blocksAhead)
	for _, seg := range targets {
		episode, ok := seg.Episode()
		if !ok {
			continue
		}
		key := episode.ProgressKey()
		if len(seg.Bumpers()) == 0 {
			continue
		}

		c.mu.Lock()
		_, exists := c.blocks[key]
		c.mu.Unlock()
		if exists {
			continue
		}

		block, err := c.Generate(ctx, seg)
		if err != nil {
			c.logger.Warn("block generation failed",
				logging.String(logging.FieldEpisodeKey, key),
				logging.Error(err),
			)
			continue
		}
		if block == nil {
			continue
		}

		c.mu.Lock()
		if _, exists := c.blocks[key]; !exists {
			c.blocks[key] = block
			c.order = append(c.order, key)
		} else {
			// Raced with another collect; drop the duplicate's temp files.
			c.mu.Unlock()
			_ = block.Release()
			continue
		}
		c.mu.Unlock()

		c.logger.Info("block ready",
			logging.String(logging.FieldEpisodeKey, key),
			logging.Int("items", len(block.Items)),
		)
	}
	return ctx.Err()
}

// Generate renders a block for one segment synchronously. The loop calls
// this directly as the inline fallback when no pre-rendered block is ready.
// A failed sub-component is omitted; the block plays without it.
func (c *Coordinator) Generate(ctx context.Context, seg segment.Segment) (*Block, error) {
	episode, ok := seg.Episode()
	if !ok {
		return nil, nil
	}
	bumpers := seg.Bumpers()
	if len(bumpers) == 0 {
		return nil, nil
	}

	block := &Block{EpisodeKey: episode.ProgressKey()}
	if c.music != nil {
		if track, found := c.music.Pick(); found {
			block.MusicPath = track.Path
		}
	}

	for _, entry := range bumpers {
		item, cleanup, err := c.renderItem(ctx, entry, episode, block.MusicPath)
		if err != nil {
			c.logger.Warn("bumper degraded",
				logging.String(logging.FieldEntry, entry.Path),
				logging.String("kind", string(entry.Kind)),
				logging.Error(err),
			)
			continue
		}
		block.Items = append(block.Items, item)
		if cleanup != "" {
			block.cleanup = append(block.cleanup, cleanup)
		}
	}
	return block, nil
}

// PeekNext returns the oldest unconsumed block without removing it.
func (c *Coordinator) PeekNext() (*Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return nil, false
	}
	block, ok := c.blocks[c.order[0]]
	return block, ok
}

// Acquire removes and returns the block for an episode, when one is ready.
func (c *Coordinator) Acquire(episodeKey string) (*Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	block, ok := c.blocks[episodeKey]
	if !ok {
		return nil, false
	}
	delete(c.blocks, episodeKey)
	for i, key := range c.order {
		if key == episodeKey {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return block, true
}

// Pending reports how many unconsumed blocks are queued.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// Invalidate drops every unconsumed block and deletes their temporary
// files. Called after a playlist edit, since queued blocks may now precede
// the wrong episodes.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	dropped := make([]*Block, 0, len(c.blocks))
	for _, block := range c.blocks {
		dropped = append(dropped, block)
	}
	c.blocks = make(map[string]*Block)
	c.order = nil
	c.mu.Unlock()

	for _, block := range dropped {
		if err := block.Release(); err != nil {
			c.logger.Warn("block cleanup failed", logging.Error(err))
		}
	}
}

// Watch invalidates the queue whenever the playlist file changes on disk,
// until ctx is done. Runs in its own goroutine.
func (c *Coordinator) Watch(ctx context.Context, playlistPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrTransient, "bumper", "watch", "create playlist watcher", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic replace swaps the file inode, and
	// watching the path directly would go stale after the first write.
	if err := watcher.Add(filepath.Dir(playlistPath)); err != nil {
		return services.Wrap(services.ErrTransient, "bumper", "watch", "watch playlist directory", err)
	}

	target := filepath.Base(playlistPath)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			c.logger.Info("playlist changed, dropping pending blocks")
			c.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("playlist watcher error", logging.Error(err))
		}
	}
}

func (c *Coordinator) renderItem(ctx context.Context, entry, episode playlist.Entry, musicPath string) (Item, string, error) {
	// Bumper entries backed by real files play as-is.
	if entry.Path != "" && fileutil.IsReadableFile(entry.Path) {
		return Item{Entry: entry, FilePath: entry.Path}, "", nil
	}

	switch entry.Kind {
	case playlist.KindUpNext:
		return c.renderUpNext(ctx, entry, episode, musicPath)
	case playlist.KindWeather:
		return c.renderWeather(ctx, entry, musicPath)
	case playlist.KindSassy, playlist.KindNetwork:
		return c.renderCached(ctx, entry, musicPath)
	default:
		return Item{}, "", services.Wrap(services.ErrValidation, "bumper", "render", fmt.Sprintf("kind %q has no renderer", entry.Kind), nil)
	}
}

// renderUpNext produces the episode-specific card. The output names the
// episode, so it is scratch-only and owed cleanup after play.
func (c *Coordinator) renderUpNext(ctx context.Context, entry, episode playlist.Entry, musicPath string) (Item, string, error) {
	title := episode.Identity.Show
	if code := episode.Identity.EpisodeCode(); code != "" {
		title = strings.TrimSpace(title + " " + code)
	}
	if title == "" {
		title = filepath.Base(episode.Path)
	}

	out := c.scratchPath("up_next", episode.ProgressKey())
	path, err := c.renderer.Render(ctx, renderer.Request{
		Kind:       playlist.KindUpNext,
		Title:      title,
		EpisodeKey: episode.ProgressKey(),
		MusicPath:  musicPath,
		OutputPath: out,
	})
	if err != nil {
		return Item{}, "", err
	}
	return Item{Entry: entry, FilePath: path}, path, nil
}

// renderWeather fetches the forecast first; stale weather is worse than no
// weather, so these renders are never cached and always owed cleanup.
func (c *Coordinator) renderWeather(ctx context.Context, entry playlist.Entry, musicPath string) (Item, string, error) {
	if c.weather == nil {
		return Item{}, "", services.Wrap(services.ErrConfiguration, "bumper", "render", "weather bumper requested but no provider configured", nil)
	}
	report, err := c.weather.Current(ctx)
	if err != nil {
		return Item{}, "", err
	}

	out := c.scratchPath("weather", report.FetchedAt.Format("20060102T150405"))
	path, err := c.renderer.Render(ctx, renderer.Request{
		Kind:        playlist.KindWeather,
		MusicPath:   musicPath,
		WeatherText: report.Text(),
		OutputPath:  out,
	})
	if err != nil {
		return Item{}, "", err
	}
	return Item{Entry: entry, FilePath: path}, path, nil
}

// renderCached covers the reusable kinds. Cache hits carry no cleanup
// obligation; the cache owns those files and evicts them itself.
func (c *Coordinator) renderCached(ctx context.Context, entry playlist.Entry, musicPath string) (Item, string, error) {
	title := ""
	if entry.Kind == playlist.KindNetwork {
		title = c.networkName
	}
	key := rendercache.Key(string(entry.Kind), title, musicPath)

	if c.cache != nil {
		if path, found, err := c.cache.Lookup(ctx, key); err == nil && found {
			return Item{Entry: entry, FilePath: path}, "", nil
		}
	}

	out := c.scratchPath(string(entry.Kind), key[:16])
	path, err := c.renderer.Render(ctx, renderer.Request{
		Kind:       entry.Kind,
		Title:      title,
		MusicPath:  musicPath,
		OutputPath: out,
	})
	if err != nil {
		return Item{}, "", err
	}

	if c.cache != nil {
		if err := c.cache.Store(ctx, key, string(entry.Kind), path); err == nil {
			return Item{Entry: entry, FilePath: path}, "", nil
		}
	}
	return Item{Entry: entry, FilePath: path}, path, nil
}

func (c *Coordinator) scratchPath(kind, discriminator string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, kind+"_"+discriminator)
	return filepath.Join(c.scratchDir, name+".mp4")
}

func upcoming(segments []segment.Segment, fromIndex int, count int) []segment.Segment {
	controllable := make([]int, 0, len(segments))
	for i, seg := range segments {
		if seg.Controllable() {
			controllable = append(controllable, i)
		}
	}
	if len(controllable) == 0 {
		return nil
	}
	if fromIndex < 0 || fromIndex >= len(segments) {
		fromIndex = 0
	}

	start := 0
	for pos, idx := range controllable {
		if idx >= fromIndex {
			start = pos
			break
		}
	}

	if count > len(controllable) {
		count = len(controllable)
	}
	out := make([]segment.Segment, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, segments[controllable[(start+i)%len(controllable)]])
	}
	return out
}
