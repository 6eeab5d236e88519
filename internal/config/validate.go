package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateBumpers(); err != nil {
		return err
	}
	if err := c.validateRenderCache(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ChannelDir) == "" {
		return errors.New("paths.channel_dir must be set")
	}
	if strings.TrimSpace(c.Paths.PlaylistPath) == "" {
		return errors.New("paths.playlist_path must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if err := ensurePositiveMap(map[string]int{
		"encoder.segment_seconds":  c.Encoder.SegmentSecs,
		"encoder.probe_timeout":    c.Encoder.ProbeTimeout,
		"renderer.request_timeout": c.Renderer.RequestTimeout,
	}); err != nil {
		return err
	}
	if strings.TrimSpace(c.Encoder.PlaylistName) == "" {
		return errors.New("encoder.playlist_name must be set")
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.SegmentFailureThreshold <= 0 {
		return errors.New("playback.segment_failure_threshold must be positive")
	}
	if c.Playback.WatchProgressMaxRecords <= 0 {
		return errors.New("playback.watch_progress_max_records must be positive")
	}
	if c.Playback.SkipGraceSeconds <= 0 {
		return errors.New("playback.skip_grace_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBumpers() error {
	if !c.Bumpers.Enabled {
		return nil
	}
	if c.Bumpers.BlocksAhead <= 0 {
		return errors.New("bumpers.blocks_ahead must be positive when bumpers.enabled is true")
	}
	if c.Bumpers.WeatherEnabled {
		if strings.TrimSpace(c.Bumpers.WeatherURL) == "" {
			return errors.New("bumpers.weather_url must be set when bumpers.weather_enabled is true")
		}
		if c.Bumpers.WeatherTimeout <= 0 {
			return errors.New("bumpers.weather_timeout must be positive (seconds)")
		}
	}
	return nil
}

func (c *Config) validateRenderCache() error {
	if c.RenderCache.Enabled && c.RenderCache.MaxEntries <= 0 {
		return errors.New("render_cache.max_entries must be positive when render_cache.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
