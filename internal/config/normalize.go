package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// normalize expands and absolutizes every path field and fills derived
// defaults that depend on other fields.
func (c *Config) normalize() error {
	pathFields := []struct {
		name  string
		value *string
	}{
		{"paths.channel_dir", &c.Paths.ChannelDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.scratch_dir", &c.Paths.ScratchDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.music_dir", &c.Paths.MusicDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range pathFields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("normalize %s: %w", field.name, err)
		}
		*field.value = expanded
	}

	playlist := strings.TrimSpace(c.Paths.PlaylistPath)
	if playlist == "" {
		playlist = filepath.Join(c.Paths.ChannelDir, defaultPlaylistName)
	}
	expanded, err := expandPath(playlist)
	if err != nil {
		return fmt.Errorf("normalize paths.playlist_path: %w", err)
	}
	c.Paths.PlaylistPath = expanded

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	c.Renderer.Binary = strings.TrimSpace(c.Renderer.Binary)
	c.Bumpers.NetworkName = strings.TrimSpace(c.Bumpers.NetworkName)
	c.Bumpers.WeatherURL = strings.TrimSpace(c.Bumpers.WeatherURL)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	return nil
}
