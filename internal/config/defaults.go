package config

const (
	defaultChannelDir       = "~/channel"
	defaultPlaylistName     = "playlist.txt"
	defaultStateDir         = "~/.local/share/rerun/state"
	defaultScratchDir       = "~/.local/share/rerun/scratch"
	defaultOutputDir        = "~/.local/share/rerun/stream"
	defaultMusicDir         = "~/channel/music"
	defaultLogDir           = "~/.local/share/rerun/logs"
	defaultAPIBind          = "127.0.0.1:7316"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultSegmentSeconds   = 6
	defaultHLSPlaylistName  = "channel.m3u8"
	defaultProbeTimeout     = 5
	defaultRendererTimeout  = 120
	defaultFailureThreshold = 3
	defaultProgressRecords  = 100
	defaultSkipGraceSeconds = 5
	defaultBlocksAhead      = 3
	defaultNetworkName      = "RERUN"
	defaultWeatherURL       = "https://wttr.in/?format=j1"
	defaultWeatherTimeout   = 10
	defaultRenderCacheMax   = 200
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ChannelDir: defaultChannelDir,
			StateDir:   defaultStateDir,
			ScratchDir: defaultScratchDir,
			OutputDir:  defaultOutputDir,
			MusicDir:   defaultMusicDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Encoder: Encoder{
			SegmentSecs:  defaultSegmentSeconds,
			PlaylistName: defaultHLSPlaylistName,
			ProbeTimeout: defaultProbeTimeout,
		},
		Renderer: Renderer{
			RequestTimeout: defaultRendererTimeout,
		},
		Playback: Playback{
			Loop:                    true,
			SegmentFailureThreshold: defaultFailureThreshold,
			WatchProgressMaxRecords: defaultProgressRecords,
			SkipGraceSeconds:        defaultSkipGraceSeconds,
		},
		Bumpers: Bumpers{
			Enabled:        true,
			BlocksAhead:    defaultBlocksAhead,
			NetworkName:    defaultNetworkName,
			WeatherEnabled: false,
			WeatherURL:     defaultWeatherURL,
			WeatherTimeout: defaultWeatherTimeout,
		},
		RenderCache: RenderCache{
			Enabled:    true,
			MaxEntries: defaultRenderCacheMax,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			ChannelEvents:  true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
