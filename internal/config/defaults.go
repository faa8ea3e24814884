package config

const (
	defaultConfigPath       = "~/.config/pitchbatch/config.toml"
	defaultStateDir         = "~/.local/share/pitchbatch"
	defaultLogDir           = "~/.local/share/pitchbatch/logs"
	defaultOutputDir        = "~/Music/pitchbatch"
	defaultFormat           = "mp3"
	defaultBitrate          = 320
	defaultAntiAliasLength  = 32
	defaultPitchFrom        = 440.0
	defaultPitchTo          = 432.0
	defaultMaxThreads       = 4
	defaultQuality          = 5
	defaultFileExistsAction = "ask"
	defaultFFmpegBinary     = "ffmpeg"
	defaultDetectorBinary   = "aubiopitch"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

var defaultExtensions = []string{"mp3", "flac", "wav", "ogg", "m4a", "opus", "aiff", "aif", "wma"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Encode: Encode{
			OutputDir:        defaultOutputDir,
			Format:           defaultFormat,
			Bitrate:          defaultBitrate,
			AntiAlias:        true,
			AntiAliasLength:  defaultAntiAliasLength,
			Speed:            1,
			Rate:             1,
			PitchFrom:        defaultPitchFrom,
			PitchTo:          defaultPitchTo,
			MaxThreads:       defaultMaxThreads,
			Quality:          defaultQuality,
			FileExistsAction: defaultFileExistsAction,
			Extensions:       cloneStrings(defaultExtensions),
		},
		Pitch: Pitch{
			DetectorBinary: defaultDetectorBinary,
			CacheEnabled:   true,
		},
		FFmpeg: FFmpeg{
			Binary: defaultFFmpegBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
