package config

const (
	defaultLocation            = "home"
	defaultOutputBaseDir       = "~/Documents/Mirage"
	defaultLogFile             = "~/.config/mirage/mirage.log"
	defaultStateDir            = "~/.local/share/mirage"
	defaultEnvFile             = "~/.config/mirage/.env"
	defaultAtmosCmd            = "atmos"
	defaultGenTTSCmd           = "gen-tts"
	defaultLuminaCmd           = "lumina"
	defaultVidiusCmd           = "vidius"
	defaultConvertCmd          = "convert"
	defaultFFprobeCmd          = "ffprobe"
	defaultStageTimeoutSeconds = 600
	defaultMotionTimeout       = 1800
	defaultRetryAttempts       = 2
	defaultRetryBackoffSeconds = 2
	defaultSilentAudioSeconds  = 60
	defaultCueSegments         = 8
	defaultPlaceholderColor    = "black"
	defaultPlaceholderSize     = 1024
	defaultVideoPrompt         = "Cinematic slow motion animation of {location}, realistic weather, highly detailed"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputBaseDir: defaultOutputBaseDir,
			LogFile:       defaultLogFile,
			StateDir:      defaultStateDir,
			EnvFile:       defaultEnvFile,
		},
		Defaults: Defaults{
			Location: defaultLocation,
		},
		Tools: Tools{
			Atmos:   defaultAtmosCmd,
			GenTTS:  defaultGenTTSCmd,
			Lumina:  defaultLuminaCmd,
			Vidius:  defaultVidiusCmd,
			Convert: defaultConvertCmd,
			FFprobe: defaultFFprobeCmd,
		},
		Pipeline: Pipeline{
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			StageTimeouts: map[string]int{
				"motion_synthesis": defaultMotionTimeout,
			},
			RetryAttempts:       defaultRetryAttempts,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			SilentAudioSeconds:  defaultSilentAudioSeconds,
			CueSegments:         defaultCueSegments,
			PlaceholderColor:    defaultPlaceholderColor,
			PlaceholderSize:     defaultPlaceholderSize,
			VideoPrompt:         defaultVideoPrompt,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
