package config

import (
	"fmt"
	"strings"
)

// envOverrides maps environment variables onto the string fields they replace.
// Values from the process environment win over ~/.config/mirage/.env entries.
func (c *Config) envOverrides() map[string]*string {
	return map[string]*string{
		"DEFAULT_LOCATION": &c.Defaults.Location,
		"OUTPUT_BASE_DIR":  &c.Paths.OutputBaseDir,
		"LOG_FILE":         &c.Paths.LogFile,
		"ATMOS_CMD":        &c.Tools.Atmos,
		"GEN_TTS_CMD":      &c.Tools.GenTTS,
		"LUMINA_CMD":       &c.Tools.Lumina,
		"VIDIUS_CMD":       &c.Tools.Vidius,
		"CONVERT_CMD":      &c.Tools.Convert,
		"FFPROBE_CMD":      &c.Tools.FFprobe,
		"NTFY_TOPIC":       &c.Notifications.NtfyTopic,
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	for key, target := range c.envOverrides() {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDefaults()
	c.normalizeTools()
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputBaseDir) == "" {
		c.Paths.OutputBaseDir = defaultOutputBaseDir
	}
	if c.Paths.OutputBaseDir, err = expandPath(c.Paths.OutputBaseDir); err != nil {
		return fmt.Errorf("paths.output_base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogFile) == "" {
		c.Paths.LogFile = defaultLogFile
	}
	if c.Paths.LogFile, err = expandPath(c.Paths.LogFile); err != nil {
		return fmt.Errorf("paths.log_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.EnvFile, err = expandPath(c.Paths.EnvFile); err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeDefaults() {
	c.Defaults.Location = strings.TrimSpace(c.Defaults.Location)
	if c.Defaults.Location == "" {
		c.Defaults.Location = defaultLocation
	}
}

func (c *Config) normalizeTools() {
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	fill(&c.Tools.Atmos, defaultAtmosCmd)
	fill(&c.Tools.GenTTS, defaultGenTTSCmd)
	fill(&c.Tools.Lumina, defaultLuminaCmd)
	fill(&c.Tools.Vidius, defaultVidiusCmd)
	fill(&c.Tools.Convert, defaultConvertCmd)
	fill(&c.Tools.FFprobe, defaultFFprobeCmd)
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.StageTimeoutSeconds == 0 {
		c.Pipeline.StageTimeoutSeconds = defaultStageTimeoutSeconds
	}
	if c.Pipeline.StageTimeouts == nil {
		c.Pipeline.StageTimeouts = map[string]int{}
	}
	normalized := make(map[string]int, len(c.Pipeline.StageTimeouts))
	for stage, seconds := range c.Pipeline.StageTimeouts {
		normalized[strings.ToLower(strings.TrimSpace(stage))] = seconds
	}
	c.Pipeline.StageTimeouts = normalized
	if c.Pipeline.SilentAudioSeconds == 0 {
		c.Pipeline.SilentAudioSeconds = defaultSilentAudioSeconds
	}
	if c.Pipeline.CueSegments == 0 {
		c.Pipeline.CueSegments = defaultCueSegments
	}
	c.Pipeline.PlaceholderColor = strings.TrimSpace(c.Pipeline.PlaceholderColor)
	if c.Pipeline.PlaceholderColor == "" {
		c.Pipeline.PlaceholderColor = defaultPlaceholderColor
	}
	if c.Pipeline.PlaceholderSize == 0 {
		c.Pipeline.PlaceholderSize = defaultPlaceholderSize
	}
	c.Pipeline.VideoPrompt = strings.TrimSpace(c.Pipeline.VideoPrompt)
	if c.Pipeline.VideoPrompt == "" {
		c.Pipeline.VideoPrompt = defaultVideoPrompt
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
