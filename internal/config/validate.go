package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownStages = map[string]struct{}{
	"data_gathering":    {},
	"audio_synthesis":   {},
	"visual_generation": {},
	"motion_synthesis":  {},
	"assembly":          {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputBaseDir) == "" {
		return errors.New("paths.output_base_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.StageTimeoutSeconds <= 0 {
		return errors.New("pipeline.stage_timeout_seconds must be positive")
	}
	for stage, seconds := range p.StageTimeouts {
		if _, ok := knownStages[stage]; !ok {
			return fmt.Errorf("pipeline.stage_timeouts: unknown stage %q", stage)
		}
		if seconds <= 0 {
			return fmt.Errorf("pipeline.stage_timeouts.%s must be positive", stage)
		}
	}
	if p.RetryAttempts < 0 {
		return errors.New("pipeline.retry_attempts must be >= 0")
	}
	if p.RetryBackoffSeconds < 0 {
		return errors.New("pipeline.retry_backoff_seconds must be >= 0")
	}
	if p.SilentAudioSeconds <= 0 {
		return errors.New("pipeline.silent_audio_seconds must be positive")
	}
	if p.CueSegments < 1 {
		return errors.New("pipeline.cue_segments must be at least 1")
	}
	if p.PlaceholderSize < 16 || p.PlaceholderSize > 8192 {
		return errors.New("pipeline.placeholder_size must be between 16 and 8192")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return errors.New("notifications.ntfy_topic must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
