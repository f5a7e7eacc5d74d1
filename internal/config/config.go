package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"mirage/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains output, log, and state locations.
type Paths struct {
	OutputBaseDir string `toml:"output_base_dir"`
	LogFile       string `toml:"log_file"`
	StateDir      string `toml:"state_dir"`
	EnvFile       string `toml:"env_file"`
}

// Defaults contains values used when the CLI does not supply them.
type Defaults struct {
	Location string `toml:"location"`
}

// Tools contains the external executables each stage shells out to.
type Tools struct {
	Atmos   string `toml:"atmos"`
	GenTTS  string `toml:"gen_tts"`
	Lumina  string `toml:"lumina"`
	Vidius  string `toml:"vidius"`
	Convert string `toml:"convert"`
	FFprobe string `toml:"ffprobe"`
}

// Pipeline contains stage timing, retry, and fallback policy.
type Pipeline struct {
	StageTimeoutSeconds int            `toml:"stage_timeout_seconds"`
	StageTimeouts       map[string]int `toml:"stage_timeouts"`
	RetryAttempts       int            `toml:"retry_attempts"`
	RetryBackoffSeconds float64        `toml:"retry_backoff_seconds"`
	// AllowSilentAudio substitutes a silent narration of SilentAudioSeconds
	// when speech synthesis fails instead of aborting the run.
	AllowSilentAudio   bool    `toml:"allow_silent_audio"`
	SilentAudioSeconds float64 `toml:"silent_audio_seconds"`
	// AnimatePlaceholder lets motion synthesis run against a placeholder image.
	AnimatePlaceholder bool   `toml:"animate_placeholder"`
	CueSegments        int    `toml:"cue_segments"`
	PlaceholderColor   string `toml:"placeholder_color"`
	PlaceholderSize    int    `toml:"placeholder_size"`
	VideoPrompt        string `toml:"video_prompt"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	RunFailed      bool   `toml:"run_failed"`
}

// History contains configuration for the run ledger.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Mirage.
//
// Configuration sections by subsystem:
//   - Paths: output bundles, log file, run ledger, .env overrides
//   - Defaults: default location
//   - Tools: external tool executables
//   - Pipeline: timeouts, retries, and fallback policy
//   - Notifications: ntfy push settings
//   - History: run ledger toggle
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Defaults      Defaults      `toml:"defaults"`
	Tools         Tools         `toml:"tools"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mirage/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied. Every failure is tagged
// services.ErrConfiguration.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, invalid(err)
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, invalid(fmt.Errorf("open config: %w", err))
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, invalid(fmt.Errorf("parse config: %w", err))
		}
	}

	env, err := loadEnvFile(cfg.Paths.EnvFile)
	if err != nil {
		return nil, "", false, invalid(err)
	}
	cfg.applyEnv(env.lookup)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, invalid(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, invalid(err)
	}

	return &cfg, resolvedPath, exists, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mirage.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// envSource resolves overrides: the process environment wins over the .env file.
type envSource struct {
	file map[string]string
}

func (e envSource) lookup(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value, true
	}
	value, ok := e.file[key]
	return value, ok
}

func loadEnvFile(path string) (envSource, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return envSource{}, fmt.Errorf("paths.env_file: %w", err)
	}
	if expanded == "" {
		return envSource{}, nil
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return envSource{}, nil
		}
		return envSource{}, fmt.Errorf("stat env file: %w", err)
	}
	values, err := godotenv.Read(expanded)
	if err != nil {
		return envSource{}, fmt.Errorf("parse env file %s: %w", expanded, err)
	}
	return envSource{file: values}, nil
}

// EnsureDirectories creates the output base, log, and state directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputBaseDir, c.Paths.StateDir}
	if strings.TrimSpace(c.Paths.LogFile) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.LogFile))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StageTimeout returns the invocation timeout for a stage, honouring per-stage overrides.
func (c *Config) StageTimeout(stage string) time.Duration {
	if seconds, ok := c.Pipeline.StageTimeouts[stage]; ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}

// RetryBackoff returns the base delay used for incremental retry backoff.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Pipeline.RetryBackoffSeconds * float64(time.Second))
}

// HistoryPath returns the run ledger database path.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// VideoPromptFor renders the motion prompt for a location.
func (c *Config) VideoPromptFor(location string) string {
	return strings.ReplaceAll(c.Pipeline.VideoPrompt, "{location}", strings.TrimSpace(location))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
