package logging_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mirage/internal/config"
	"mirage/internal/logging"
	"mirage/internal/services"
)

func TestRunLoggerWritesFileAndConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogFile = filepath.Join(t.TempDir(), "logs", "mirage.log")
	cfg.Logging.Format = "json"

	var console bytes.Buffer
	logger, err := logging.NewRunLogger(&cfg, logging.RunOptions{Console: &console})
	if err != nil {
		t.Fatalf("NewRunLogger returned error: %v", err)
	}
	ctx := services.WithStage(services.WithRunID(context.Background(), "run-42"), "audio_synthesis")
	logging.WithContext(ctx, logger.Logger).Info("stage completed", logging.Float64("duration_seconds", 187.4))
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	content, err := os.ReadFile(cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, fragment := range []string{`"run_id":"run-42"`, `"stage":"audio_synthesis"`, `"duration_seconds":187.4`} {
		if !strings.Contains(string(content), fragment) {
			t.Fatalf("expected %s in log file, got %s", fragment, content)
		}
	}

	line := console.String()
	if !strings.Contains(line, "[audio_synthesis] stage completed") {
		t.Fatalf("unexpected console line %q", line)
	}
	if strings.Contains(line, "run-42") {
		t.Fatalf("console line should omit run_id: %q", line)
	}
}

func TestRunLoggerSilentSkipsConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogFile = filepath.Join(t.TempDir(), "mirage.log")

	var console bytes.Buffer
	logger, err := logging.NewRunLogger(&cfg, logging.RunOptions{Silent: true, Console: &console})
	if err != nil {
		t.Fatalf("NewRunLogger returned error: %v", err)
	}
	logging.ErrorWithContext(logger.Logger, "pipeline failed", "run_failed", logging.String(logging.FieldErrorKind, "tool_not_found"))
	logger.Close()

	if console.Len() != 0 {
		t.Fatalf("silent run wrote to console: %q", console.String())
	}
	content, err := os.ReadFile(cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "pipeline failed") || !strings.Contains(text, "error_kind=tool_not_found") || !strings.Contains(text, "event_type=run_failed") {
		t.Fatalf("failure summary missing from log file: %q", text)
	}
}

func TestRunLoggerRejectsUnknownFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogFile = filepath.Join(t.TempDir(), "mirage.log")
	cfg.Logging.Format = "xml"
	if _, err := logging.NewRunLogger(&cfg, logging.RunOptions{Silent: true}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogFile = filepath.Join(t.TempDir(), "warn.log")
	cfg.Logging.Format = "json"
	logger, err := logging.NewRunLogger(&cfg, logging.RunOptions{Silent: true})
	if err != nil {
		t.Fatalf("NewRunLogger returned error: %v", err)
	}
	logging.WarnWithContext(logger.Logger, "placeholder image used", "visual_fallback", logging.String(logging.FieldImpact, "no generated art"))
	logger.Close()

	content, err := os.ReadFile(cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(content)
	for _, fragment := range []string{`"event_type":"visual_fallback"`, `"error_hint"`, `"impact":"no generated art"`} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("expected %s in %s", fragment, text)
		}
	}
}

func TestJSONWritesDurationsAsSeconds(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogFile = filepath.Join(t.TempDir(), "json.log")
	cfg.Logging.Format = "json"
	logger, err := logging.NewRunLogger(&cfg, logging.RunOptions{Silent: true})
	if err != nil {
		t.Fatalf("NewRunLogger returned error: %v", err)
	}
	logger.Info("stage finished", logging.Duration("elapsed", 1500*time.Millisecond))
	logger.Close()

	content, err := os.ReadFile(cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(content), `"elapsed":1.5`) {
		t.Fatalf("expected elapsed in seconds, got %s", content)
	}
}
