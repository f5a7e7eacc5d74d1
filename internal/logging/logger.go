package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mirage/internal/config"
)

func newHandler(format string, w io.Writer, levelVar *slog.LevelVar, addSource bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return newJSONHandler(w, levelVar, addSource)
	case "console", "":
		return newPrettyHandler(w, levelVar, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

// RunOptions controls routing for a pipeline run.
type RunOptions struct {
	// Silent drops the console handler; the log file still receives every record.
	Silent bool
	// Console overrides the console destination (stderr by default).
	Console io.Writer
}

// RunLogger bundles a run logger with the file handles it owns.
type RunLogger struct {
	*slog.Logger
	closers []io.Closer
}

// Close releases the log file.
func (l *RunLogger) Close() error {
	if l == nil {
		return nil
	}
	return closeAll(l.closers)
}

// NewRunLogger builds the logger used by `weather`: records always land in the
// configured log file and are teed to the console unless the run is silent.
func NewRunLogger(cfg *config.Config, opts RunOptions) (*RunLogger, error) {
	if cfg == nil {
		return nil, errors.New("run logger requires configuration")
	}
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Logging.Level))
	addSource := level.Level() <= slog.LevelDebug

	var handlers []slog.Handler
	var closers []io.Closer
	if path := strings.TrimSpace(cfg.Paths.LogFile); path != "" {
		fileWriter, fileClosers, err := openWriters([]string{path})
		if err != nil {
			return nil, err
		}
		closers = append(closers, fileClosers...)
		fileHandler, err := newHandler(cfg.Logging.Format, fileWriter, level, addSource)
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		handlers = append(handlers, fileHandler)
	}
	if !opts.Silent {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		handlers = append(handlers, newPrettyHandler(console, level, addSource))
	}
	return &RunLogger{Logger: slog.New(TeeHandler(handlers...)), closers: closers}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string) (io.Writer, []io.Closer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer
	var closers []io.Closer
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(trimmed); err != nil {
				closeAll(closers)
				return nil, nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				closeAll(closers)
				return nil, nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
			closers = append(closers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil, nil
	case 1:
		return writers[0], closers, nil
	default:
		return io.MultiWriter(writers...), closers, nil
	}
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
