package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"mirage/internal/logging"
	"mirage/internal/services"
)

// InvokeOptions configures a single adapter call.
type InvokeOptions struct {
	Stage   ID
	Timeout time.Duration
	// Outputs are absolute paths the call may create; they are removed on failure.
	Outputs []string
	Logger  *slog.Logger
}

// Attempt describes the outcome of one adapter call.
type Attempt struct {
	Err           error
	Kind          services.ErrorKind
	Elapsed       time.Duration
	CorrelationID string
}

// OK reports whether the call succeeded.
func (a Attempt) OK() bool { return a.Err == nil }

// Invoke runs fn under the stage timeout and converts whatever happens into an
// Attempt. Panics are recovered as internal errors; a deadline hit by the
// stage timeout is reported as tool_timeout even if fn returns a plain error.
func Invoke(ctx context.Context, opts InvokeOptions, fn func(context.Context) error) Attempt {
	attempt := Attempt{CorrelationID: uuid.NewString()}
	ctx = services.WithStage(ctx, string(opts.Stage))
	ctx = services.WithRequestID(ctx, attempt.CorrelationID)
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldCorrelationID, attempt.CorrelationID))

	runCtx := ctx
	cancel := func() {}
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	start := time.Now()
	logger.Debug("stage attempt started",
		logging.String(logging.FieldEventType, "stage_attempt_start"),
		logging.Duration("timeout", opts.Timeout),
	)
	err := call(runCtx, opts.Stage, fn)
	attempt.Elapsed = time.Since(start)

	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrToolTimeout) {
		err = services.Wrap(services.ErrToolTimeout, string(opts.Stage), "invoke",
			fmt.Sprintf("stage exceeded %s", opts.Timeout), err)
	}
	attempt.Err = err
	attempt.Kind = services.KindOf(err)

	if err != nil {
		removeOutputs(logger, opts.Outputs)
		logger.Debug("stage attempt failed",
			logging.String(logging.FieldEventType, "stage_attempt_failed"),
			logging.String(logging.FieldErrorKind, string(attempt.Kind)),
			logging.Duration("elapsed", attempt.Elapsed),
			logging.Error(err),
		)
		return attempt
	}
	logger.Debug("stage attempt succeeded",
		logging.String(logging.FieldEventType, "stage_attempt_complete"),
		logging.Duration("elapsed", attempt.Elapsed),
	)
	return attempt
}

func call(ctx context.Context, id ID, fn func(context.Context) error) (err error) {
	if fn == nil {
		return services.Wrap(services.ErrInternal, string(id), "invoke", "no adapter bound", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrInternal, string(id), "invoke", fmt.Sprintf("adapter panic: %v", r), nil)
		}
	}()
	return fn(ctx)
}

func removeOutputs(logger *slog.Logger, paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove partial artifact",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "artifact_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "delete the file manually before reusing the directory"),
				logging.String(logging.FieldImpact, "a partial file remains in the run directory"),
			)
		}
	}
}
