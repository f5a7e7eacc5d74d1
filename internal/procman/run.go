package procman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"mirage/internal/experience"
	"mirage/internal/pipeline"
	"mirage/internal/services"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitFailed      = 2
	ExitConfig      = 3
	ExitInterrupted = 130
)

// Runner executes one pipeline run. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, run experience.RunContext) (pipeline.Report, error)
}

// RunOptions controls foreground supervision.
type RunOptions struct {
	// Console receives the final summary line; nil discards it.
	Console io.Writer
}

// Run executes run under SIGINT/SIGTERM handling. Canceling the context
// kills in-flight tool process groups; the run still records its failure.
func Run(ctx context.Context, runner Runner, run experience.RunContext, opts RunOptions) (pipeline.Report, int) {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := runner.Run(sigCtx, run)
	if opts.Console != nil {
		fmt.Fprintln(opts.Console, report.Summary())
	}
	return report, ExitCode(err)
}

// ExitCode maps a run or setup error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		if runErr.Failure.Kind == services.KindCanceled {
			return ExitInterrupted
		}
		return ExitFailed
	}
	switch services.KindOf(err) {
	case services.KindCanceled:
		return ExitInterrupted
	case services.KindConfigInvalid:
		return ExitConfig
	default:
		return ExitError
	}
}
