package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mirage/internal/config"
	"mirage/internal/deps"
	"mirage/internal/experience"
	"mirage/internal/history"
	"mirage/internal/logging"
	"mirage/internal/pipeline"
	"mirage/internal/preflight"
	"mirage/internal/procman"
	"mirage/internal/services"
)

func newWeatherCommand(ctx *commandContext) *cobra.Command {
	var location string
	var mode experience.Mode

	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Build a narrated weather experience for a location",
		Long: "Gather the forecast for a location, narrate it, paint a backdrop, and\n" +
			"assemble a self-contained page in a timestamped output directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			run, detached, err := procman.RunContextFromEnv(ctx.lookupEnv)
			if err != nil {
				return err
			}
			if !detached {
				run, err = experience.NewRunContext(cfg, location, mode, ctx.now())
				if err != nil {
					return err
				}
			}

			if failed := preflight.Failed(preflight.CheckDirectories(cfg)); len(failed) > 0 {
				return services.Wrap(services.ErrConfiguration, "", "preflight", describeFailures(failed), nil)
			}

			if run.Mode.Background && !detached {
				return startBackground(cmd, cfg, run)
			}
			return runForeground(cmd, ctx, cfg, run, detached)
		},
	}

	cmd.Flags().StringVarP(&location, "location", "l", "", "Location to report on (defaults.location when omitted)")
	cmd.Flags().BoolVarP(&mode.Video, "video", "v", false, "Animate the backdrop into a looping video")
	cmd.Flags().BoolVarP(&mode.Silent, "silent", "s", false, "Only print the final summary")
	cmd.Flags().BoolVarP(&mode.Background, "background", "b", false, "Detach and run in the background")
	return cmd
}

func startBackground(cmd *cobra.Command, cfg *config.Config, run experience.RunContext) error {
	if err := os.MkdirAll(run.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	pid, err := procman.Detach(procman.DetachOptions{
		Args:    os.Args[1:],
		LogFile: cfg.Paths.LogFile,
		Run:     run,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started background run for %s (pid %d)\n", run.Location, pid)
	fmt.Fprintf(out, "Output: %s\n", run.OutputDir)
	fmt.Fprintf(out, "Log:    %s\n", cfg.Paths.LogFile)
	return nil
}

// runForeground drives the pipeline in this process. A detached child has
// its stdout and stderr pointed at the log file already, so it never adds a
// console handler.
func runForeground(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, run experience.RunContext, detached bool) error {
	logger, err := logging.NewRunLogger(cfg, logging.RunOptions{
		Silent:  run.Mode.Silent || detached,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	for _, status := range deps.MissingRequired(preflight.CheckSystemDeps(cfg, run.Mode.Video)) {
		logging.WarnWithContext(logger.Logger, "required tool not found", "tool_missing",
			logging.String("tool", status.Name),
			logging.String("command", status.Command),
			logging.String(logging.FieldErrorHint, status.Detail),
			logging.String(logging.FieldImpact, "the stage that needs it will fail"),
		)
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger.Logger)}
	if ctx.executor != nil {
		opts = append(opts, pipeline.WithExecutor(ctx.executor))
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			logging.WarnWithContext(logger.Logger, "run history unavailable", "history_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this run will not appear in `mirage runs`"),
			)
		} else {
			defer store.Close()
			opts = append(opts, pipeline.WithRecorder(store))
		}
	}

	_, code := procman.Run(cmd.Context(), pipeline.New(cfg, opts...), run, procman.RunOptions{
		Console: cmd.OutOrStdout(),
	})
	if code != procman.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

func describeFailures(results []preflight.Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return strings.Join(parts, "; ")
}
