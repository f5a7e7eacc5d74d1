package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mirage/internal/history"
	"mirage/internal/pipeline"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs, or show one run's stages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Run history is disabled (history.enabled = false)")
				return nil
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				run, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				renderRunDetail(cmd, run)
				return nil
			}

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRunsTable(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func renderRunsTable(runs []history.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.Location,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.State,
			formatElapsed(run.Elapsed()),
			runOutcome(run),
		})
	}
	return renderTable(
		[]string{"ID", "Location", "Started", "State", "Elapsed", "Outcome"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderRunDetail(cmd *cobra.Command, run history.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Location:   %s\n", run.Location)
	fmt.Fprintf(out, "State:      %s\n", run.State)
	fmt.Fprintf(out, "Video:      %s\n", yesNo(run.Video))
	fmt.Fprintf(out, "Output:     %s\n", run.OutputDir)
	if run.PagePath != "" {
		fmt.Fprintf(out, "Page:       %s\n", run.PagePath)
	}
	if run.FailedStage != "" {
		fmt.Fprintf(out, "Failure:    %s [%s] %s\n", run.FailedStage, run.ErrorKind, run.ErrorMessage)
	}

	rows := make([][]string, 0, len(run.Stages))
	for _, st := range run.Stages {
		note := st.Reason
		if note == "" {
			note = st.Message
		}
		rows = append(rows, []string{
			st.Stage,
			st.Outcome,
			fmt.Sprintf("%d", st.Attempts),
			formatElapsed(st.Elapsed),
			note,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"Stage", "Outcome", "Attempts", "Elapsed", "Note"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}
}

func runOutcome(run history.Run) string {
	switch {
	case run.State == string(pipeline.StateFailed):
		if run.FailedStage == "" {
			return run.ErrorKind
		}
		return fmt.Sprintf("%s [%s]", run.FailedStage, run.ErrorKind)
	case run.PagePath != "":
		return run.PagePath
	default:
		return "-"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}
