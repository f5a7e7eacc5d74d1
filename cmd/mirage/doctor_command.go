package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mirage/internal/pipeline"
	"mirage/internal/preflight"
	"mirage/internal/stage"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var video bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, directories, and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			health := pipeline.NewAdapters(cfg, ctx.executor).Health(cmd.Context())
			checks := preflight.RunAll(cmd.Context(), cfg)

			problems := 0
			rows := make([][]string, 0, len(health)+len(checks))
			for _, h := range health {
				label, tone := healthStatus(h, video)
				if tone == toneFail {
					problems++
				}
				rows = append(rows, []string{h.Name, paint(out, label, tone), h.Detail})
			}
			for _, c := range checks {
				label, tone := "ok", toneOK
				if !c.Passed {
					label, tone = "failed", toneFail
					problems++
				}
				rows = append(rows, []string{c.Name, paint(out, label, tone), c.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&video, "video", "v", false, "Treat vidius as required")
	return cmd
}

// healthStatus grades a tool. vidius only matters for video runs.
func healthStatus(h stage.Health, video bool) (string, statusTone) {
	switch {
	case h.Ready:
		return "ok", toneOK
	case h.Name == "vidius" && video:
		return "missing", toneFail
	case h.Optional:
		return "fallback", toneWarn
	default:
		return "missing", toneFail
	}
}
