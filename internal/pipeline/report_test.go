package pipeline_test

import (
	"testing"

	"mirage/internal/assembly"
	"mirage/internal/experience"
	"mirage/internal/pipeline"
	"mirage/internal/services"
	"mirage/internal/stage"
)

func TestReportSummary(t *testing.T) {
	run := experience.RunContext{Location: "Nuuk"}
	cases := []struct {
		name   string
		report pipeline.Report
		want   string
	}{
		{
			name: "done with fallback",
			report: pipeline.Report{
				Run:     run,
				State:   pipeline.StateDone,
				Bundle:  &assembly.Bundle{Page: "/tmp/nuuk/index.html"},
				Results: []stage.Result{stage.DegradedWith(stage.VisualGeneration, "placeholder")},
			},
			want: "Nuuk: experience ready at /tmp/nuuk/index.html (fallbacks: visual generation)",
		},
		{
			name: "failed",
			report: pipeline.Report{
				Run:     run,
				State:   pipeline.StateFailed,
				Failure: &pipeline.Failure{Stage: stage.DataGathering, Kind: services.KindToolNotFound, Message: "atmos missing"},
			},
			want: "Nuuk: failed during data gathering [tool_not_found]: atmos missing",
		},
		{
			name:   "stopped mid-run",
			report: pipeline.Report{Run: run, State: pipeline.StateAssembly},
			want:   "Nuuk: run stopped in state assembly",
		},
	}
	for _, tc := range cases {
		if got := tc.report.Summary(); got != tc.want {
			t.Fatalf("%s: summary = %q, want %q", tc.name, got, tc.want)
		}
	}
}
