package pipeline

import (
	"context"

	"mirage/internal/history"
	"mirage/internal/notifications"
)

// Recorder persists run outcomes. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// HistoryRun converts the report into a ledger row.
func (r Report) HistoryRun() history.Run {
	run := history.Run{
		ID:         r.Run.ID,
		Location:   r.Run.Location,
		OutputDir:  r.Run.OutputDir,
		StartedAt:  r.Run.StartedAt,
		FinishedAt: r.FinishedAt,
		State:      string(r.State),
		Video:      r.Run.Mode.Video,
		Silent:     r.Run.Mode.Silent,
		Background: r.Run.Mode.Background,
	}
	if r.Failure != nil {
		run.FailedStage = string(r.Failure.Stage)
		run.ErrorKind = string(r.Failure.Kind)
		run.ErrorMessage = r.Failure.Message
	}
	if r.Bundle != nil {
		run.PagePath = r.Bundle.Page
	}
	for _, res := range r.Results {
		timing := r.Timings[res.Stage]
		run.Stages = append(run.Stages, history.StageRecord{
			Stage:    string(res.Stage),
			Outcome:  string(res.Outcome),
			Kind:     string(res.Kind),
			Message:  res.Message,
			Reason:   res.Reason,
			Attempts: timing.Attempts,
			Elapsed:  timing.Elapsed,
		})
	}
	return run
}

func (r Report) completedNotice() notifications.RunSummary {
	summary := notifications.RunSummary{
		Location: r.Run.Location,
		Degraded: r.Degraded(),
		Duration: r.Elapsed(),
	}
	if r.Bundle != nil {
		summary.Page = r.Bundle.Page
	}
	return summary
}

func (r Report) failedNotice() notifications.RunFailure {
	notice := notifications.RunFailure{Location: r.Run.Location}
	if r.Failure != nil {
		notice.Stage = string(r.Failure.Stage)
		notice.Kind = string(r.Failure.Kind)
		notice.Message = r.Failure.Message
	}
	return notice
}
