package history

import "time"

// Run is one row of the run ledger with its per-stage records.
type Run struct {
	ID           string
	Location     string
	OutputDir    string
	StartedAt    time.Time
	FinishedAt   time.Time
	State        string
	Video        bool
	Silent       bool
	Background   bool
	FailedStage  string
	ErrorKind    string
	ErrorMessage string
	PagePath     string
	Stages       []StageRecord
}

// StageRecord captures how one stage of a run finished.
type StageRecord struct {
	Stage    string
	Outcome  string
	Kind     string
	Message  string
	Reason   string
	Attempts int
	Elapsed  time.Duration
}

// Elapsed returns the run's wall-clock duration, or zero while unfinished.
func (r Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
