package stage

import (
	"time"

	"mirage/internal/services"
)

// Outcome classifies how a stage finished.
type Outcome string

const (
	Success  Outcome = "success"
	Degraded Outcome = "degraded"
	Failed   Outcome = "failed"
	Skipped  Outcome = "skipped"
)

// Result is the immutable record of one stage. Artifacts are file names
// relative to the run directory. Timing is kept apart so a retried result
// equals a first-try result with the same inputs.
type Result struct {
	Stage     ID                 `json:"stage"`
	Outcome   Outcome            `json:"outcome"`
	Artifacts []string           `json:"artifacts,omitempty"`
	Kind      services.ErrorKind `json:"error_kind,omitempty"`
	Message   string             `json:"message,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

// Usable reports whether downstream stages may consume the result.
func (r Result) Usable() bool {
	return r.Outcome == Success || r.Outcome == Degraded
}

// Succeeded builds a Success result.
func Succeeded(id ID, artifacts ...string) Result {
	return Result{Stage: id, Outcome: Success, Artifacts: artifacts}
}

// DegradedWith builds a Degraded result carrying the reason for substitution.
func DegradedWith(id ID, reason string, artifacts ...string) Result {
	return Result{Stage: id, Outcome: Degraded, Reason: reason, Artifacts: artifacts}
}

// FailedWith builds a Failed result from a classified error.
func FailedWith(id ID, err error) Result {
	details := services.Details(err)
	return Result{Stage: id, Outcome: Failed, Kind: details.Kind, Message: details.Message}
}

// SkippedBecause builds a Skipped result.
func SkippedBecause(id ID, reason string) Result {
	return Result{Stage: id, Outcome: Skipped, Reason: reason}
}

// Timing records how long a stage took across all attempts.
type Timing struct {
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}
