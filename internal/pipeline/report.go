package pipeline

import (
	"fmt"
	"strings"
	"time"

	"mirage/internal/assembly"
	"mirage/internal/experience"
	"mirage/internal/services"
	"mirage/internal/stage"
)

// Failure is the diagnostic summary of a run that reached StateFailed.
type Failure struct {
	Stage   stage.ID           `json:"stage,omitempty"`
	Kind    services.ErrorKind `json:"kind"`
	Message string             `json:"message"`
	Err     error              `json:"-"`
}

// Summary renders the failure for logs and the console.
func (f Failure) Summary() string {
	where := "before any stage"
	if f.Stage != "" {
		where = "during " + f.Stage.Label()
	}
	return fmt.Sprintf("failed %s [%s]: %s", where, f.Kind, f.Message)
}

// RunError is returned by Run when the pipeline ends in StateFailed.
type RunError struct {
	Failure Failure
}

func (e *RunError) Error() string { return "pipeline " + e.Failure.Summary() }

func (e *RunError) Unwrap() error { return e.Failure.Err }

// Report is everything known about a run once Run returns.
type Report struct {
	Run         experience.RunContext
	State       State
	Transitions []Transition
	// Results holds one entry per stage that reached a verdict, in stage order.
	Results    []stage.Result
	Timings    map[stage.ID]stage.Timing
	Weather    experience.WeatherPayload
	Narration  experience.NarrationAudio
	Visual     experience.VisualArtifact
	Bundle     *assembly.Bundle
	Failure    *Failure
	FinishedAt time.Time
}

// Result returns the verdict recorded for id.
func (r Report) Result(id stage.ID) (stage.Result, bool) {
	for _, res := range r.Results {
		if res.Stage == id {
			return res, true
		}
	}
	return stage.Result{}, false
}

// Degraded lists the labels of stages that finished on a fallback.
func (r Report) Degraded() []string {
	var out []string
	for _, res := range r.Results {
		if res.Outcome == stage.Degraded {
			out = append(out, res.Stage.Label())
		}
	}
	return out
}

// Elapsed is the run's wall-clock duration.
func (r Report) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.Run.StartedAt)
}

// Err returns a *RunError for failed runs and nil otherwise.
func (r Report) Err() error {
	if r.Failure == nil {
		return nil
	}
	return &RunError{Failure: *r.Failure}
}

// Summary is the one-line outcome printed when a run ends.
func (r Report) Summary() string {
	if r.Failure != nil {
		return fmt.Sprintf("%s: %s", r.Run.Location, r.Failure.Summary())
	}
	if !r.State.Terminal() {
		return fmt.Sprintf("%s: run stopped in state %s", r.Run.Location, r.State)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: experience ready", r.Run.Location)
	if r.Bundle != nil {
		fmt.Fprintf(&b, " at %s", r.Bundle.Page)
	}
	if degraded := r.Degraded(); len(degraded) > 0 {
		fmt.Fprintf(&b, " (fallbacks: %s)", strings.Join(degraded, ", "))
	}
	return b.String()
}
