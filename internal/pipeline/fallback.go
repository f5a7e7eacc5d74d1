package pipeline

import (
	"fmt"
	"time"

	"mirage/internal/config"
	"mirage/internal/services"
	"mirage/internal/stage"
)

// Action is what the orchestrator does after a failed attempt.
type Action int

const (
	Abort Action = iota
	Retry
	Substitute
)

func (a Action) String() string {
	switch a {
	case Retry:
		return "retry"
	case Substitute:
		return "substitute"
	default:
		return "abort"
	}
}

// Decision is the resolver's verdict for one failed attempt.
type Decision struct {
	Action  Action
	Backoff time.Duration
	Reason  string
}

// Policy bounds retries and enables optional substitutions.
type Policy struct {
	RetryAttempts    int
	Backoff          time.Duration
	AllowSilentAudio bool
}

// PolicyFromConfig extracts the fallback policy.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		RetryAttempts:    cfg.Pipeline.RetryAttempts,
		Backoff:          cfg.RetryBackoff(),
		AllowSilentAudio: cfg.Pipeline.AllowSilentAudio,
	}
}

// Resolver maps stage failures to recovery actions.
type Resolver struct {
	policy Policy
}

// NewResolver builds a resolver for policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Decide chooses how to continue after attempt (1-based) of id ended in
// result. Transient failures retry with attempt × backoff until the retry
// budget is spent; after that each stage's fallback applies. Cancellation
// always aborts.
func (r *Resolver) Decide(id stage.ID, result stage.Result, attempt int) Decision {
	kind := result.Kind
	if kind == services.KindCanceled {
		return Decision{Action: Abort, Reason: "run canceled"}
	}
	if services.IsTransient(kind) && attempt <= r.policy.RetryAttempts {
		return Decision{
			Action:  Retry,
			Backoff: time.Duration(attempt) * r.policy.Backoff,
			Reason:  fmt.Sprintf("%s, retry %d of %d", kind, attempt, r.policy.RetryAttempts),
		}
	}

	switch id {
	case stage.AudioSynthesis:
		if r.policy.AllowSilentAudio {
			return Decision{Action: Substitute, Reason: "silent narration"}
		}
		return Decision{Action: Abort, Reason: "narration is required"}
	case stage.VisualGeneration:
		return Decision{Action: Substitute, Reason: "placeholder image"}
	case stage.MotionSynthesis:
		return Decision{Action: Substitute, Reason: "still image backdrop"}
	case stage.DataGathering:
		return Decision{Action: Abort, Reason: "weather data is required"}
	default:
		return Decision{Action: Abort, Reason: "no fallback for " + id.Label()}
	}
}
