package stage

import (
	"context"
	"strings"
)

// ID names a pipeline stage. Values double as log fields and config keys.
type ID string

const (
	DataGathering    ID = "data_gathering"
	AudioSynthesis   ID = "audio_synthesis"
	VisualGeneration ID = "visual_generation"
	MotionSynthesis  ID = "motion_synthesis"
	Assembly         ID = "assembly"
)

var dependencies = map[ID][]ID{
	DataGathering:    nil,
	AudioSynthesis:   {DataGathering},
	VisualGeneration: {DataGathering},
	MotionSynthesis:  {AudioSynthesis, VisualGeneration},
	Assembly:         {AudioSynthesis, VisualGeneration, MotionSynthesis},
}

// Ordered lists every stage in execution order.
func Ordered() []ID {
	return []ID{DataGathering, AudioSynthesis, VisualGeneration, MotionSynthesis, Assembly}
}

// Dependencies returns the stages whose results id consumes.
func Dependencies(id ID) []ID {
	return append([]ID(nil), dependencies[id]...)
}

// optional stages may end Skipped without holding back their dependents.
var optional = map[ID]bool{MotionSynthesis: true}

// Unmet returns the dependencies of id that do not allow it to start. A
// dependency is met by a Success or Degraded result, or by a Skipped result
// from an optional stage.
func Unmet(id ID, results map[ID]Result) []ID {
	var out []ID
	for _, dep := range dependencies[id] {
		res, ok := results[dep]
		switch {
		case !ok:
			out = append(out, dep)
		case res.Usable():
		case res.Outcome == Skipped && optional[dep]:
		default:
			out = append(out, dep)
		}
	}
	return out
}

// Valid reports whether id names a known stage.
func (id ID) Valid() bool {
	_, ok := dependencies[id]
	return ok
}

func (id ID) String() string { return string(id) }

// Label renders the stage for humans, e.g. "audio synthesis".
func (id ID) Label() string {
	return strings.ReplaceAll(string(id), "_", " ")
}

// HealthChecker is implemented by adapters that can report tool readiness.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}
