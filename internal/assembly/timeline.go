package assembly

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Epsilon bounds the allowed drift between the timeline and the narration.
const Epsilon = 1e-6

// minCueLength drops boundaries closer together than this.
const minCueLength = 0.05

// Cue is one synchronized segment of the presentation.
type Cue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	// Pan is the backdrop position at Start as a fraction of the full pan.
	Pan  float64 `json:"pan"`
	Text string  `json:"text"`
	// RestartVideo rewinds the looping video when the cue begins.
	RestartVideo bool `json:"restart_video"`
}

// Timeline is the ordered set of cues covering the narration.
type Timeline struct {
	Duration float64 `json:"duration"`
	Cues     []Cue   `json:"cues"`
}

// TimelineOptions controls cue construction.
type TimelineOptions struct {
	// Boundaries are explicit cue start times reported with the audio.
	Boundaries []float64
	// Segments is the equal-split count used when Boundaries is empty.
	Segments int
	Text     string
	Video    bool
}

// BuildTimeline partitions duration into cues. Explicit boundaries are
// clamped to [0, duration), sorted, and deduplicated, and the first cue is
// always anchored at zero. The final cue ends exactly at duration.
func BuildTimeline(duration float64, opts TimelineOptions) (Timeline, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return Timeline{}, fmt.Errorf("narration duration %v is not positive", duration)
	}
	starts := explicitStarts(duration, opts.Boundaries)
	if len(starts) <= 1 {
		starts = evenStarts(duration, opts.Segments)
	}

	words := strings.Fields(opts.Text)
	cues := make([]Cue, len(starts))
	for i, start := range starts {
		end := duration
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		cues[i] = Cue{
			Index:        i,
			Start:        start,
			End:          end,
			Pan:          start / duration,
			Text:         sliceWords(words, start, end, duration),
			RestartVideo: opts.Video,
		}
	}
	timeline := Timeline{Duration: duration, Cues: cues}
	if err := timeline.Validate(); err != nil {
		return Timeline{}, err
	}
	return timeline, nil
}

func explicitStarts(duration float64, boundaries []float64) []float64 {
	if len(boundaries) == 0 {
		return nil
	}
	clamped := make([]float64, 0, len(boundaries)+1)
	clamped = append(clamped, 0)
	for _, b := range boundaries {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			continue
		}
		b = math.Max(0, math.Min(b, duration))
		if duration-b < minCueLength {
			continue
		}
		clamped = append(clamped, b)
	}
	sort.Float64s(clamped)
	out := clamped[:1]
	for _, b := range clamped[1:] {
		if b-out[len(out)-1] >= minCueLength {
			out = append(out, b)
		}
	}
	return out
}

func evenStarts(duration float64, segments int) []float64 {
	if segments < 1 {
		segments = 1
	}
	starts := make([]float64, segments)
	for i := range starts {
		starts[i] = duration * float64(i) / float64(segments)
	}
	return starts
}

// sliceWords hands each cue the share of words proportional to its span.
func sliceWords(words []string, start, end, duration float64) string {
	if len(words) == 0 {
		return ""
	}
	n := float64(len(words))
	from := int(math.Round(n * start / duration))
	to := int(math.Round(n * end / duration))
	from = min(max(from, 0), len(words))
	to = min(max(to, from), len(words))
	return strings.Join(words[from:to], " ")
}

// Validate checks that cues are contiguous, ordered, start at zero, stay
// inside [0, Duration], and that the last cue ends at Duration.
func (t Timeline) Validate() error {
	if len(t.Cues) == 0 {
		return fmt.Errorf("timeline has no cues")
	}
	if math.Abs(t.Cues[0].Start) > Epsilon {
		return fmt.Errorf("first cue starts at %v, not 0", t.Cues[0].Start)
	}
	for i, cue := range t.Cues {
		if cue.Start < -Epsilon || cue.End > t.Duration+Epsilon {
			return fmt.Errorf("cue %d [%v, %v] outside [0, %v]", i, cue.Start, cue.End, t.Duration)
		}
		if cue.End <= cue.Start {
			return fmt.Errorf("cue %d has non-positive length", i)
		}
		if i > 0 && math.Abs(cue.Start-t.Cues[i-1].End) > Epsilon {
			return fmt.Errorf("gap between cue %d and %d", i-1, i)
		}
	}
	if last := t.Cues[len(t.Cues)-1].End; math.Abs(last-t.Duration) > Epsilon {
		return fmt.Errorf("timeline ends at %v, narration lasts %v", last, t.Duration)
	}
	return nil
}

// Span returns the covered duration from the first cue start to the last end.
func (t Timeline) Span() float64 {
	if len(t.Cues) == 0 {
		return 0
	}
	return t.Cues[len(t.Cues)-1].End - t.Cues[0].Start
}
