package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mirage/internal/config"
)

// Requirement defines an external tool Mirage invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the tools a run may call. Tools behind a fallback are optional;
// vidius is required only when video was requested.
func Requirements(cfg *config.Config, video bool) []Requirement {
	return []Requirement{
		{Name: "atmos", Command: cfg.Tools.Atmos, Description: "Weather and astronomy data"},
		{Name: "gen-tts", Command: cfg.Tools.GenTTS, Description: "Narration synthesis", Optional: cfg.Pipeline.AllowSilentAudio},
		{Name: "lumina", Command: cfg.Tools.Lumina, Description: "Background art", Optional: true},
		{Name: "vidius", Command: cfg.Tools.Vidius, Description: "Looping background video", Optional: !video},
		{Name: "convert", Command: cfg.Tools.Convert, Description: "Placeholder image fallback", Optional: true},
		{Name: "ffprobe", Command: cfg.Tools.FFprobe, Description: "Narration duration probe", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if resolved, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
				status.Detail = resolved
			}
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the required statuses that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
