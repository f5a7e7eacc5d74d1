package experience

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"mirage/internal/config"
	"mirage/internal/services"
	"mirage/internal/textutil"
)

// EnvRunContext carries an encoded RunContext to a detached child.
const EnvRunContext = "MIRAGE_RUN_CONTEXT"

// Artifact file names inside a run directory.
const (
	ContextFile  = "context.txt"
	AudioFile    = "podcast.mp3"
	SidecarFile  = "podcast.json"
	ImageFile    = "background_art.png"
	VideoFile    = "background_video.mp4"
	PageFile     = "index.html"
	ManifestFile = "experience.json"
)

const dirTimeLayout = "2006-01-02_15-04-05"

// Mode selects optional run behaviour.
type Mode struct {
	Video      bool `json:"video"`
	Silent     bool `json:"silent"`
	Background bool `json:"background"`
}

// RunContext identifies one pipeline run.
type RunContext struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	StartedAt time.Time `json:"started_at"`
	OutputDir string    `json:"output_dir"`
	Mode      Mode      `json:"mode"`
}

// NewRunContext resolves the location (falling back to the configured
// default) and picks an output directory that does not exist yet.
func NewRunContext(cfg *config.Config, location string, mode Mode, now time.Time) (RunContext, error) {
	if cfg == nil {
		return RunContext{}, services.Wrap(services.ErrConfiguration, "", "run context", "config is required", nil)
	}
	location = strings.TrimSpace(location)
	if location == "" {
		location = strings.TrimSpace(cfg.Defaults.Location)
	}
	if location == "" {
		return RunContext{}, services.Wrap(services.ErrConfiguration, "", "run context", "no location given and defaults.location is empty", nil)
	}
	if strings.HasPrefix(location, "-") {
		return RunContext{}, services.Wrap(services.ErrConfiguration, "", "run context",
			fmt.Sprintf("location %q must not start with '-'", location), nil)
	}
	base := strings.TrimSpace(cfg.Paths.OutputBaseDir)
	if base == "" {
		return RunContext{}, services.Wrap(services.ErrConfiguration, "", "run context", "paths.output_base_dir is empty", nil)
	}
	if now.IsZero() {
		now = time.Now()
	}
	dir, err := availableDir(base, DirName(location, now))
	if err != nil {
		return RunContext{}, err
	}
	return RunContext{
		ID:        uuid.NewString(),
		Location:  location,
		StartedAt: now,
		OutputDir: dir,
		Mode:      mode,
	}, nil
}

// DirName returns the run directory name for location started at t.
func DirName(location string, t time.Time) string {
	return textutil.SanitizeLocation(location) + "_" + t.Format(dirTimeLayout)
}

func availableDir(base, name string) (string, error) {
	candidate := filepath.Join(base, name)
	for i := 2; ; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat output dir: %w", err)
		}
		if i > 99 {
			return "", services.Wrap(services.ErrInternal, "", "run context", "too many runs share "+name, nil)
		}
		candidate = filepath.Join(base, fmt.Sprintf("%s_%d", name, i))
	}
}

// Path joins name onto the run directory.
func (r RunContext) Path(name string) string {
	return filepath.Join(r.OutputDir, name)
}

// Encode serializes the context for EnvRunContext.
func (r RunContext) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode run context: %w", err)
	}
	return string(data), nil
}

// DecodeRunContext parses a value produced by Encode.
func DecodeRunContext(value string) (RunContext, error) {
	var run RunContext
	if err := json.Unmarshal([]byte(value), &run); err != nil {
		return RunContext{}, services.Wrap(services.ErrConfiguration, "", "run context", "invalid "+EnvRunContext, err)
	}
	if run.ID == "" || run.Location == "" || run.OutputDir == "" {
		return RunContext{}, services.Wrap(services.ErrConfiguration, "", "run context", EnvRunContext+" is incomplete", nil)
	}
	return run, nil
}

// Section is one named block of weather data.
type Section struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// WeatherPayload is the gathered weather, astronomy, and alert text.
type WeatherPayload struct {
	Location    string    `json:"location"`
	Sections    []Section `json:"sections"`
	ContextFile string    `json:"context_file"`
}

// Text joins non-empty sections with blank lines.
func (w WeatherPayload) Text() string {
	parts := make([]string, 0, len(w.Sections))
	for _, section := range w.Sections {
		if text := strings.TrimSpace(section.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// NarrationAudio is the narration track. File is relative to the run
// directory and empty when Silent is set.
type NarrationAudio struct {
	File           string    `json:"file,omitempty"`
	Duration       float64   `json:"duration"`
	Cues           []float64 `json:"cues,omitempty"`
	Silent         bool      `json:"silent,omitempty"`
	DurationSource string    `json:"duration_source,omitempty"`
}

// VisualArtifact is the backdrop. ImageFile is always set once visual
// generation finishes; VideoFile only when motion synthesis produced one.
type VisualArtifact struct {
	ImageFile   string `json:"image_file"`
	VideoFile   string `json:"video_file,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// HasVideo reports whether a looping video accompanies the image.
func (v VisualArtifact) HasVideo() bool {
	return strings.TrimSpace(v.VideoFile) != ""
}
