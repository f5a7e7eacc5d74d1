package assembly

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"mirage/internal/experience"
	"mirage/internal/fileutil"
	"mirage/internal/logging"
	"mirage/internal/services"
	"mirage/internal/stage"
	"mirage/internal/textutil"
)

//go:embed page.html.tmpl
var pageTemplate string

var page = template.Must(template.New("page").Parse(pageTemplate))

// manifestVersion is bumped when the experience.json layout changes.
const manifestVersion = 1

// Inputs are the upstream payloads handed to the assembler.
type Inputs struct {
	Weather   experience.WeatherPayload
	Narration experience.NarrationAudio
	Visual    experience.VisualArtifact
	Stages    []stage.Result
}

// Media lists bundle-relative media references.
type Media struct {
	Audio string `json:"audio,omitempty"`
	Image string `json:"image"`
	Video string `json:"video,omitempty"`
}

// Files returns the non-empty references.
func (m Media) Files() []string {
	files := make([]string, 0, 3)
	for _, name := range []string{m.Audio, m.Image, m.Video} {
		if name != "" {
			files = append(files, name)
		}
	}
	return files
}

// Manifest is persisted as experience.json beside the page.
type Manifest struct {
	Version        int            `json:"version"`
	RunID          string         `json:"run_id"`
	Location       string         `json:"location"`
	StartedAt      time.Time      `json:"started_at"`
	AssembledAt    time.Time      `json:"assembled_at"`
	Duration       float64        `json:"duration"`
	DurationSource string         `json:"duration_source,omitempty"`
	Silent         bool           `json:"silent_narration,omitempty"`
	Placeholder    bool           `json:"placeholder_image,omitempty"`
	Media          Media          `json:"media"`
	Timeline       Timeline       `json:"timeline"`
	Stages         []stage.Result `json:"stages,omitempty"`
}

// Bundle describes a written experience.
type Bundle struct {
	Dir      string
	Page     string
	Manifest string
	Media    Media
	Timeline Timeline
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the assembly timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Assembler writes the synchronized page and manifest for a run.
type Assembler struct {
	segments int
	now      func() time.Time
	logger   *slog.Logger
}

// New constructs an assembler that splits cue-less narration into segments.
func New(segments int, opts ...Option) *Assembler {
	a := &Assembler{segments: segments, now: time.Now, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble verifies every referenced media file, builds the timeline, and
// writes experience.json then index.html. Both writes are atomic, and the
// page is written last so its presence marks a complete bundle.
func (a *Assembler) Assemble(ctx context.Context, run experience.RunContext, in Inputs) (Bundle, error) {
	const op = "assemble"
	id := string(stage.Assembly)
	if err := ctx.Err(); err != nil {
		return Bundle{}, err
	}

	media := Media{Image: in.Visual.ImageFile, Video: in.Visual.VideoFile}
	if !in.Narration.Silent {
		media.Audio = in.Narration.File
		if media.Audio == "" {
			return Bundle{}, services.Wrap(services.ErrMalformedOutput, id, op, "narration has no audio file", nil)
		}
	}
	if media.Image == "" {
		return Bundle{}, services.Wrap(services.ErrMalformedOutput, id, op, "no backdrop image", nil)
	}
	for _, ref := range media.Files() {
		if err := checkReference(run.OutputDir, ref); err != nil {
			return Bundle{}, services.Wrap(services.ErrMalformedOutput, id, op, "media reference "+ref, err)
		}
	}

	timeline, err := BuildTimeline(in.Narration.Duration, TimelineOptions{
		Boundaries: in.Narration.Cues,
		Segments:   a.segments,
		Text:       in.Weather.Text(),
		Video:      in.Visual.HasVideo(),
	})
	if err != nil {
		return Bundle{}, services.Wrap(services.ErrMalformedOutput, id, op, "timeline", err)
	}

	manifest := Manifest{
		Version:        manifestVersion,
		RunID:          run.ID,
		Location:       run.Location,
		StartedAt:      run.StartedAt,
		AssembledAt:    a.now(),
		Duration:       in.Narration.Duration,
		DurationSource: in.Narration.DurationSource,
		Silent:         in.Narration.Silent,
		Placeholder:    in.Visual.Placeholder,
		Media:          media,
		Timeline:       timeline,
		Stages:         in.Stages,
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Bundle{}, services.Wrap(services.ErrInternal, id, op, "encode manifest", err)
	}

	var buf bytes.Buffer
	err = page.Execute(&buf, pageData{
		Title:     textutil.TitleLocation(run.Location),
		AudioFile: media.Audio,
		ImageFile: media.Image,
		VideoFile: media.Video,
		Timeline:  timeline,
	})
	if err != nil {
		return Bundle{}, services.Wrap(services.ErrInternal, id, op, "render page", err)
	}

	bundle := Bundle{
		Dir:      run.OutputDir,
		Page:     run.Path(experience.PageFile),
		Manifest: run.Path(experience.ManifestFile),
		Media:    media,
		Timeline: timeline,
	}
	if err := fileutil.WriteFileAtomic(bundle.Manifest, append(manifestData, '\n'), 0o644); err != nil {
		return Bundle{}, services.Wrap(services.ErrInternal, id, op, "write manifest", err)
	}
	if err := fileutil.WriteFileAtomic(bundle.Page, buf.Bytes(), 0o644); err != nil {
		return Bundle{}, services.Wrap(services.ErrInternal, id, op, "write page", err)
	}

	a.logger.Info("experience assembled",
		logging.String(logging.FieldEventType, "bundle_written"),
		logging.String("page", bundle.Page),
		logging.Float64("duration_seconds", timeline.Duration),
		logging.Int("cues", len(timeline.Cues)),
		logging.Float64("cue_span_seconds", timeline.Span()),
		logging.Bool("video", media.Video != ""),
		logging.Bool("placeholder", in.Visual.Placeholder),
	)
	return bundle, nil
}

type pageData struct {
	Title     string
	AudioFile string
	ImageFile string
	VideoFile string
	Timeline  Timeline
}

// checkReference requires ref to be a plain relative path inside dir that
// names a non-empty file.
func checkReference(dir, ref string) error {
	if ref == "" {
		return fmt.Errorf("empty reference")
	}
	if filepath.IsAbs(ref) || strings.Contains(ref, "://") {
		return fmt.Errorf("%q is not relative", ref)
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%q escapes the bundle", ref)
	}
	if !fileutil.NonEmptyFile(filepath.Join(dir, clean)) {
		return fmt.Errorf("%q is missing or empty", ref)
	}
	return nil
}
