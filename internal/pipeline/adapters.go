package pipeline

import (
	"context"

	"mirage/internal/config"
	"mirage/internal/media/ffprobe"
	"mirage/internal/services/atmos"
	"mirage/internal/services/gentts"
	"mirage/internal/services/imagemagick"
	"mirage/internal/services/lumina"
	"mirage/internal/services/toolrun"
	"mirage/internal/services/vidius"
	"mirage/internal/stage"
)

// WeatherSource gathers the weather payload.
type WeatherSource interface {
	Gather(ctx context.Context, location, contextPath string) (atmos.Report, error)
}

// Narrator turns text into narration audio.
type Narrator interface {
	Synthesize(ctx context.Context, text, audioPath string) (gentts.Narration, error)
}

// Illustrator produces the backdrop image.
type Illustrator interface {
	Generate(ctx context.Context, text, imagePath string) (string, error)
}

// PlaceholderRenderer draws a substitute backdrop.
type PlaceholderRenderer interface {
	Render(ctx context.Context, card imagemagick.Placeholder, path string) error
}

// Animator turns the backdrop into a looping clip.
type Animator interface {
	Animate(ctx context.Context, prompt, imagePath, videoPath string) (string, error)
}

// Adapters bundles the tool clients a run uses.
type Adapters struct {
	Weather     WeatherSource
	Narrator    Narrator
	Illustrator Illustrator
	Placeholder PlaceholderRenderer
	Animator    Animator
}

// NewAdapters builds CLI-backed adapters for cfg. A nil exec uses the
// process runner.
func NewAdapters(cfg *config.Config, exec toolrun.Executor) Adapters {
	if exec == nil {
		exec = toolrun.New()
	}
	prober := ffprobe.Prober{Binary: cfg.Tools.FFprobe, Exec: exec}
	return Adapters{
		Weather:     atmos.New(cfg.Tools.Atmos, atmos.WithExecutor(exec)),
		Narrator:    gentts.New(cfg.Tools.GenTTS, gentts.WithExecutor(exec), gentts.WithProber(prober)),
		Illustrator: lumina.New(cfg.Tools.Lumina, lumina.WithExecutor(exec)),
		Placeholder: imagemagick.New(cfg.Tools.Convert, imagemagick.WithExecutor(exec)),
		Animator:    vidius.New(cfg.Tools.Vidius, vidius.WithExecutor(exec), vidius.WithInspector(prober)),
	}
}

// Health reports readiness for every adapter that can check its tool.
func (a Adapters) Health(ctx context.Context) []stage.Health {
	var out []stage.Health
	for _, adapter := range []any{a.Weather, a.Narrator, a.Illustrator, a.Placeholder, a.Animator} {
		if checker, ok := adapter.(stage.HealthChecker); ok {
			out = append(out, checker.HealthCheck(ctx))
		}
	}
	return out
}
