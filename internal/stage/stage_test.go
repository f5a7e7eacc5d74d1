package stage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mirage/internal/services"
	"mirage/internal/stage"
)

func TestDependencies(t *testing.T) {
	deps := stage.Dependencies(stage.MotionSynthesis)
	if len(deps) != 2 || deps[0] != stage.AudioSynthesis || deps[1] != stage.VisualGeneration {
		t.Fatalf("unexpected motion dependencies %v", deps)
	}
	if len(stage.Dependencies(stage.DataGathering)) != 0 {
		t.Fatal("data gathering should have no dependencies")
	}
	for _, id := range stage.Ordered() {
		if !id.Valid() {
			t.Fatalf("%s should be valid", id)
		}
	}
	if stage.ID("rendering").Valid() {
		t.Fatal("unknown stage reported valid")
	}
}

func TestUnmet(t *testing.T) {
	ok := map[stage.ID]stage.Result{
		stage.DataGathering:    stage.Succeeded(stage.DataGathering),
		stage.AudioSynthesis:   stage.Succeeded(stage.AudioSynthesis),
		stage.VisualGeneration: stage.DegradedWith(stage.VisualGeneration, "placeholder image"),
		stage.MotionSynthesis:  stage.SkippedBecause(stage.MotionSynthesis, "video mode off"),
	}
	if unmet := stage.Unmet(stage.Assembly, ok); len(unmet) != 0 {
		t.Fatalf("skipped motion should not block assembly, got %v", unmet)
	}

	failedVisual := map[stage.ID]stage.Result{
		stage.DataGathering:    stage.Succeeded(stage.DataGathering),
		stage.AudioSynthesis:   stage.Succeeded(stage.AudioSynthesis),
		stage.VisualGeneration: stage.FailedWith(stage.VisualGeneration, errors.New("no image")),
	}
	unmet := stage.Unmet(stage.MotionSynthesis, failedVisual)
	if len(unmet) != 1 || unmet[0] != stage.VisualGeneration {
		t.Fatalf("expected visual generation unmet, got %v", unmet)
	}

	skippedAudio := map[stage.ID]stage.Result{
		stage.DataGathering:  stage.Succeeded(stage.DataGathering),
		stage.AudioSynthesis: stage.SkippedBecause(stage.AudioSynthesis, "not run"),
	}
	unmet = stage.Unmet(stage.MotionSynthesis, skippedAudio)
	if len(unmet) != 2 || unmet[0] != stage.AudioSynthesis || unmet[1] != stage.VisualGeneration {
		t.Fatalf("a skipped required stage and a missing one should both be unmet, got %v", unmet)
	}

	if unmet := stage.Unmet(stage.DataGathering, nil); len(unmet) != 0 {
		t.Fatalf("data gathering has no dependencies, got %v", unmet)
	}
}

func TestInvokeSuccess(t *testing.T) {
	attempt := stage.Invoke(context.Background(), stage.InvokeOptions{Stage: stage.DataGathering, Timeout: time.Second}, func(ctx context.Context) error {
		if got, _ := services.StageFromContext(ctx); got != "data_gathering" {
			t.Errorf("stage missing from context: %q", got)
		}
		if _, ok := services.RequestIDFromContext(ctx); !ok {
			t.Error("correlation id missing from context")
		}
		return nil
	})
	if !attempt.OK() || attempt.Kind != services.KindNone {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if attempt.CorrelationID == "" {
		t.Fatal("expected correlation id")
	}
}

func TestInvokeClassifiesAndCleansOutputs(t *testing.T) {
	dir := t.TempDir()
	partial := filepath.Join(dir, "podcast.mp3")
	attempt := stage.Invoke(context.Background(), stage.InvokeOptions{Stage: stage.AudioSynthesis, Outputs: []string{partial, filepath.Join(dir, "absent")}}, func(context.Context) error {
		if err := os.WriteFile(partial, []byte("half"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return services.Wrap(services.ErrMalformedOutput, "audio_synthesis", "gen-tts", "no duration", nil)
	})
	if attempt.Kind != services.KindMalformedOutput {
		t.Fatalf("unexpected kind %q", attempt.Kind)
	}
	if _, err := os.Stat(partial); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected partial artifact removed, stat err=%v", err)
	}
}

func TestInvokeTimeoutBecomesToolTimeout(t *testing.T) {
	attempt := stage.Invoke(context.Background(), stage.InvokeOptions{Stage: stage.MotionSynthesis, Timeout: 20 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("killed")
	})
	if attempt.Kind != services.KindToolTimeout {
		t.Fatalf("expected tool_timeout, got %q (%v)", attempt.Kind, attempt.Err)
	}
}

func TestInvokeParentCancelIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempt := stage.Invoke(ctx, stage.InvokeOptions{Stage: stage.VisualGeneration, Timeout: time.Second}, func(ctx context.Context) error {
		return ctx.Err()
	})
	if attempt.Kind != services.KindCanceled {
		t.Fatalf("expected canceled, got %q", attempt.Kind)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	attempt := stage.Invoke(context.Background(), stage.InvokeOptions{Stage: stage.Assembly}, func(context.Context) error {
		panic("boom")
	})
	if attempt.Kind != services.KindInternal || attempt.Err == nil {
		t.Fatalf("expected internal error, got %+v", attempt)
	}
}

func TestFailedWithCarriesDetails(t *testing.T) {
	res := stage.FailedWith(stage.AudioSynthesis, services.Wrap(services.ErrToolNotFound, "audio_synthesis", "gen-tts", "gen-tts not on PATH", nil))
	if res.Outcome != stage.Failed || res.Kind != services.KindToolNotFound || res.Message != "gen-tts not on PATH" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Usable() {
		t.Fatal("failed result must not be usable")
	}
	if !stage.DegradedWith(stage.VisualGeneration, "placeholder").Usable() {
		t.Fatal("degraded result should be usable")
	}
}
