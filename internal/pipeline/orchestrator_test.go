package pipeline_test

import (
	"context"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"mirage/internal/assembly"
	"mirage/internal/config"
	"mirage/internal/experience"
	"mirage/internal/fileutil"
	"mirage/internal/pipeline"
	"mirage/internal/services"
	"mirage/internal/services/toolrun"
	"mirage/internal/stage"
	"mirage/internal/testsupport"
)

func mustOutcome(t *testing.T, report pipeline.Report, id stage.ID, want stage.Outcome) stage.Result {
	t.Helper()
	res, ok := report.Result(id)
	if !ok {
		t.Fatalf("no result for %s", id)
	}
	if res.Outcome != want {
		t.Fatalf("%s outcome = %s, want %s (%+v)", id, res.Outcome, want, res)
	}
	return res
}

func TestKyotoAudioOnlyRun(t *testing.T) {
	h := newHarness(t)
	report, err := h.run(t, "Kyoto, Japan", experience.Mode{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != pipeline.StateDone {
		t.Fatalf("state = %s", report.State)
	}
	if report.Bundle == nil {
		t.Fatal("expected bundle")
	}
	if math.Abs(report.Bundle.Timeline.Span()-187.4) > assembly.Epsilon {
		t.Fatalf("timeline span = %v", report.Bundle.Timeline.Span())
	}
	if report.Bundle.Media.Video != "" || report.Bundle.Media.Audio != experience.AudioFile || report.Bundle.Media.Image != experience.ImageFile {
		t.Fatalf("unexpected media %+v", report.Bundle.Media)
	}
	if report.Narration.DurationSource != "stdout" {
		t.Fatalf("duration source = %q", report.Narration.DurationSource)
	}
	if _, err := assembly.Verify(report.Run.OutputDir); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok, _ := fileutil.Exists(filepath.Join(report.Run.OutputDir, ".mirage.lock")); ok {
		t.Fatal("lock file should be removed after the run")
	}

	wantStates := []pipeline.State{
		pipeline.StateDataGathering, pipeline.StateAudioSynthesis, pipeline.StateVisualGeneration,
		pipeline.StateAssembly, pipeline.StateDone,
	}
	var gotStates []pipeline.State
	for _, tr := range report.Transitions {
		gotStates = append(gotStates, tr.To)
	}
	if diff := cmp.Diff(wantStates, gotStates); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}

	stored, err := h.store.Get(context.Background(), report.Run.ID)
	if err != nil {
		t.Fatalf("history Get: %v", err)
	}
	if stored.State != "done" || stored.PagePath != report.Bundle.Page || len(stored.Stages) != 5 {
		t.Fatalf("unexpected history row %+v", stored)
	}
	if len(h.notifier.completed) != 1 || len(h.notifier.failed) != 0 {
		t.Fatalf("unexpected notifications %+v", h.notifier)
	}
}

func TestMotionNeverInvokedWithoutVideoMode(t *testing.T) {
	h := newHarness(t)
	report, err := h.run(t, "Lisbon", experience.Mode{Video: false})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := h.fake.Calls("vidius"); calls != 0 {
		t.Fatalf("vidius called %d times", calls)
	}
	res := mustOutcome(t, report, stage.MotionSynthesis, stage.Skipped)
	if res.Reason != "video mode off" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestVideoRunAnimatesRealImage(t *testing.T) {
	h := newHarness(t)
	report, err := h.run(t, "Reykjavik", experience.Mode{Video: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	mustOutcome(t, report, stage.MotionSynthesis, stage.Success)
	if report.Bundle.Media.Video != experience.VideoFile {
		t.Fatalf("expected video in bundle, got %+v", report.Bundle.Media)
	}
	reqs := h.fake.Requests("vidius")
	if len(reqs) != 1 {
		t.Fatalf("vidius calls = %d", len(reqs))
	}
	wantPrompt := "Cinematic slow motion animation of Reykjavik, realistic weather, highly detailed"
	if reqs[0].Args[0] != wantPrompt || reqs[0].Args[len(reqs[0].Args)-1] != "-na" {
		t.Fatalf("unexpected vidius args %q", reqs[0].Args)
	}
}

func TestTimesSquarePlaceholderSkipsMotionByDefault(t *testing.T) {
	h := newHarness(t)
	h.fake.Handle("lumina", testsupport.Fail(services.ErrToolExit, "model crashed"))

	report, err := h.run(t, "Times Square", experience.Mode{Video: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != pipeline.StateDone {
		t.Fatalf("state = %s", report.State)
	}
	visual := mustOutcome(t, report, stage.VisualGeneration, stage.Degraded)
	if visual.Kind != services.KindToolNonZeroExit {
		t.Fatalf("visual kind = %q", visual.Kind)
	}
	motion := mustOutcome(t, report, stage.MotionSynthesis, stage.Skipped)
	if motion.Reason != "image is a placeholder" {
		t.Fatalf("motion reason = %q", motion.Reason)
	}
	if calls := h.fake.Calls("vidius"); calls != 0 {
		t.Fatalf("vidius called %d times", calls)
	}
	if !report.Visual.Placeholder || report.Bundle.Media.Video != "" {
		t.Fatalf("expected placeholder image without video, got %+v", report.Bundle.Media)
	}
	convert := h.fake.Requests("convert")
	if len(convert) != 1 {
		t.Fatalf("convert calls = %d", len(convert))
	}
	if !containsArg(convert[0].Args, "Times Square") {
		t.Fatalf("placeholder caption missing from %q", convert[0].Args)
	}
	if diff := cmp.Diff([]string{"visual generation"}, report.Degraded()); diff != "" {
		t.Fatalf("degraded mismatch (-want +got):\n%s", diff)
	}
}

func TestTimesSquarePlaceholderAnimatedWhenAllowed(t *testing.T) {
	h := newHarness(t, testsupport.WithPipeline(func(p *config.Pipeline) {
		p.AnimatePlaceholder = true
	}))
	h.fake.Handle("lumina", testsupport.Fail(services.ErrToolExit, "model crashed"))

	report, err := h.run(t, "Times Square", experience.Mode{Video: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	mustOutcome(t, report, stage.VisualGeneration, stage.Degraded)
	mustOutcome(t, report, stage.MotionSynthesis, stage.Success)
	if calls := h.fake.Calls("vidius"); calls != 1 {
		t.Fatalf("vidius called %d times", calls)
	}
	if report.Bundle.Media.Video != experience.VideoFile || !report.Visual.Placeholder {
		t.Fatalf("expected video built from placeholder, got %+v / %+v", report.Bundle.Media, report.Visual)
	}
	if _, err := assembly.Verify(report.Run.OutputDir); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestPlaceholderWithoutImageMagickWritesSolidPNG(t *testing.T) {
	h := newHarness(t)
	h.fake.Handle("lumina", testsupport.Stdout("done"))
	h.fake.Handle("convert", testsupport.Fail(services.ErrToolNotFound, "convert missing"))

	report, err := h.run(t, "Nairobi", experience.Mode{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	visual := mustOutcome(t, report, stage.VisualGeneration, stage.Degraded)
	if visual.Kind != services.KindMalformedOutput {
		t.Fatalf("visual kind = %q", visual.Kind)
	}
	if visual.Reason != "placeholder image (solid)" {
		t.Fatalf("reason = %q", visual.Reason)
	}
	f, err := os.Open(filepath.Join(report.Run.OutputDir, experience.ImageFile))
	if err != nil {
		t.Fatalf("open placeholder: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode placeholder: %v", err)
	}
	if img.Bounds().Dx() != h.cfg.Pipeline.PlaceholderSize {
		t.Fatalf("placeholder width = %d", img.Bounds().Dx())
	}
}

func TestAudioFailureFailsRunWithoutDocument(t *testing.T) {
	h := newHarness(t)
	h.fake.Handle("gen-tts", testsupport.Fail(services.ErrToolExit, "voice model unavailable"))

	report, err := h.run(t, "Kyoto", experience.Mode{Video: true})
	var runErr *pipeline.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if report.State != pipeline.StateFailed {
		t.Fatalf("state = %s", report.State)
	}
	if report.Failure.Stage != stage.AudioSynthesis || report.Failure.Kind != services.KindToolNonZeroExit {
		t.Fatalf("unexpected failure %+v", report.Failure)
	}
	if _, ok := report.Result(stage.Assembly); ok {
		t.Fatal("assembly must not run after an abort")
	}
	if calls := h.fake.Calls("vidius"); calls != 0 {
		t.Fatalf("vidius called %d times", calls)
	}
	for _, name := range []string{experience.PageFile, experience.ManifestFile, experience.AudioFile} {
		if ok, _ := fileutil.Exists(filepath.Join(report.Run.OutputDir, name)); ok {
			t.Fatalf("%s must not exist after audio failure", name)
		}
	}
	if !fileutil.NonEmptyFile(filepath.Join(report.Run.OutputDir, experience.ContextFile)) {
		t.Fatal("artifacts from completed stages should remain")
	}

	stored, err := h.store.Get(context.Background(), report.Run.ID)
	if err != nil {
		t.Fatalf("history Get: %v", err)
	}
	if stored.State != "failed" || stored.FailedStage != "audio_synthesis" || stored.ErrorKind != "tool_non_zero_exit" {
		t.Fatalf("unexpected history row %+v", stored)
	}
	if len(h.notifier.failed) != 1 || h.notifier.failed[0].Stage != "audio_synthesis" {
		t.Fatalf("unexpected failure notifications %+v", h.notifier.failed)
	}
}

func TestSilentAudioSubstitution(t *testing.T) {
	h := newHarness(t, testsupport.WithPipeline(func(p *config.Pipeline) {
		p.AllowSilentAudio = true
		p.SilentAudioSeconds = 45
	}))
	h.fake.Handle("gen-tts", testsupport.Fail(services.ErrToolNotFound, "gen-tts missing"))

	report, err := h.run(t, "Cairo", experience.Mode{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	audio := mustOutcome(t, report, stage.AudioSynthesis, stage.Degraded)
	if audio.Kind != services.KindToolNotFound || audio.Reason != "silent narration" {
		t.Fatalf("unexpected audio result %+v", audio)
	}
	if !report.Narration.Silent || report.Narration.Duration != 45 {
		t.Fatalf("unexpected narration %+v", report.Narration)
	}
	if report.Bundle.Media.Audio != "" || report.Bundle.Timeline.Duration != 45 {
		t.Fatalf("unexpected bundle %+v", report.Bundle)
	}
}

func TestRetriedStageMatchesFirstTryResult(t *testing.T) {
	clean := newHarness(t)
	want, err := clean.run(t, "Osaka", experience.Mode{})
	if err != nil {
		t.Fatalf("clean Run: %v", err)
	}

	flaky := newHarness(t)
	succeed := testsupport.WriteArg("--output-file", []byte("ID3audio"), "duration=187.4\n")
	var calls atomic.Int32
	flaky.fake.Handle("gen-tts", func(ctx context.Context, req toolrun.Request) (toolrun.Output, error) {
		if calls.Add(1) == 1 {
			return toolrun.Output{ExitCode: 75}, services.Wrap(services.ErrRateLimited, "", "gen-tts", "429", nil)
		}
		return succeed(ctx, req)
	})
	got, err := flaky.run(t, "Osaka", experience.Mode{})
	if err != nil {
		t.Fatalf("flaky Run: %v", err)
	}
	if diff := cmp.Diff(want.Results, got.Results); diff != "" {
		t.Fatalf("retried results differ (-first-try +retried):\n%s", diff)
	}
	if got.Timings[stage.AudioSynthesis].Attempts != 2 || want.Timings[stage.AudioSynthesis].Attempts != 1 {
		t.Fatalf("unexpected attempts %+v vs %+v", got.Timings, want.Timings)
	}
}

func TestRetryBudgetThenFallback(t *testing.T) {
	h := newHarness(t)
	h.fake.Handle("lumina", testsupport.Fail(services.ErrToolTimeout, "gpu busy"))

	report, err := h.run(t, "Lima", experience.Mode{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := h.fake.Calls("lumina"); calls != 1+h.cfg.Pipeline.RetryAttempts {
		t.Fatalf("lumina calls = %d", calls)
	}
	visual := mustOutcome(t, report, stage.VisualGeneration, stage.Degraded)
	if visual.Kind != services.KindToolTimeout {
		t.Fatalf("visual kind = %q", visual.Kind)
	}
}

func TestMotionFailureKeepsStillBackdrop(t *testing.T) {
	h := newHarness(t)
	h.fake.Handle("vidius", testsupport.Fail(services.ErrToolExit, "decoder crash"))

	report, err := h.run(t, "Quito", experience.Mode{Video: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	mustOutcome(t, report, stage.MotionSynthesis, stage.Degraded)
	if report.Bundle.Media.Video != "" {
		t.Fatalf("no video expected, got %+v", report.Bundle.Media)
	}
}

func TestDataGatheringFailureStopsRun(t *testing.T) {
	h := newHarness(t)
	h.fake.Handle("atmos", testsupport.Fail(services.ErrToolNotFound, "atmos missing"))

	report, err := h.run(t, "Perth", experience.Mode{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if report.Failure.Stage != stage.DataGathering || report.Failure.Kind != services.KindToolNotFound {
		t.Fatalf("unexpected failure %+v", report.Failure)
	}
	if h.fake.Calls("gen-tts") != 0 || h.fake.Calls("lumina") != 0 {
		t.Fatal("no downstream stage may run after data gathering fails")
	}
}

func TestCanceledRunIsClassified(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.runContext(t, ctx, "Hobart", experience.Mode{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if report.Failure.Kind != services.KindCanceled {
		t.Fatalf("kind = %q", report.Failure.Kind)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestCancelDuringToolRemovesPartialAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bin := t.TempDir()
	cfg.Tools.Atmos = writeTool(t, bin, "atmos", `echo "Fog lifting, 9C."`)
	cfg.Tools.GenTTS = writeTool(t, bin, "gen-tts", `while [ $# -gt 0 ]; do
  [ "$1" = "--output-file" ] && out="$2"
  shift
done
printf partial > "$out"
exec sleep 30`)
	cfg.Tools.Lumina = writeTool(t, bin, "lumina", `exec sleep 30`)

	run, err := experience.NewRunContext(cfg, "Halifax", experience.Mode{}, time.Now())
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	audio := run.Path(experience.AudioFile)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for !fileutil.NonEmptyFile(audio) && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
		time.Sleep(700 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	report, err := pipeline.New(cfg, pipeline.WithNotifier(&recordingNotifier{})).Run(ctx, run)
	if err == nil {
		t.Fatal("expected failure")
	}
	if time.Since(start) > 15*time.Second {
		t.Fatal("cancel did not stop the running tool promptly")
	}
	if report.Failure == nil || report.Failure.Kind != services.KindCanceled {
		t.Fatalf("unexpected failure %+v", report.Failure)
	}
	if _, statErr := os.Stat(audio); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial audio left behind, stat err %v", statErr)
	}
}

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLockedOutputDirectoryFails(t *testing.T) {
	h := newHarness(t)
	run, err := experience.NewRunContext(h.cfg, "Bergen", experience.Mode{}, time.Now())
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	if err := os.MkdirAll(run.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(filepath.Join(run.OutputDir, ".mirage.lock"))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer held.Unlock()

	report, err := pipeline.New(h.cfg, pipeline.WithExecutor(h.fake), pipeline.WithNotifier(h.notifier)).Run(context.Background(), run)
	if err == nil || report.State != pipeline.StateFailed {
		t.Fatalf("expected failure, got %s / %v", report.State, err)
	}
	if h.fake.Calls("atmos") != 0 {
		t.Fatal("no stage may run while the directory is locked")
	}
}

func containsArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}
