package vidius_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mirage/internal/media/ffprobe"
	"mirage/internal/services"
	"mirage/internal/services/vidius"
	"mirage/internal/testsupport"
)

type stubInspector struct {
	result ffprobe.Result
}

func (s stubInspector) Inspect(context.Context, string) (ffprobe.Result, error) {
	return s.result, nil
}

func TestAnimate(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "background_art.png")
	video := filepath.Join(dir, "background_video.mp4")
	testsupport.WriteFile(t, image, 32)

	exec := testsupport.NewFakeExecutor()
	exec.Handle("vidius", testsupport.WriteArg("-o", []byte("mp4"), ""))
	inspector := stubInspector{result: ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video"}}}}
	client := vidius.New("vidius", vidius.WithExecutor(exec), vidius.WithInspector(inspector))

	prompt := "Cinematic slow motion animation of Kyoto, realistic weather, highly detailed"
	got, err := client.Animate(context.Background(), prompt, image, video)
	if err != nil {
		t.Fatalf("Animate: %v", err)
	}
	if got != video {
		t.Fatalf("unexpected path %q", got)
	}
	args := exec.Requests("vidius")[0].Args
	want := []string{prompt, "-i", image, "-o", video, "-na"}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q", i, args[i], want[i])
		}
	}
}

func TestAnimateRejectsAudioOnlyOutput(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "background_art.png")
	testsupport.WriteFile(t, image, 32)
	exec := testsupport.NewFakeExecutor()
	exec.Handle("vidius", testsupport.WriteArg("-o", []byte("mp4"), ""))
	client := vidius.New("vidius", vidius.WithExecutor(exec), vidius.WithInspector(stubInspector{}))
	_, err := client.Animate(context.Background(), "p", image, filepath.Join(dir, "v.mp4"))
	if services.KindOf(err) != services.KindMalformedOutput {
		t.Fatalf("expected malformed_output, got %v", err)
	}
}

func TestAnimateRejectsFlagLikePrompt(t *testing.T) {
	exec := testsupport.NewFakeExecutor()
	client := vidius.New("vidius", vidius.WithExecutor(exec))
	image := filepath.Join(t.TempDir(), "background_art.png")
	if err := os.WriteFile(image, []byte("PNG"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	_, err := client.Animate(context.Background(), "-o /tmp/elsewhere.mp4", image, "v.mp4")
	if services.KindOf(err) != services.KindConfigInvalid {
		t.Fatalf("expected config_invalid, got %v", err)
	}
	if exec.Calls("vidius") != 0 {
		t.Fatal("vidius must not run with a flag-like prompt")
	}
}

func TestAnimateRequiresImage(t *testing.T) {
	exec := testsupport.NewFakeExecutor()
	client := vidius.New("vidius", vidius.WithExecutor(exec))
	_, err := client.Animate(context.Background(), "p", filepath.Join(t.TempDir(), "missing.png"), "v.mp4")
	if err == nil {
		t.Fatal("expected error for missing image")
	}
	if exec.Calls("vidius") != 0 {
		t.Fatal("vidius should not run without an input image")
	}
}
