package imagemagick_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"mirage/internal/services"
	"mirage/internal/services/imagemagick"
	"mirage/internal/services/toolrun"
	"mirage/internal/testsupport"
)

func TestPlaceholderArgs(t *testing.T) {
	plain := imagemagick.Placeholder{}.Args("out.png")
	if got := strings.Join(plain, " "); got != "-size 1024x1024 xc:black out.png" {
		t.Fatalf("unexpected plain args %q", got)
	}
	captioned := imagemagick.Placeholder{Color: "navy", Size: 512, Caption: "Times Square"}.Args("out.png")
	got := strings.Join(captioned, " ")
	if !strings.HasPrefix(got, "-size 512x512 xc:navy") || !strings.Contains(got, "-annotate +0+0 Times Square") || !strings.HasSuffix(got, "out.png") {
		t.Fatalf("unexpected captioned args %q", got)
	}
}

func TestPlaceholderArgsEscapeCaption(t *testing.T) {
	cases := map[string]string{
		"100% Humidity":   "100%% Humidity",
		"@/etc/passwd":    "/etc/passwd",
		"@@ %[fx:1] Oslo": "%%[fx:1] Oslo",
	}
	for caption, want := range cases {
		args := imagemagick.Placeholder{Caption: caption}.Args("out.png")
		if got := args[len(args)-2]; got != want {
			t.Fatalf("caption %q rendered as %q, want %q", caption, got, want)
		}
	}
	if args := (imagemagick.Placeholder{Caption: " @ "}).Args("out.png"); containsFlag(args, "-annotate") {
		t.Fatalf("empty caption should not annotate: %v", args)
	}
}

func containsFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

func TestRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "background_art.png")
	exec := testsupport.NewFakeExecutor()
	exec.Handle("convert", func(ctx context.Context, req toolrun.Request) (toolrun.Output, error) {
		testsupport.WriteFile(t, req.Args[len(req.Args)-1], 16)
		return toolrun.Output{}, nil
	})
	if err := imagemagick.New("", imagemagick.WithExecutor(exec)).Render(context.Background(), imagemagick.Placeholder{Caption: "Kyoto"}, path); err != nil {
		t.Fatalf("Render: %v", err)
	}

	exec.Handle("convert", testsupport.Fail(services.ErrToolExit, "no delegate"))
	err := imagemagick.New("", imagemagick.WithExecutor(exec)).Render(context.Background(), imagemagick.Placeholder{}, path)
	if services.KindOf(err) != services.KindToolNonZeroExit {
		t.Fatalf("expected tool_non_zero_exit, got %v", err)
	}
}
