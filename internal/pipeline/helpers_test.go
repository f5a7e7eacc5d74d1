package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mirage/internal/config"
	"mirage/internal/experience"
	"mirage/internal/history"
	"mirage/internal/notifications"
	"mirage/internal/pipeline"
	"mirage/internal/services/toolrun"
	"mirage/internal/testsupport"
)

const probeJSON = `{"streams":[{"index":0,"codec_name":"h264","codec_type":"video"}],"format":{"duration":"6.0"}}`

type recordingNotifier struct {
	mu        sync.Mutex
	completed []notifications.RunSummary
	failed    []notifications.RunFailure
}

func (n *recordingNotifier) NotifyRunCompleted(_ context.Context, summary notifications.RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, summary)
	return nil
}

func (n *recordingNotifier) NotifyRunFailed(_ context.Context, failure notifications.RunFailure) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, failure)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type harness struct {
	cfg      *config.Config
	fake     *testsupport.FakeExecutor
	store    *history.Store
	notifier *recordingNotifier
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:      cfg,
		fake:     testsupport.NewFakeExecutor(),
		store:    testsupport.MustOpenHistory(t, cfg),
		notifier: &recordingNotifier{},
	}
	h.fake.Handle("atmos", testsupport.Stdout("Light rain and 17C with a gentle easterly breeze."))
	h.fake.Handle("gen-tts", testsupport.WriteArg("--output-file", []byte("ID3audio"), "duration=187.4\n"))
	h.fake.Handle("lumina", writeLuminaImage)
	h.fake.Handle("vidius", testsupport.WriteArg("-o", []byte("mp4video"), ""))
	h.fake.Handle("ffprobe", testsupport.Stdout(probeJSON))
	h.fake.Handle("convert", writeLastArg)
	return h
}

func (h *harness) run(t *testing.T, location string, mode experience.Mode) (pipeline.Report, error) {
	t.Helper()
	return h.runContext(t, context.Background(), location, mode)
}

func (h *harness) runContext(t *testing.T, ctx context.Context, location string, mode experience.Mode) (pipeline.Report, error) {
	t.Helper()
	run, err := experience.NewRunContext(h.cfg, location, mode, time.Now())
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	orch := pipeline.New(h.cfg,
		pipeline.WithExecutor(h.fake),
		pipeline.WithRecorder(h.store),
		pipeline.WithNotifier(h.notifier),
	)
	return orch.Run(ctx, run)
}

func writeLuminaImage(_ context.Context, req toolrun.Request) (toolrun.Output, error) {
	var dir, name string
	for i := 0; i+1 < len(req.Args); i++ {
		switch req.Args[i] {
		case "--output-dir":
			dir = req.Args[i+1]
		case "-f":
			name = req.Args[i+1]
		}
	}
	return writeOutput(filepath.Join(dir, name), []byte("PNGimage"))
}

func writeLastArg(_ context.Context, req toolrun.Request) (toolrun.Output, error) {
	return writeOutput(req.Args[len(req.Args)-1], []byte("PNGplaceholder"))
}

func writeOutput(path string, data []byte) (toolrun.Output, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return toolrun.Output{}, err
	}
	return toolrun.Output{}, os.WriteFile(path, data, 0o644)
}
