package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"mirage/internal/assembly"
	"mirage/internal/config"
	"mirage/internal/experience"
	"mirage/internal/logging"
	"mirage/internal/notifications"
	"mirage/internal/services"
	"mirage/internal/services/imagemagick"
	"mirage/internal/services/toolrun"
	"mirage/internal/stage"
	"mirage/internal/textutil"
)

// lockFile guards a run directory against a second orchestrator.
const lockFile = ".mirage.lock"

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAdapters replaces the tool adapters.
func WithAdapters(adapters Adapters) Option {
	return func(o *Orchestrator) { o.adapters = adapters }
}

// WithExecutor builds CLI adapters over exec (primarily for tests).
func WithExecutor(exec toolrun.Executor) Option {
	return func(o *Orchestrator) { o.adapters = NewAdapters(o.cfg, exec) }
}

// WithRecorder persists run outcomes.
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator drives one run through the stage state machine.
type Orchestrator struct {
	cfg       *config.Config
	adapters  Adapters
	resolver  *Resolver
	recorder  Recorder
	notifier  notifications.Service
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	assembler *assembly.Assembler
}

// New constructs an orchestrator for cfg with CLI-backed adapters.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		resolver: NewResolver(PolicyFromConfig(cfg)),
		notifier: notifications.NewService(cfg),
		logger:   logging.NewNop(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	o.adapters = NewAdapters(cfg, nil)
	for _, opt := range opts {
		opt(o)
	}
	o.assembler = assembly.New(cfg.Pipeline.CueSegments,
		assembly.WithClock(o.now),
		assembly.WithLogger(logging.NewComponentLogger(o.logger, "assembly")),
	)
	return o
}

type runState struct {
	mu        sync.Mutex
	run       experience.RunContext
	machine   *machine
	results   map[stage.ID]stage.Result
	timings   map[stage.ID]stage.Timing
	weather   experience.WeatherPayload
	narration experience.NarrationAudio
	visual    experience.VisualArtifact
	bundle    *assembly.Bundle
	failure   *Failure
	finished  time.Time
}

func (s *runState) record(res stage.Result, timing stage.Timing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.Stage] = res
	if timing.Attempts > 0 {
		s.timings[res.Stage] = timing
	}
}

func (s *runState) report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := Report{
		Run:         s.run,
		State:       s.machine.state(),
		Transitions: s.machine.transitions(),
		Timings:     make(map[stage.ID]stage.Timing, len(s.timings)),
		Weather:     s.weather,
		Narration:   s.narration,
		Visual:      s.visual,
		Bundle:      s.bundle,
		Failure:     s.failure,
		FinishedAt:  s.finished,
	}
	for _, id := range stage.Ordered() {
		if res, ok := s.results[id]; ok {
			report.Results = append(report.Results, res)
		}
	}
	for id, timing := range s.timings {
		report.Timings[id] = timing
	}
	return report
}

// stageFailure tags an abort with the stage that caused it.
type stageFailure struct {
	stage stage.ID
	err   error
}

func (f *stageFailure) Error() string { return f.err.Error() }

func (f *stageFailure) Unwrap() error { return f.err }

// Run executes every stage for run and returns the final report. The error
// is a *RunError when the run reached StateFailed, or an *ErrIllegalTransition
// if the orchestrator itself misbehaved.
func (o *Orchestrator) Run(ctx context.Context, run experience.RunContext) (Report, error) {
	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(o.logger, "pipeline"))
	rs := &runState{
		run:     run,
		machine: newMachine(o.now),
		results: make(map[stage.ID]stage.Result),
		timings: make(map[stage.ID]stage.Timing),
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("location", run.Location),
		logging.String("output_dir", run.OutputDir),
		logging.Bool("video", run.Mode.Video),
		logging.Bool("background", run.Mode.Background),
	)

	if err := os.MkdirAll(run.OutputDir, 0o755); err != nil {
		return o.fail(ctx, logger, rs, "", services.Wrap(services.ErrInternal, "", "prepare", "create output directory", err))
	}
	lock := flock.New(filepath.Join(run.OutputDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return o.fail(ctx, logger, rs, "", services.Wrap(services.ErrInternal, "", "prepare", "lock output directory", err))
	}
	if !locked {
		return o.fail(ctx, logger, rs, "", services.Wrap(services.ErrInternal, "", "prepare", "output directory is in use by another run", nil))
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()
	o.persist(ctx, logger, rs)

	if err := o.gather(ctx, logger, rs); err != nil {
		return o.abort(ctx, logger, rs, err)
	}
	if err := rs.machine.advance(StateAudioSynthesis); err != nil {
		return rs.report(), err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.narrate(gctx, logger, rs) })
	g.Go(func() error { return o.illustrate(gctx, logger, rs) })
	if err := g.Wait(); err != nil {
		return o.abort(ctx, logger, rs, err)
	}
	if err := rs.machine.advance(StateVisualGeneration); err != nil {
		return rs.report(), err
	}

	if err := o.animate(ctx, logger, rs); err != nil {
		return o.abort(ctx, logger, rs, err)
	}
	if err := rs.machine.advance(StateAssembly); err != nil {
		return rs.report(), err
	}
	if err := o.assemble(ctx, logger, rs); err != nil {
		return o.abort(ctx, logger, rs, err)
	}
	if err := rs.machine.advance(StateDone); err != nil {
		return rs.report(), err
	}

	rs.mu.Lock()
	rs.finished = o.now()
	rs.mu.Unlock()
	report := rs.report()
	logger.Info("run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("page", report.Bundle.Page),
		logging.Duration("elapsed", report.Elapsed()),
		logging.Any("fallbacks", report.Degraded()),
	)
	o.persist(ctx, logger, rs)
	if err := o.notifier.NotifyRunCompleted(context.WithoutCancel(ctx), report.completedNotice()); err != nil {
		logger.Warn("completion notification failed", logging.Error(err),
			logging.String(logging.FieldEventType, "notify_failed"),
			logging.String(logging.FieldImpact, "no push notification for this run"))
	}
	return report, nil
}

// execute runs one stage adapter with retries and returns the last attempt
// plus, when it failed, the resolver's final decision.
func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, rs *runState, id stage.ID, outputs []string, fn func(context.Context) error) (stage.Attempt, Decision, stage.Timing) {
	ctx = services.WithStage(ctx, string(id))
	stageLogger := logger.With(logging.String(logging.FieldStage, string(id)))
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	var timing stage.Timing
	for attempt := 1; ; attempt++ {
		result := stage.Invoke(ctx, stage.InvokeOptions{
			Stage:   id,
			Timeout: o.cfg.StageTimeout(string(id)),
			Outputs: outputs,
			Logger:  stageLogger,
		}, fn)
		timing.Attempts = attempt
		timing.Elapsed += result.Elapsed
		if result.OK() {
			stageLogger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Int("attempts", attempt),
				logging.Duration("elapsed", timing.Elapsed),
			)
			return result, Decision{}, timing
		}

		decision := o.resolver.Decide(id, stage.FailedWith(id, result.Err), attempt)
		if ctx.Err() != nil {
			decision = Decision{Action: Abort, Reason: "run canceled"}
		}
		if decision.Action != Retry {
			return result, decision, timing
		}
		logging.WarnWithContext(stageLogger, "stage attempt failed, retrying", "stage_retry",
			logging.String(logging.FieldErrorKind, string(result.Kind)),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", decision.Backoff),
			logging.String(logging.FieldCorrelationID, result.CorrelationID),
			logging.Error(result.Err),
			logging.String(logging.FieldImpact, "stage delayed"),
		)
		if err := o.sleep(ctx, decision.Backoff); err != nil {
			result.Err = err
			result.Kind = services.KindOf(err)
			return result, Decision{Action: Abort, Reason: "run canceled"}, timing
		}
	}
}

// ready fails id unless every stage it depends on left a result it can
// build on.
func (o *Orchestrator) ready(rs *runState, id stage.ID) error {
	if !id.Valid() {
		return &stageFailure{stage: id, err: services.Wrap(services.ErrInternal, string(id), "dependencies", "unknown stage", nil)}
	}
	rs.mu.Lock()
	unmet := stage.Unmet(id, rs.results)
	rs.mu.Unlock()
	if len(unmet) == 0 {
		return nil
	}
	labels := make([]string, 0, len(unmet))
	for _, dep := range unmet {
		labels = append(labels, dep.Label())
	}
	err := services.Wrap(services.ErrInternal, string(id), "dependencies",
		"no usable result from "+strings.Join(labels, ", "), nil)
	rs.record(stage.FailedWith(id, err), stage.Timing{})
	return &stageFailure{stage: id, err: err}
}

func (o *Orchestrator) gather(ctx context.Context, logger *slog.Logger, rs *runState) error {
	id := stage.DataGathering
	if err := o.ready(rs, id); err != nil {
		return err
	}
	if err := rs.machine.advance(StateFor(id)); err != nil {
		return err
	}
	run := rs.run
	contextPath := run.Path(experience.ContextFile)
	var gathered experience.WeatherPayload
	attempt, _, timing := o.execute(ctx, logger, rs, id, []string{contextPath}, func(ctx context.Context) error {
		report, err := o.adapters.Weather.Gather(ctx, run.Location, contextPath)
		if err != nil {
			return err
		}
		gathered = experience.WeatherPayload{Location: report.Location, ContextFile: experience.ContextFile}
		for _, section := range report.Sections {
			gathered.Sections = append(gathered.Sections, experience.Section{Name: section.Name, Text: section.Text})
		}
		return nil
	})
	if !attempt.OK() {
		rs.record(stage.FailedWith(id, attempt.Err), timing)
		return &stageFailure{stage: id, err: attempt.Err}
	}
	rs.mu.Lock()
	rs.weather = gathered
	rs.mu.Unlock()
	rs.record(stage.Succeeded(id, experience.ContextFile), timing)
	return nil
}

func (o *Orchestrator) narrate(ctx context.Context, logger *slog.Logger, rs *runState) error {
	id := stage.AudioSynthesis
	if err := o.ready(rs, id); err != nil {
		return err
	}
	run := rs.run
	audioPath := run.Path(experience.AudioFile)
	text := rs.weather.Text()
	var narration experience.NarrationAudio
	attempt, decision, timing := o.execute(ctx, logger, rs, id,
		[]string{audioPath, run.Path(experience.SidecarFile)},
		func(ctx context.Context) error {
			out, err := o.adapters.Narrator.Synthesize(ctx, text, audioPath)
			if err != nil {
				return err
			}
			narration = experience.NarrationAudio{
				File:           experience.AudioFile,
				Duration:       out.Duration,
				Cues:           out.Cues,
				DurationSource: out.DurationSource,
			}
			return nil
		})

	switch {
	case attempt.OK():
		rs.record(stage.Succeeded(id, experience.AudioFile), timing)
	case decision.Action == Substitute:
		narration = experience.NarrationAudio{
			Duration:       o.cfg.Pipeline.SilentAudioSeconds,
			Silent:         true,
			DurationSource: "nominal",
		}
		rs.record(degraded(id, decision, attempt), timing)
		o.warnSubstitution(logger, id, decision, attempt)
	default:
		rs.record(stage.FailedWith(id, attempt.Err), timing)
		return &stageFailure{stage: id, err: attempt.Err}
	}
	rs.mu.Lock()
	rs.narration = narration
	rs.mu.Unlock()
	return nil
}

func (o *Orchestrator) illustrate(ctx context.Context, logger *slog.Logger, rs *runState) error {
	id := stage.VisualGeneration
	if err := o.ready(rs, id); err != nil {
		return err
	}
	run := rs.run
	imagePath := run.Path(experience.ImageFile)
	text := rs.weather.Text()
	attempt, decision, timing := o.execute(ctx, logger, rs, id, []string{imagePath}, func(ctx context.Context) error {
		_, err := o.adapters.Illustrator.Generate(ctx, text, imagePath)
		return err
	})
	if attempt.OK() {
		rs.record(stage.Succeeded(id, experience.ImageFile), timing)
		rs.mu.Lock()
		rs.visual = experience.VisualArtifact{ImageFile: experience.ImageFile}
		rs.mu.Unlock()
		return nil
	}
	if decision.Action != Substitute || ctx.Err() != nil {
		// A sibling abort canceled this branch; its own failure is reported.
		rs.record(stage.FailedWith(id, attempt.Err), timing)
		return &stageFailure{stage: id, err: attempt.Err}
	}

	method, err := o.renderPlaceholder(ctx, logger, run.Location, imagePath)
	if err != nil {
		rs.record(stage.FailedWith(id, err), timing)
		return &stageFailure{stage: id, err: err}
	}
	decision.Reason = fmt.Sprintf("%s (%s)", decision.Reason, method)
	rs.record(degraded(id, decision, attempt, experience.ImageFile), timing)
	o.warnSubstitution(logger, id, decision, attempt)
	rs.mu.Lock()
	rs.visual = experience.VisualArtifact{ImageFile: experience.ImageFile, Placeholder: true}
	rs.mu.Unlock()
	return nil
}

// renderPlaceholder draws the backdrop with ImageMagick, falling back to a
// solid PNG written in-process.
func (o *Orchestrator) renderPlaceholder(ctx context.Context, logger *slog.Logger, location, imagePath string) (string, error) {
	id := stage.VisualGeneration
	card := imagemagick.Placeholder{
		Color:   o.cfg.Pipeline.PlaceholderColor,
		Size:    o.cfg.Pipeline.PlaceholderSize,
		Caption: textutil.TitleLocation(location),
	}
	if o.adapters.Placeholder != nil {
		attempt := stage.Invoke(services.WithStage(ctx, string(id)), stage.InvokeOptions{
			Stage:   id,
			Timeout: o.cfg.StageTimeout(string(id)),
			Outputs: []string{imagePath},
			Logger:  logger.With(logging.String(logging.FieldStage, string(id))),
		}, func(ctx context.Context) error {
			return o.adapters.Placeholder.Render(ctx, card, imagePath)
		})
		if attempt.OK() {
			return "imagemagick", nil
		}
		if ctx.Err() != nil {
			return "", attempt.Err
		}
		logger.Debug("imagemagick placeholder failed",
			logging.String(logging.FieldErrorKind, string(attempt.Kind)),
			logging.Error(attempt.Err),
		)
	}
	if err := writeSolidPNG(imagePath, o.cfg.Pipeline.PlaceholderColor, o.cfg.Pipeline.PlaceholderSize); err != nil {
		return "", services.Wrap(services.ErrInternal, string(id), "placeholder", "write solid image", err)
	}
	return "solid", nil
}

func (o *Orchestrator) animate(ctx context.Context, logger *slog.Logger, rs *runState) error {
	id := stage.MotionSynthesis
	if err := o.ready(rs, id); err != nil {
		return err
	}
	run := rs.run
	rs.mu.Lock()
	visual := rs.visual
	rs.mu.Unlock()

	switch {
	case !run.Mode.Video:
		rs.record(stage.SkippedBecause(id, "video mode off"), stage.Timing{})
		return nil
	case visual.Placeholder && !o.cfg.Pipeline.AnimatePlaceholder:
		rs.record(stage.SkippedBecause(id, "image is a placeholder"), stage.Timing{})
		logger.Info("motion synthesis skipped",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.String(logging.FieldStage, string(id)),
			logging.String("reason", "image is a placeholder"),
		)
		return nil
	}

	if err := rs.machine.advance(StateFor(id)); err != nil {
		return err
	}
	imagePath := run.Path(visual.ImageFile)
	videoPath := run.Path(experience.VideoFile)
	prompt := o.cfg.VideoPromptFor(run.Location)
	attempt, decision, timing := o.execute(ctx, logger, rs, id, []string{videoPath}, func(ctx context.Context) error {
		_, err := o.adapters.Animator.Animate(ctx, prompt, imagePath, videoPath)
		return err
	})
	switch {
	case attempt.OK():
		rs.record(stage.Succeeded(id, experience.VideoFile), timing)
		rs.mu.Lock()
		rs.visual.VideoFile = experience.VideoFile
		rs.mu.Unlock()
	case decision.Action == Substitute:
		rs.record(degraded(id, decision, attempt), timing)
		o.warnSubstitution(logger, id, decision, attempt)
	default:
		rs.record(stage.FailedWith(id, attempt.Err), timing)
		return &stageFailure{stage: id, err: attempt.Err}
	}
	return nil
}

func (o *Orchestrator) assemble(ctx context.Context, logger *slog.Logger, rs *runState) error {
	id := stage.Assembly
	if err := o.ready(rs, id); err != nil {
		return err
	}
	run := rs.run
	rs.mu.Lock()
	inputs := assembly.Inputs{
		Weather:   rs.weather,
		Narration: rs.narration,
		Visual:    rs.visual,
	}
	rs.mu.Unlock()
	inputs.Stages = rs.report().Results

	var bundle assembly.Bundle
	attempt, _, timing := o.execute(ctx, logger, rs, id,
		[]string{run.Path(experience.ManifestFile), run.Path(experience.PageFile)},
		func(ctx context.Context) error {
			var err error
			bundle, err = o.assembler.Assemble(ctx, run, inputs)
			return err
		})
	if !attempt.OK() {
		rs.record(stage.FailedWith(id, attempt.Err), timing)
		return &stageFailure{stage: id, err: attempt.Err}
	}
	rs.record(stage.Succeeded(id, experience.PageFile, experience.ManifestFile), timing)
	rs.mu.Lock()
	rs.bundle = &bundle
	rs.mu.Unlock()
	return nil
}

func (o *Orchestrator) abort(ctx context.Context, logger *slog.Logger, rs *runState, err error) (Report, error) {
	var illegal *ErrIllegalTransition
	if errors.As(err, &illegal) {
		return rs.report(), err
	}
	var sf *stageFailure
	if errors.As(err, &sf) {
		return o.fail(ctx, logger, rs, sf.stage, sf.err)
	}
	return o.fail(ctx, logger, rs, "", err)
}

// fail moves the run to StateFailed, then logs, records, and publishes the
// diagnostic summary. Produced artifacts stay on disk.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, rs *runState, id stage.ID, err error) (Report, error) {
	details := services.Details(err)
	failure := &Failure{Stage: id, Kind: details.Kind, Message: details.Message, Err: err}
	if ctx.Err() != nil {
		failure.Kind = services.KindCanceled
		failure.Err = errors.Join(ctx.Err(), err)
	}
	if advanceErr := rs.machine.advance(StateFailed); advanceErr != nil {
		return rs.report(), advanceErr
	}
	rs.mu.Lock()
	rs.failure = failure
	rs.finished = o.now()
	rs.mu.Unlock()

	logging.ErrorWithContext(logger, "run failed", "run_failed",
		logging.String(logging.FieldStage, string(id)),
		logging.String(logging.FieldErrorKind, string(failure.Kind)),
		logging.String("error_message", failure.Message),
		logging.Alert("run_failure"),
		logging.Error(err),
	)
	o.persist(ctx, logger, rs)
	report := rs.report()
	if notifyErr := o.notifier.NotifyRunFailed(context.WithoutCancel(ctx), report.failedNotice()); notifyErr != nil {
		logger.Warn("failure notification failed", logging.Error(notifyErr),
			logging.String(logging.FieldEventType, "notify_failed"),
			logging.String(logging.FieldImpact, "no push notification for this run"))
	}
	return report, report.Err()
}

func (o *Orchestrator) persist(ctx context.Context, logger *slog.Logger, rs *runState) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), rs.report().HistoryRun()); err != nil {
		logger.Warn("failed to record run history", logging.Error(err),
			logging.String(logging.FieldEventType, "history_write_failed"),
			logging.String(logging.FieldImpact, "run missing from `mirage runs`"))
	}
}

func (o *Orchestrator) warnSubstitution(logger *slog.Logger, id stage.ID, decision Decision, attempt stage.Attempt) {
	logging.WarnWithContext(logger.With(logging.String(logging.FieldStage, string(id))),
		"stage failed, substituting fallback", "stage_fallback",
		logging.String(logging.FieldErrorKind, string(attempt.Kind)),
		logging.String("fallback", decision.Reason),
		logging.Error(attempt.Err),
	)
}

func degraded(id stage.ID, decision Decision, attempt stage.Attempt, artifacts ...string) stage.Result {
	res := stage.DegradedWith(id, decision.Reason, artifacts...)
	failed := stage.FailedWith(id, attempt.Err)
	res.Kind = failed.Kind
	res.Message = failed.Message
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
