package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mirage/internal/config"
)

const userAgent = "Mirage-Go/0.1.0"

// RunSummary is what a notification says about a finished run.
type RunSummary struct {
	Location string
	Page     string
	Degraded []string
	Duration time.Duration
}

// RunFailure is what a notification says about a failed run.
type RunFailure struct {
	Location string
	Stage    string
	Kind     string
	Message  string
}

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyRunFailed(ctx context.Context, failure RunFailure) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.RunCompleted,
		failed:    cfg.Notifications.RunFailed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	if !n.completed {
		return nil
	}
	location := strings.TrimSpace(summary.Location)
	var b strings.Builder
	fmt.Fprintf(&b, "🌤️ Experience ready: %s", location)
	if d := summary.Duration.Round(time.Second); d > 0 {
		fmt.Fprintf(&b, " (%s)", d)
	}
	if len(summary.Degraded) > 0 {
		fmt.Fprintf(&b, "\nFallbacks: %s", strings.Join(summary.Degraded, ", "))
	}
	if page := strings.TrimSpace(summary.Page); page != "" {
		fmt.Fprintf(&b, "\n%s", page)
	}
	tags := []string{"mirage", "run", "completed"}
	if len(summary.Degraded) > 0 {
		tags = append(tags, "degraded")
	}
	return n.send(ctx, payload{
		title:   "Mirage - Ready",
		message: b.String(),
		tags:    tags,
	})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, failure RunFailure) error {
	if !n.failed {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "❌ %s failed", strings.TrimSpace(failure.Location))
	if stage := strings.TrimSpace(failure.Stage); stage != "" {
		fmt.Fprintf(&b, " during %s", strings.ReplaceAll(stage, "_", " "))
	}
	if kind := strings.TrimSpace(failure.Kind); kind != "" {
		fmt.Fprintf(&b, " [%s]", kind)
	}
	if msg := strings.TrimSpace(failure.Message); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	}
	return n.send(ctx, payload{
		title:    "Mirage - Failed",
		message:  b.String(),
		tags:     []string{"mirage", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Mirage - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"mirage", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyRunFailed(context.Context, RunFailure) error    { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
