// Package vidius wraps the vidius image-to-video animator.
package vidius

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"mirage/internal/fileutil"
	"mirage/internal/media/ffprobe"
	"mirage/internal/services"
	"mirage/internal/services/toolrun"
	"mirage/internal/stage"
)

// Inspector confirms generated video contains a video stream.
type Inspector interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec toolrun.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithInspector enables stream verification of generated video.
func WithInspector(inspector Inspector) Option {
	return func(c *Client) {
		c.inspector = inspector
	}
}

// Client wraps vidius CLI interactions.
type Client struct {
	binary    string
	exec      toolrun.Executor
	inspector Inspector
}

// New constructs a vidius client.
func New(binary string, opts ...Option) *Client {
	client := &Client{binary: strings.TrimSpace(binary), exec: toolrun.New()}
	if client.binary == "" {
		client.binary = "vidius"
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Animate turns imagePath into a looping clip at videoPath. -na disables
// vidius' own audio track; the narration is the only sound.
func (c *Client) Animate(ctx context.Context, prompt, imagePath, videoPath string) (string, error) {
	id := string(stage.MotionSynthesis)
	if strings.HasPrefix(strings.TrimSpace(prompt), "-") {
		return "", services.Wrap(services.ErrConfiguration, id, "vidius", "prompt would be read as a flag", nil)
	}
	if !fileutil.NonEmptyFile(imagePath) {
		return "", services.Wrap(services.ErrConfiguration, id, "vidius", "input image missing", nil)
	}
	_, err := c.exec.Run(ctx, toolrun.Request{
		Binary: c.binary,
		Args:   []string{prompt, "-i", imagePath, "-o", videoPath, "-na"},
	})
	if err != nil {
		return "", services.Wrap(services.MarkerOf(err), id, "vidius", "animation failed", err)
	}
	if !fileutil.NonEmptyFile(videoPath) {
		return "", services.Wrap(services.ErrMalformedOutput, id, "vidius", "no video written", nil)
	}
	if c.inspector != nil {
		result, err := c.inspector.Inspect(ctx, videoPath)
		if err != nil {
			return "", services.Wrap(services.ErrMalformedOutput, id, "vidius", "generated video could not be probed", err)
		}
		if result.VideoStreamCount() == 0 {
			return "", services.Wrap(services.ErrMalformedOutput, id, "vidius", "generated file has no video stream", nil)
		}
	}
	return videoPath, nil
}

// HealthCheck reports whether the vidius binary resolves.
func (c *Client) HealthCheck(context.Context) stage.Health {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		health := stage.Unhealthy("vidius", fmt.Sprintf("binary %q not found; --video runs fall back to the still image", c.binary))
		health.Optional = true
		return health
	}
	return stage.Healthy("vidius", path)
}
