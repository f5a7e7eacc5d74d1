// Package lumina wraps the lumina image generator.
package lumina

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"mirage/internal/fileutil"
	"mirage/internal/services"
	"mirage/internal/services/toolrun"
	"mirage/internal/stage"
)

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

// Client wraps lumina CLI interactions.
type Client struct {
	binary string
	exec   toolrun.Executor
}

// New constructs a lumina client.
func New(binary string, opts ...Option) *Client {
	client := &Client{binary: strings.TrimSpace(binary), exec: toolrun.New()}
	if client.binary == "" {
		client.binary = "lumina"
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Generate pipes the weather context into lumina and returns the image path.
// lumina has been seen exiting zero without writing a file, so the image is
// checked before success is reported.
func (c *Client) Generate(ctx context.Context, text, imagePath string) (string, error) {
	id := string(stage.VisualGeneration)
	dir, name := filepath.Split(imagePath)
	_, err := c.exec.Run(ctx, toolrun.Request{
		Binary: c.binary,
		Args:   []string{"--opt", "--output-dir", filepath.Clean(dir), "-f", name},
		Stdin:  strings.NewReader(text),
	})
	if err != nil {
		return "", services.Wrap(services.MarkerOf(err), id, "lumina", "image generation failed", err)
	}
	if !fileutil.NonEmptyFile(imagePath) {
		return "", services.Wrap(services.ErrMalformedOutput, id, "lumina", "no image detected after generation", nil)
	}
	return imagePath, nil
}

// HealthCheck reports whether the lumina binary resolves.
func (c *Client) HealthCheck(context.Context) stage.Health {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		health := stage.Unhealthy("lumina", fmt.Sprintf("binary %q not found; placeholder art will be used", c.binary))
		health.Optional = true
		return health
	}
	return stage.Healthy("lumina", path)
}
