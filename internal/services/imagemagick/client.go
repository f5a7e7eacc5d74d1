// Package imagemagick draws placeholder backdrops with ImageMagick's convert.
package imagemagick

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"mirage/internal/fileutil"
	"mirage/internal/services"
	"mirage/internal/services/toolrun"
	"mirage/internal/stage"
)

// Placeholder describes the card drawn when image generation fails.
type Placeholder struct {
	Color   string
	Size    int
	Caption string
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

// Client wraps convert invocations.
type Client struct {
	binary string
	exec   toolrun.Executor
}

// New constructs an ImageMagick client.
func New(binary string, opts ...Option) *Client {
	client := &Client{binary: strings.TrimSpace(binary), exec: toolrun.New()}
	if client.binary == "" {
		client.binary = "convert"
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Args builds the convert argument list for the card written to path.
func (p Placeholder) Args(path string) []string {
	size := p.Size
	if size <= 0 {
		size = 1024
	}
	color := strings.TrimSpace(p.Color)
	if color == "" {
		color = "black"
	}
	dim := strconv.Itoa(size)
	args := []string{"-size", dim + "x" + dim, "xc:" + color}
	if caption := annotateText(p.Caption); caption != "" {
		args = append(args,
			"-gravity", "center",
			"-fill", "white",
			"-pointsize", strconv.Itoa(max(size/16, 12)),
			"-annotate", "+0+0", caption,
		)
	}
	return append(args, path)
}

// annotateText keeps convert from expanding %-escapes or reading the caption
// from a file named after a leading '@'.
func annotateText(caption string) string {
	caption = strings.TrimLeft(strings.TrimSpace(caption), "@")
	return strings.ReplaceAll(strings.TrimSpace(caption), "%", "%%")
}

// Render writes the placeholder PNG to path.
func (c *Client) Render(ctx context.Context, card Placeholder, path string) error {
	id := string(stage.VisualGeneration)
	if _, err := c.exec.Run(ctx, toolrun.Request{Binary: c.binary, Args: card.Args(path)}); err != nil {
		return services.Wrap(services.MarkerOf(err), id, "convert", "placeholder render failed", err)
	}
	if !fileutil.NonEmptyFile(path) {
		return services.Wrap(services.ErrMalformedOutput, id, "convert", "placeholder not written", nil)
	}
	return nil
}

// HealthCheck reports whether convert resolves.
func (c *Client) HealthCheck(context.Context) stage.Health {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		health := stage.Unhealthy("convert", fmt.Sprintf("binary %q not found; a plain PNG backdrop will be written instead", c.binary))
		health.Optional = true
		return health
	}
	return stage.Healthy("convert", path)
}
