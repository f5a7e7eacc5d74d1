package atmos

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"mirage/internal/fileutil"
	"mirage/internal/services"
	"mirage/internal/services/toolrun"
	"mirage/internal/stage"
)

// Section is one block of atmos output.
type Section struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Report is the gathered weather payload.
type Report struct {
	Location    string    `json:"location"`
	Sections    []Section `json:"sections"`
	ContextPath string    `json:"context_path"`
}

// Text joins every non-empty section in order.
func (r Report) Text() string {
	parts := make([]string, 0, len(r.Sections))
	for _, section := range r.Sections {
		if text := strings.TrimSpace(section.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

type query struct {
	name string
	args func(location string) []string
	// optional sections may print nothing (no active alerts).
	optional bool
}

var queries = []query{
	{name: "alerts", args: func(l string) []string { return []string{"alert", l} }, optional: true},
	{name: "current", args: func(l string) []string { return []string{l} }},
	{name: "astronomy", args: func(l string) []string { return []string{"stars", l} }, optional: true},
	{name: "forecast", args: func(l string) []string { return []string{"forecast", l} }},
	{name: "hourly", args: func(l string) []string { return []string{"forecast", l, "--hourly"} }, optional: true},
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

// Client wraps atmos CLI interactions.
type Client struct {
	binary string
	exec   toolrun.Executor
}

// New constructs an atmos client.
func New(binary string, opts ...Option) *Client {
	client := &Client{binary: strings.TrimSpace(binary), exec: toolrun.New()}
	if client.binary == "" {
		client.binary = "atmos"
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Gather runs every atmos query for location and persists the combined text
// to contextPath. Any failed query fails the gather.
func (c *Client) Gather(ctx context.Context, location, contextPath string) (Report, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Report{}, services.Wrap(services.ErrConfiguration, string(stage.DataGathering), "atmos", "location is empty", nil)
	}
	if strings.HasPrefix(location, "-") {
		return Report{}, services.Wrap(services.ErrConfiguration, string(stage.DataGathering), "atmos",
			fmt.Sprintf("location %q would be read as a flag", location), nil)
	}
	report := Report{Location: location, ContextPath: contextPath}
	for _, q := range queries {
		out, err := c.exec.Run(ctx, toolrun.Request{Binary: c.binary, Args: q.args(location)})
		if err != nil {
			return Report{}, services.Wrap(services.MarkerOf(err), string(stage.DataGathering), "atmos "+q.name, "query failed", err)
		}
		text := strings.TrimSpace(string(bytes.ToValidUTF8(out.Stdout, []byte("?"))))
		if text == "" && !q.optional {
			return Report{}, services.Wrap(services.ErrMalformedOutput, string(stage.DataGathering), "atmos "+q.name,
				fmt.Sprintf("no %s data for %q", q.name, location), nil)
		}
		report.Sections = append(report.Sections, Section{Name: q.name, Text: text})
	}

	if err := fileutil.WriteFileAtomic(contextPath, []byte(report.Text()+"\n"), 0o644); err != nil {
		return Report{}, services.Wrap(services.ErrInternal, string(stage.DataGathering), "write context", contextPath, err)
	}
	return report, nil
}

// HealthCheck reports whether the atmos binary resolves.
func (c *Client) HealthCheck(context.Context) stage.Health {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		return stage.Unhealthy("atmos", fmt.Sprintf("binary %q not found", c.binary))
	}
	return stage.Healthy("atmos", path)
}
