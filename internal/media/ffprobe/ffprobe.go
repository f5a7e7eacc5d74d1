package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"mirage/internal/services"
	"mirage/internal/services/toolrun"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// Prober runs ffprobe through the shared tool runner.
type Prober struct {
	Binary  string
	Exec    toolrun.Executor
	Timeout time.Duration
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func (p Prober) Inspect(ctx context.Context, path string) (Result, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "", "ffprobe", "empty path", nil)
	}
	exec := p.Exec
	if exec == nil {
		exec = toolrun.New()
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	out, err := exec.Run(ctx, toolrun.Request{
		Binary:  binary,
		Args:    []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path},
		Timeout: timeout,
	})
	if err != nil {
		return Result{}, err
	}

	var result Result
	if err := json.Unmarshal(out.Stdout, &result); err != nil {
		return Result{}, services.Wrap(services.ErrMalformedOutput, "", "ffprobe", "decode json", err)
	}
	return result, nil
}

// Duration probes path and returns its container duration in seconds.
func (p Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	seconds := result.DurationSeconds()
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0, services.Wrap(services.ErrMalformedOutput, "", "ffprobe",
			fmt.Sprintf("no usable duration for %s", path), nil)
	}
	return seconds, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countType("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countType("audio")
}

func (r Result) countType(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds. A missing value
// falls back to the longest stream duration; unparsable values yield NaN.
func (r Result) DurationSeconds() float64 {
	if seconds := parseFloat(r.Format.Duration); seconds != 0 {
		return seconds
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if seconds := parseFloat(stream.Duration); seconds > longest {
			longest = seconds
		}
	}
	return longest
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
