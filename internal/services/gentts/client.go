package gentts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mirage/internal/fileutil"
	"mirage/internal/services"
	"mirage/internal/services/toolrun"
	"mirage/internal/stage"
)

// Duration sources recorded on Narration.
const (
	SourceSidecar = "sidecar"
	SourceStdout  = "stdout"
	SourceProbe   = "ffprobe"
)

// Narration is the synthesized audio and its authoritative duration.
type Narration struct {
	Path           string    `json:"path"`
	Duration       float64   `json:"duration"`
	Cues           []float64 `json:"cues,omitempty"`
	DurationSource string    `json:"duration_source"`
}

// DurationProber recovers a duration from the audio file itself.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
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

// WithProber sets the fallback used when gen-tts reports no duration.
func WithProber(prober DurationProber) Option {
	return func(c *Client) {
		c.prober = prober
	}
}

// Client wraps gen-tts CLI interactions.
type Client struct {
	binary string
	exec   toolrun.Executor
	prober DurationProber
}

// New constructs a gen-tts client.
func New(binary string, opts ...Option) *Client {
	client := &Client{binary: strings.TrimSpace(binary), exec: toolrun.New()}
	if client.binary == "" {
		client.binary = "gen-tts"
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// SidecarPath returns the optional metadata file gen-tts may write next to audioPath.
func SidecarPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, ".mp3") + ".json"
}

// Synthesize pipes text into gen-tts and resolves the resulting duration from
// the sidecar, then tool stdout, then ffprobe.
func (c *Client) Synthesize(ctx context.Context, text, audioPath string) (Narration, error) {
	const op = "gen-tts"
	id := string(stage.AudioSynthesis)
	if strings.TrimSpace(text) == "" {
		return Narration{}, services.Wrap(services.ErrMalformedOutput, id, op, "narration text is empty", nil)
	}

	out, err := c.exec.Run(ctx, toolrun.Request{
		Binary: c.binary,
		Args:   []string{"--podcast", "--no-play", "--audio-format", "MP3", "--output-file", audioPath},
		Stdin:  strings.NewReader(text),
	})
	if err != nil {
		return Narration{}, services.Wrap(services.MarkerOf(err), id, op, "synthesis failed", err)
	}
	if !fileutil.NonEmptyFile(audioPath) {
		return Narration{}, services.Wrap(services.ErrMalformedOutput, id, op, "tool reported success but wrote no audio", nil)
	}

	narration := Narration{Path: audioPath}
	meta, ok, err := readSidecar(SidecarPath(audioPath))
	if err != nil {
		return Narration{}, services.Wrap(services.ErrMalformedOutput, id, op, "unreadable sidecar", err)
	}
	if ok && meta.Duration > 0 {
		narration.Duration = meta.Duration
		narration.DurationSource = SourceSidecar
	}
	if ok {
		narration.Cues = normalizeCues(meta.Cues)
	}
	if narration.Duration == 0 {
		if seconds, found := ParseDuration(out.Stdout); found {
			narration.Duration = seconds
			narration.DurationSource = SourceStdout
		}
	}
	if narration.Duration == 0 && c.prober != nil {
		seconds, err := c.prober.Duration(ctx, audioPath)
		if err != nil && ctx.Err() != nil {
			return Narration{}, err
		}
		if err == nil {
			narration.Duration = seconds
			narration.DurationSource = SourceProbe
		}
	}
	if narration.Duration <= 0 || math.IsNaN(narration.Duration) || math.IsInf(narration.Duration, 0) {
		return Narration{}, services.Wrap(services.ErrMalformedOutput, id, op, "audio duration could not be determined", nil)
	}
	return narration, nil
}

type sidecar struct {
	Duration float64   `json:"duration"`
	Cues     []float64 `json:"cues"`
}

func readSidecar(path string) (sidecar, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return sidecar{}, false, nil
	}
	if err != nil {
		return sidecar{}, false, err
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return sidecar{}, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return meta, true, nil
}

var durationLine = regexp.MustCompile(`(?i)^\s*duration\s*[=:]\s*([0-9]+(?:\.[0-9]+)?)\s*s?\s*$`)

// ParseDuration finds a duration report in tool stdout. Accepted forms are
// "duration=187.4", "Duration: 187.4s", and a JSON object line with a
// "duration" field. The last match wins.
func ParseDuration(stdout []byte) (float64, bool) {
	var found float64
	ok := false
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "{") {
			var payload struct {
				Duration *float64 `json:"duration"`
			}
			if json.Unmarshal([]byte(line), &payload) == nil && payload.Duration != nil && *payload.Duration > 0 {
				found, ok = *payload.Duration, true
			}
			continue
		}
		if m := durationLine.FindStringSubmatch(line); m != nil {
			if value, err := strconv.ParseFloat(m[1], 64); err == nil && value > 0 {
				found, ok = value, true
			}
		}
	}
	return found, ok
}

func normalizeCues(cues []float64) []float64 {
	out := make([]float64, 0, len(cues))
	for _, cue := range cues {
		if math.IsNaN(cue) || math.IsInf(cue, 0) || cue < 0 {
			continue
		}
		out = append(out, cue)
	}
	sort.Float64s(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// HealthCheck reports whether the gen-tts binary resolves.
func (c *Client) HealthCheck(context.Context) stage.Health {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		return stage.Unhealthy("gen-tts", fmt.Sprintf("binary %q not found", c.binary))
	}
	return stage.Healthy("gen-tts", path)
}
