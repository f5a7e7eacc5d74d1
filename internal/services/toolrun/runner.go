package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"mirage/internal/services"
)

// exitTempFail is sysexits EX_TEMPFAIL; tools use it to signal throttling.
const exitTempFail = 75

const stderrTailLimit = 512

var rateLimitMarkers = []string{"rate limit", "rate-limit", "too many requests", "quota exceeded", "429"}

// Request describes a single tool invocation.
type Request struct {
	Binary  string
	Args    []string
	Stdin   io.Reader
	Dir     string
	Env     []string
	Timeout time.Duration
}

// Output captures what a finished tool wrote.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, req Request) (Output, error)
}

// Runner is the process-backed Executor.
type Runner struct {
	waitDelay time.Duration
}

// New constructs a Runner.
func New() *Runner {
	return &Runner{waitDelay: 5 * time.Second}
}

// Run executes the request and classifies any failure.
func (r *Runner) Run(ctx context.Context, req Request) (Output, error) {
	binary := strings.TrimSpace(req.Binary)
	if binary == "" {
		return Output{}, services.Wrap(services.ErrConfiguration, "", "toolrun", "tool binary not configured", nil)
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return Output{}, services.Wrap(services.ErrToolNotFound, "", binary, "executable not found", err)
		}
		return Output{}, services.Wrap(services.ErrToolNotFound, "", binary, "resolve executable", err)
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, resolved, req.Args...) //nolint:gosec
	cmd.Stdin = req.Stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(cmd.Environ(), req.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid targets the process group so helper children die too.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.waitDelay

	runErr := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	if runErr == nil {
		return out, nil
	}
	return out, classify(ctx, runCtx, binary, out, runErr)
}

func classify(parent, runCtx context.Context, binary string, out Output, runErr error) error {
	if parent.Err() != nil {
		return services.Wrap(services.ErrToolExit, "", binary, "interrupted", parent.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrToolTimeout, "", binary, "deadline exceeded", runErr)
	}
	tail := stderrTail(out.Stderr)
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if out.ExitCode == exitTempFail || mentionsRateLimit(tail) {
			return services.Wrap(services.ErrRateLimited, "", binary, tail, runErr)
		}
		message := fmt.Sprintf("exit status %d", out.ExitCode)
		if tail != "" {
			message = message + ": " + tail
		}
		return services.Wrap(services.ErrToolExit, "", binary, message, runErr)
	}
	return services.Wrap(services.ErrToolExit, "", binary, "start command", runErr)
}

func mentionsRateLimit(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func stderrTail(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if len(text) <= stderrTailLimit {
		return text
	}
	return "..." + text[len(text)-stderrTailLimit:]
}
