package procman

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"mirage/internal/experience"
)

// DetachOptions describes the child process to launch.
type DetachOptions struct {
	// Executable defaults to the running binary.
	Executable string
	// Args are the parent's arguments without the program name.
	Args []string
	// LogFile receives the child's stdout and stderr.
	LogFile string
	Run     experience.RunContext
	// Env defaults to the parent's environment.
	Env []string
}

// Detach launches the run in a new session and returns its PID without
// waiting for it.
func Detach(opts DetachOptions) (int, error) {
	exe := strings.TrimSpace(opts.Executable)
	if exe == "" {
		resolved, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("resolve executable: %w", err)
		}
		exe = resolved
	}
	if strings.TrimSpace(opts.LogFile) == "" {
		return 0, errors.New("detach: log file is required")
	}
	encoded, err := opts.Run.Encode()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
		return 0, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	proc := exec.Command(exe, StripBackground(opts.Args)...)
	proc.Stdin = devNull
	proc.Stdout = logFile
	proc.Stderr = logFile
	proc.Env = append(withoutKey(env, experience.EnvRunContext), experience.EnvRunContext+"="+encoded)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return 0, fmt.Errorf("launch background run: %w", err)
	}
	pid := proc.Process.Pid
	return pid, proc.Process.Release()
}

// boolShorthands matches grouped boolean shorthand flags such as -vb.
var boolShorthands = regexp.MustCompile(`^-[vsb]+$`)

// StripBackground removes -b/--background from args, including when -b is
// grouped with the other boolean shorthands.
func StripBackground(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == "--background", strings.HasPrefix(arg, "--background="):
			continue
		case boolShorthands.MatchString(arg):
			rest := strings.ReplaceAll(arg, "b", "")
			if rest != "-" {
				out = append(out, rest)
			}
		default:
			out = append(out, arg)
		}
	}
	return out
}

// RunContextFromEnv returns the run context a detaching parent passed down.
func RunContextFromEnv(lookup func(string) (string, bool)) (experience.RunContext, bool, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(experience.EnvRunContext)
	if !ok || strings.TrimSpace(value) == "" {
		return experience.RunContext{}, false, nil
	}
	run, err := experience.DecodeRunContext(value)
	if err != nil {
		return experience.RunContext{}, false, err
	}
	return run, true, nil
}

func withoutKey(env []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}
