package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"mirage/internal/services"
	"mirage/internal/services/toolrun"
)

// ToolFunc produces the response for one fake tool invocation.
type ToolFunc func(ctx context.Context, req toolrun.Request) (toolrun.Output, error)

// FakeExecutor stands in for toolrun.Runner. Responses are keyed by binary
// name; unknown binaries fail as tool_not_found. Safe for concurrent use.
type FakeExecutor struct {
	mu       sync.Mutex
	handlers map[string]ToolFunc
	calls    []toolrun.Request
}

// NewFakeExecutor constructs an executor with no tools registered.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{handlers: map[string]ToolFunc{}}
}

// Handle registers fn for binary, replacing any previous handler.
func (f *FakeExecutor) Handle(binary string, fn ToolFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[binary] = fn
}

// Run implements toolrun.Executor.
func (f *FakeExecutor) Run(ctx context.Context, req toolrun.Request) (toolrun.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn, ok := f.handlers[req.Binary]
	f.mu.Unlock()
	if !ok {
		return toolrun.Output{}, services.Wrap(services.ErrToolNotFound, "", req.Binary, "executable not found", nil)
	}
	if err := ctx.Err(); err != nil {
		return toolrun.Output{}, err
	}
	return fn(ctx, req)
}

// Calls returns how many times binary was invoked.
func (f *FakeExecutor) Calls(binary string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call.Binary == binary {
			count++
		}
	}
	return count
}

// Requests returns a copy of every recorded request for binary.
func (f *FakeExecutor) Requests(binary string) []toolrun.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []toolrun.Request
	for _, call := range f.calls {
		if call.Binary == binary {
			out = append(out, call)
		}
	}
	return out
}

// Stdout returns a ToolFunc that prints text and exits zero.
func Stdout(text string) ToolFunc {
	return func(context.Context, toolrun.Request) (toolrun.Output, error) {
		return toolrun.Output{Stdout: []byte(text)}, nil
	}
}

// Fail returns a ToolFunc that fails with the given marker.
func Fail(marker error, message string) ToolFunc {
	return func(_ context.Context, req toolrun.Request) (toolrun.Output, error) {
		return toolrun.Output{ExitCode: 1}, services.Wrap(marker, "", req.Binary, message, nil)
	}
}

// WriteArg returns a ToolFunc that writes content to the path following flag
// in the request arguments, then prints stdout.
func WriteArg(flag string, content []byte, stdout string) ToolFunc {
	return func(_ context.Context, req toolrun.Request) (toolrun.Output, error) {
		for i := 0; i+1 < len(req.Args); i++ {
			if req.Args[i] == flag {
				if err := writeFile(req.Args[i+1], content); err != nil {
					return toolrun.Output{}, err
				}
				break
			}
		}
		return toolrun.Output{Stdout: []byte(stdout)}, nil
	}
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}
