package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"mirage/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll runs CheckDirectories plus notification reachability when a topic
// is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := CheckDirectories(cfg)
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		results = append(results, CheckNtfy(ctx, topic))
	}
	return results
}

// CheckDirectories creates the directories a run writes to and verifies
// they are usable.
func CheckDirectories(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	if err := cfg.EnsureDirectories(); err != nil {
		results = append(results, Result{Name: "Directories", Detail: err.Error()})
	}
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputBaseDir))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	if strings.TrimSpace(cfg.Paths.LogFile) != "" {
		results = append(results, CheckDirectoryAccess("Log directory", filepath.Dir(cfg.Paths.LogFile)))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
