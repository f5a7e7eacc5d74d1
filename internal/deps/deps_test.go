package deps

import (
	"os"
	"path/filepath"
	"testing"

	"mirage/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank detail %q", results[2].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("unexpected missing set %#v", missing)
	}
}

func TestRequirementsFollowRunMode(t *testing.T) {
	cfg := config.Default()
	reqs := Requirements(&cfg, false)
	optional := map[string]bool{}
	for _, req := range reqs {
		optional[req.Name] = req.Optional
	}
	if optional["atmos"] || optional["gen-tts"] {
		t.Fatal("atmos and gen-tts are required by default")
	}
	if !optional["vidius"] {
		t.Fatal("vidius should be optional without video")
	}

	cfg.Pipeline.AllowSilentAudio = true
	for _, req := range Requirements(&cfg, true) {
		if req.Name == "vidius" && req.Optional {
			t.Fatal("vidius should be required with video")
		}
		if req.Name == "gen-tts" && !req.Optional {
			t.Fatal("gen-tts should be optional when silent narration is allowed")
		}
	}
}
