package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"mirage/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrToolExit, "audio_synthesis", "gen-tts", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrToolExit) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"audio_synthesis", "gen-tts", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOfMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.ErrorKind
	}{
		{"nil", nil, services.KindNone},
		{"not found", services.Wrap(services.ErrToolNotFound, "", "", "", nil), services.KindToolNotFound},
		{"timeout marker", services.Wrap(services.ErrToolTimeout, "", "", "", nil), services.KindToolTimeout},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), services.KindToolTimeout},
		{"rate limit", services.Wrap(services.ErrRateLimited, "", "", "", nil), services.KindRateLimited},
		{"malformed", services.Wrap(services.ErrMalformedOutput, "", "", "", nil), services.KindMalformedOutput},
		{"config", services.Wrap(services.ErrConfiguration, "", "", "", nil), services.KindConfigInvalid},
		{"exit", services.Wrap(services.ErrToolExit, "", "", "", nil), services.KindToolNonZeroExit},
		{"canceled", context.Canceled, services.KindCanceled},
		{"other", errors.New("disk full"), services.KindInternal},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsTransientOnlyForTimeoutAndRateLimit(t *testing.T) {
	for _, kind := range []services.ErrorKind{services.KindToolTimeout, services.KindRateLimited} {
		if !services.IsTransient(kind) {
			t.Fatalf("expected %q to be transient", kind)
		}
	}
	for _, kind := range []services.ErrorKind{services.KindToolNotFound, services.KindToolNonZeroExit, services.KindMalformedOutput, services.KindConfigInvalid} {
		if services.IsTransient(kind) {
			t.Fatalf("expected %q to be non-transient", kind)
		}
	}
}

func TestDetailsExtractsStageContext(t *testing.T) {
	err := fmt.Errorf("outer: %w", services.Wrap(services.ErrMalformedOutput, "visual_generation", "lumina", "image missing", nil))
	details := services.Details(err)
	if details.Kind != services.KindMalformedOutput {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Stage != "visual_generation" || details.Operation != "lumina" || details.Message != "image missing" {
		t.Fatalf("unexpected details %+v", details)
	}

	plain := services.Details(errors.New("plain failure"))
	if plain.Message != "plain failure" || plain.Kind != services.KindInternal {
		t.Fatalf("unexpected plain details %+v", plain)
	}
}

func TestMarkerOfPreservesClassification(t *testing.T) {
	inner := services.Wrap(services.ErrRateLimited, "", "lumina", "429", nil)
	outer := services.Wrap(services.MarkerOf(inner), "visual_generation", "lumina", "generate", inner)
	if services.KindOf(outer) != services.KindRateLimited {
		t.Fatalf("expected rate_limited, got %q", services.KindOf(outer))
	}
	if services.MarkerOf(context.DeadlineExceeded) != services.ErrToolTimeout {
		t.Fatal("deadline should map to tool timeout marker")
	}
	if services.MarkerOf(errors.New("x")) != services.ErrInternal {
		t.Fatal("unclassified errors should map to internal")
	}
}
