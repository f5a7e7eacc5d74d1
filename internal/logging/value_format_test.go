package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestFormatValue(t *testing.T) {
	cases := []struct {
		name  string
		value slog.Value
		want  string
	}{
		{"ffprobe noise", slog.Float64Value(187.39999999), "187.4"},
		{"whole float", slog.Float64Value(30), "30"},
		{"duration", slog.DurationValue(1234567 * time.Microsecond), "1.235s"},
		{"plain string", slog.StringValue("kyoto"), "kyoto"},
		{"spaced string", slog.StringValue("Kyoto, Japan"), `"Kyoto, Japan"`},
		{"empty string", slog.StringValue(""), `""`},
		{"error", slog.AnyValue(errors.New("exit status 1")), `"exit status 1"`},
		{"time", slog.TimeValue(time.Date(2026, 4, 2, 7, 30, 5, 120e6, time.UTC)), "2026-04-02T07:30:05.120Z"},
	}
	for _, tc := range cases {
		if got := formatValue(tc.value); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestAttrStringLeavesStringsUnquoted(t *testing.T) {
	if got := attrString(slog.StringValue("audio synthesis")); got != "audio synthesis" {
		t.Fatalf("got %q", got)
	}
}
