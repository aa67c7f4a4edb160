package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: " info ", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewJSONLoggerHonorsLevel(t *testing.T) {
	logger := NewJSONLogger("api", "warn")
	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info should be suppressed at warn level")
	}
	if !logger.Enabled(ctx, slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}
}
