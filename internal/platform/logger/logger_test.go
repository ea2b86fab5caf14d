package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name))
		})
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	ctx := context.Background()

	infoLogger := New(Config{Level: slog.LevelInfo, Format: "json"})
	assert.False(t, infoLogger.Enabled(ctx, slog.LevelDebug))
	assert.True(t, infoLogger.Enabled(ctx, slog.LevelInfo))

	debugLogger := New(Config{Level: slog.LevelDebug, Format: "text"})
	assert.True(t, debugLogger.Enabled(ctx, slog.LevelDebug))
}
