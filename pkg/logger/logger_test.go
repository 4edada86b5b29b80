package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestSetupWriter(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   *os.File
	}{
		{"stdout output", Config{Output: "stdout"}, os.Stdout},
		{"stderr output", Config{Output: "stderr"}, os.Stderr},
		{"default output", Config{Output: ""}, os.Stderr},
		{"file output without filename", Config{Output: "file"}, os.Stdout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SetupWriter(tt.config))
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Config{Level: "info", Format: "json", Output: "stdout"}

	logger := NewLogger(cfg)
	require.NotNil(t, logger)
	logger.Info("test message", "key", "value")
}

func TestGenerateOperationID(t *testing.T) {
	id1 := GenerateOperationID()
	id2 := GenerateOperationID()

	assert.NotEqual(t, id1, id2)
	assert.True(t, strings.HasPrefix(id1, "op_"))
}

func TestWithOperationID(t *testing.T) {
	ctx := WithOperationID(context.Background(), "test-op-id")
	assert.Equal(t, "test-op-id", OperationIDFromContext(ctx))
}

func TestOperationIDFromContextEmpty(t *testing.T) {
	assert.Empty(t, OperationIDFromContext(context.Background()))
}

func TestFromContext(t *testing.T) {
	base := slog.Default()

	ctx := WithOperationID(context.Background(), "op-123")
	enriched := FromContext(ctx, base)
	require.NotNil(t, enriched)

	plain := FromContext(context.Background(), base)
	assert.Equal(t, base, plain)
}
