package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mmheidat/Transcendence/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseLevel 測試日誌級別解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.ParseLevel(tt.in))
		})
	}
}

// TestContextAttrs 測試上下文欄位在 With 之後仍會被輸出
func TestContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, "debug", "json").With("component", "test")

	ctx := logger.WithUserID(logger.WithConnID(context.Background(), "c-1"), 42)
	log.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "c-1", record["conn_id"])
	assert.Equal(t, float64(42), record["user_id"])
	assert.Equal(t, "test", record["component"])
}
