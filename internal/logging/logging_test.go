package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime-watcher/internal/config"
)

type memSink struct {
	mu   sync.Mutex
	recs []map[string]string
}

func (m *memSink) AppendLog(_ context.Context, level, message, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, map[string]string{"level": level, "message": message, "data": data})
	return nil
}

func TestNewHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "site", "api")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "api", rec["site"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestStoreHandlerPersistsWarnings(t *testing.T) {
	var buf bytes.Buffer
	base := New(config.LoggingConfig{Level: "info", Format: "text"}, &buf)
	sink := &memSink{}
	logger, closeSink := WithStore(base, sink, slog.LevelWarn)

	scoped := logger.With("component", "scheduler").WithGroup("check")
	logger.Info("routine")
	scoped.Error("check failed", "site", "api", "error", errors.New("timeout"))
	closeSink()
	logger.Error("after close")

	assert.Contains(t, buf.String(), "routine")
	assert.Contains(t, buf.String(), "after close")

	require.Len(t, sink.recs, 1)
	rec := sink.recs[0]
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "check failed", rec["message"])
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec["data"]), &data))
	assert.Equal(t, map[string]any{"component": "scheduler", "check.site": "api", "check.error": "timeout"}, data)
}

func TestStoreHandlerEnabledBelowInnerLevel(t *testing.T) {
	var buf bytes.Buffer
	base := New(config.LoggingConfig{Level: "error", Format: "text"}, &buf)
	sink := &memSink{}
	logger, closeSink := WithStore(base, sink, slog.LevelWarn)
	logger.Warn("persist only")
	closeSink()

	assert.Empty(t, buf.String())
	assert.Len(t, sink.recs, 1)
}
