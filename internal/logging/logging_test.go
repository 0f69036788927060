package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "WARN", "json")
	logger.Info("hidden")
	logger.Warn("alert created", "parameter_id", "ph")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "alert created", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "ph", rec["parameter_id"])
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "chatty", "")
	logger.Debug("hidden")
	assert.Zero(t, buf.Len())
	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "TEXT").Debug("window hydrated", "points", 12)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "points=12")
}

func TestComponent(t *testing.T) {
	assert.Nil(t, Component(nil, "engine"))

	var buf bytes.Buffer
	Component(New(&buf, "info", "json"), "ingest").Info("started")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ingest", rec["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
