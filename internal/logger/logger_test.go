package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefermion/reviews/internal/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.Logging{Level: "debug", Service: "reviews"}, &buf, false)
	log.Debug("hello", "portal_id", "acme")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "reviews", rec["service"])
	assert.Equal(t, "acme", rec["portal_id"])
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.Logging{Level: "info", Service: "reviews"}, &buf, true)
	log.Debug("dropped")
	log.Info("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
	assert.Contains(t, buf.String(), "service=reviews")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(config.Logging{Service: "reviews"}, &buf, false)

	FromContext(WithRequestID(context.Background(), "req-1"), base).Info("x")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)

	assert.Empty(t, RequestID(context.Background()))
	assert.Same(t, base, FromContext(context.Background(), base))
}
