package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "json", &buf)

	logger.Info("login",
		"token", "abc123",
		"header", "Bearer eyJhbGciOiJSUzI1NiJ9.payload",
		"user", "alice",
	)

	out := buf.String()
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "eyJhbGciOiJSUzI1NiJ9")
	assert.Contains(t, out, "alice")
}

func TestNew_Format(t *testing.T) {
	var buf bytes.Buffer
	New("info", "text", &buf).Info("hello", "k", "v")
	assert.True(t, strings.Contains(buf.String(), "k=v"), buf.String())

	buf.Reset()
	New("info", "json", &buf).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}
