package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialize(t *testing.T) {
	t.Cleanup(func() { Initialize("info", false) })

	var buf bytes.Buffer
	initialize(&buf, "warn", true)
	Log.Info("dropped")
	Component("room").Warn("kept", "version", 3)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"component":"room"`)
	assert.Same(t, Log, slog.Default())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
