package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, FormatSimple)

	l.Debug("hidden")
	l.With("user_id", "42").Info("processing message", "preview", "hello there", "n", 3)
	l.WithGroup("tool").Warn("slow", "name", "calculate")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `INFO processing message user_id=42 preview="hello there" n=3`, lines[0])
	assert.Equal(t, `WARN slow tool.name=calculate`, lines[1])
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelDebug, &buf, FormatJSON)
	l.Debug("model call", "iteration", 2)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "model call", rec["msg"])
	assert.Equal(t, 2.0, rec["iteration"])
}

func TestInitSetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Init(slog.LevelWarn, &buf, FormatVerbose)
	slog.Info("ignored")
	slog.Error("failed", "error", "boom")

	out := buf.String()
	assert.NotContains(t, out, "ignored")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "msg=failed error=boom")
}
