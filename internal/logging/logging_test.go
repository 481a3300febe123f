package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(format string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetFormat(format)
	return l, &buf
}

func TestJSONEntryCarriesComponentAndFields(t *testing.T) {
	l, buf := newBuffered("json")

	l.WithComponent("agent").WithRunID("run-1").Info("step", map[string]interface{}{"n": 2})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step", entry["msg"])
	assert.Equal(t, "agent", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, float64(2), entry["n"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBuffered("text")

	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(LevelDebug)
	l.Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	l.SetLevel(LevelError)
	l.Warn("dropped")
	l.Error("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestDerivedLoggersShareLevel(t *testing.T) {
	l, buf := newBuffered("text")
	child := l.WithComponent("retrieval")

	l.SetLevel(LevelWarn)
	child.Info("quiet")
	assert.Empty(t, buf.String())
}

func TestToolResult(t *testing.T) {
	l, buf := newBuffered("json")
	l.SetLevel(LevelDebug)

	l.ToolResult("Search", 15*time.Millisecond, errors.New("boom"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)

	buf.Reset()
	l.ToolResult("Calculator", time.Millisecond, nil)
	assert.Contains(t, buf.String(), `"msg":"tool_result"`)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.Equal(t, io.Discard, l.base.Out)
	assert.NotPanics(t, func() { l.WithComponent("x").Error("nothing", nil) })
}
