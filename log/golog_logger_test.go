package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedGolog() (*golog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	glogger := golog.New()
	glogger.SetOutput(&buf)
	glogger.SetTimeFormat("")
	return glogger, &buf
}

func TestGologLoggerDefaultsToInfo(t *testing.T) {
	glogger, _ := newBufferedGolog()
	logger := NewGologLogger(glogger)
	assert.Equal(t, LogLevelInfo, logger.GetLevel())
}

func TestGologLoggerFormats(t *testing.T) {
	glogger, buf := newBufferedGolog()
	logger := NewGologLoggerWithLevel(glogger, LogLevelDebug)

	logger.Info("workspace %s ready, %d entries", "abc123", 7)
	assert.Contains(t, buf.String(), "workspace abc123 ready, 7 entries")

	buf.Reset()
	logger.Error("backend unavailable: %v", assert.AnError)
	assert.Contains(t, buf.String(), "backend unavailable: "+assert.AnError.Error())
}

func TestGologLoggerFiltersBelowLevel(t *testing.T) {
	glogger, buf := newBufferedGolog()
	logger := NewGologLoggerWithLevel(glogger, LogLevelError)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("dropped")
	require.Empty(t, buf.String())

	logger.Error("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestGologLoggerSetLevel(t *testing.T) {
	glogger, buf := newBufferedGolog()
	logger := NewGologLogger(glogger)

	logger.Debug("below info, dropped")
	require.Empty(t, buf.String())

	logger.SetLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, logger.GetLevel())
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")

	buf.Reset()
	logger.SetLevel(LogLevelNone)
	logger.Error("silenced")
	assert.Empty(t, buf.String())
}

func TestGologLoggerAsDefault(t *testing.T) {
	glogger, buf := newBufferedGolog()
	prev := GetDefaultLogger()
	t.Cleanup(func() { SetDefaultLogger(prev) })

	SetDefaultLogger(NewGologLoggerWithLevel(glogger, LogLevelInfo))
	Info("routed through golog: %d", 1)
	assert.Contains(t, buf.String(), "routed through golog: 1")
}
