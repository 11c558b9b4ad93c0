package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLogLevel("warning"))
	assert.Equal(t, ERROR, ParseLogLevel("error"))
	assert.Equal(t, INFO, ParseLogLevel("verbose"))
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(INFO, zapcore.AddSync(&buf))
	require.NoError(t, err)

	l.Debug("hidden %d", 1)
	l.Info("campaign %d refreshed", 7)
	l.Sync()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "campaign 7 refreshed", entry["message"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewWithLumberjackConfigRequiresFile(t *testing.T) {
	_, err := NewWithLumberjackConfig(INFO, LumberjackConfig{})
	assert.Error(t, err)
}
