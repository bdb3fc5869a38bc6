package logger_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/pkg/logger"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromWriter(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	require.Equal(t, buff.Len(), 0)

	templogger.Logger.Info().Str("class", "Task").Msg("Test")
	require.Contains(t, buff.String(), "Test")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buff.Bytes(), &line))
	assert.Equal(t, "Task", line["class"])
	assert.Contains(t, line, "time")
}

func TestLogLevelFilters(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromWriter(buff).WithLevel("warn").Make()
	require.NoError(t, err)

	templogger.Logger.Info().Msg("quiet")
	require.Equal(t, buff.Len(), 0)

	templogger.Logger.Warn().Msg("loud")
	require.Contains(t, buff.String(), "loud")
}

func TestLogConsoleFormat(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromWriter(buff).WithFormat("console").Make()
	require.NoError(t, err)

	templogger.Logger.Info().Msg("readable")
	out := buff.String()
	require.Contains(t, out, "readable")
	// Console lines are not JSON objects.
	assert.Error(t, json.Unmarshal(buff.Bytes(), &map[string]any{}))
}

func TestLogToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anyclass.log")
	templogger, err := logger.New().FromPath(path).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger.LogFile)

	templogger.Logger.Info().Msg("persisted")
	require.NoError(t, templogger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "persisted")
}

func TestLogRejectsUnknownSettings(t *testing.T) {
	_, err := logger.New().WithFormat("xml").Make()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log format "xml"`)

	_, err = logger.New().WithLevel("loudest").Make()
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	log := logger.Nop()
	log.Error().Msg("dropped")
}
