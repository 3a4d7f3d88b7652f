package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{" warn ", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"info", INFO},
		{"", INFO},
		{"chatty", INFO},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLoggerJSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: INFO, JSONFormat: true, Console: &buf})
	require.NoError(t, err)

	logger.With("component", "matcher").Info("matched", "node", "proc:wccuds1")
	logger.Debug("dropped")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "matched", rec["msg"])
	assert.Equal(t, "matcher", rec["component"])
	assert.Equal(t, "proc:wccuds1", rec["node"])
}

func TestLogFileRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "jtriage.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 64), 0644))

	var console bytes.Buffer
	logger, err := NewLogger(Config{Level: DEBUG, OutputFile: path, MaxSize: 32, Console: &console})
	require.NoError(t, err)
	logger.Warn("after rotation")
	require.NoError(t, logger.Close())

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Len(t, rotated, 64)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(current), "after rotation")
	assert.Contains(t, console.String(), "after rotation")
}
