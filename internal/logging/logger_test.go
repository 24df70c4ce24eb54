package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobal(t *testing.T) {
	prev := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		_ = Close()
		zlog.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
		EnableConsoleOutput()
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestSetup_ConsoleOutput(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "info", Console: true, NoColor: true, Out: &buf}))

	log := For("dispatch")
	log.Info().Str("handler", "Math").Msg("dispatched")
	log.Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, "dispatched")
	assert.Contains(t, out, "component=dispatch")
	assert.Contains(t, out, "handler=Math")
	assert.NotContains(t, out, "hidden")
}

func TestSetup_FileOutputIsJSON(t *testing.T) {
	restoreGlobal(t)

	path := filepath.Join(t.TempDir(), "logs", "switchboard.log")
	require.NoError(t, Setup(Config{Level: "debug", FilePath: path}))

	log := For("server")
	log.Debug().Int("status", 200).Msg("request served")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "request served", entry["message"])
	assert.Equal(t, "debug", entry["level"])
}

func TestDisableConsoleOutput(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "info", Console: true, NoColor: true, Out: &buf}))

	DisableConsoleOutput()
	zlog.Info().Msg("muted")
	assert.Empty(t, buf.String())

	EnableConsoleOutput()
	zlog.Info().Msg("audible")
	assert.Contains(t, buf.String(), "audible")
}

func TestDefaultAndVerboseConfig(t *testing.T) {
	assert.Equal(t, "info", DefaultConfig().Level)
	assert.True(t, DefaultConfig().Console)
	assert.Equal(t, "debug", VerboseConfig().Level)
}
