package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.Dispatch.Timeout)
	assert.Zero(t, cfg.Dispatch.CacheMaxEntries)
	assert.True(t, cfg.Dispatch.BreakerEnabled)
	assert.Equal(t, 3, cfg.Dispatch.Breaker.FailureThreshold)
	assert.Equal(t, []string{"math", "system", "knowledge", "llm"}, cfg.Handlers.Enabled)
	assert.Equal(t, BackendSQLite, cfg.Persistence.Backend)
	assert.Equal(t, 0.6, cfg.Persistence.MinConfidence)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPath_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".switchboard", "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "config file should be created")

	assert.Equal(t, 30*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.Breaker.RecoveryTimeout)

	again, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestSaveToPath_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Dispatch.Timeout = 5 * time.Second
	cfg.Dispatch.CacheMaxEntries = 256
	cfg.Handlers.Enabled = []string{"math", "knowledge"}
	cfg.Persistence.Backend = BackendNone
	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, loaded.Dispatch.Timeout)
	assert.Equal(t, 256, loaded.Dispatch.CacheMaxEntries)
	assert.Equal(t, []string{"math", "knowledge"}, loaded.Handlers.Enabled)
	assert.Equal(t, BackendNone, loaded.Persistence.Backend)
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("SWITCHBOARD_LOGGING_LEVEL", "debug")
	t.Setenv("SWITCHBOARD_DISPATCH_TIMEOUT", "2s")
	t.Setenv("SWITCHBOARD_HANDLERS_LLM_API_KEY", "sk-test")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, "sk-test", cfg.Handlers.LLM.APIKey)
}

func TestYAML_RedactsAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Handlers.LLM.APIKey = "sk-secret"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "********")
	assert.Equal(t, "sk-secret", cfg.Handlers.LLM.APIKey)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Persistence.DataDir = filepath.Join(dir, "data")
	cfg.Handlers.ScriptDir = filepath.Join(dir, "scripts")
	cfg.Logging.File = filepath.Join(dir, "logs", "switchboard.log")

	require.NoError(t, cfg.EnsureDirectories())

	for _, d := range []string{"data", "scripts", "logs"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(dir, "data", "switchboard.db"), cfg.DBPath())
}

func TestHandlerEnabled(t *testing.T) {
	cfg := Default()
	cfg.Handlers.Enabled = []string{"Math"}

	assert.True(t, cfg.HandlerEnabled(HandlerMath))
	assert.False(t, cfg.HandlerEnabled(HandlerLLM))
}

func TestDispatchOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.Dispatch.Options(), 4)

	cfg.Dispatch.BreakerEnabled = false
	assert.Len(t, cfg.Dispatch.Options(), 4)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid default", func(*Config) {}, ""},
		{"negative timeout", func(c *Config) { c.Dispatch.Timeout = -time.Second }, "dispatch.timeout"},
		{"negative cache size", func(c *Config) { c.Dispatch.CacheMaxEntries = -1 }, "cache_max_entries"},
		{"unknown handler", func(c *Config) { c.Handlers.Enabled = []string{"weather"} }, "unknown handler"},
		{"duplicate handler", func(c *Config) { c.Handlers.Enabled = []string{"math", "Math"} }, "listed twice"},
		{"bad provider", func(c *Config) { c.Handlers.LLM.Provider = "openai" }, "llm provider"},
		{"provider ignored without llm", func(c *Config) {
			c.Handlers.Enabled = []string{"math"}
			c.Handlers.LLM.Provider = "openai"
		}, ""},
		{"bad backend", func(c *Config) { c.Persistence.Backend = "mongo" }, "persistence backend"},
		{"redis without addr", func(c *Config) {
			c.Persistence.Backend = BackendRedis
			c.Persistence.RedisAddr = ""
		}, "redis_addr"},
		{"confidence out of range", func(c *Config) { c.Persistence.MinConfidence = 1.5 }, "min_confidence"},
		{"bad cron", func(c *Config) { c.Scheduler.PruneSchedule = "every day" }, "prune_schedule"},
		{"empty cron disables", func(c *Config) { c.Scheduler.SummarySchedule = "" }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
