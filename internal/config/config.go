package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/switchboard/internal/dispatch"
)

// Handler names accepted in handlers.enabled.
const (
	HandlerMath      = "math"
	HandlerSystem    = "system"
	HandlerKnowledge = "knowledge"
	HandlerLLM       = "llm"
)

// Persistence backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config is the root configuration.
type Config struct {
	Dispatch    DispatchConfig    `mapstructure:"dispatch" yaml:"dispatch"`
	Handlers    HandlersConfig    `mapstructure:"handlers" yaml:"handlers"`
	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	// Timeout bounds each handler's Process call. Zero waits forever.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// CacheMaxEntries caps each handler cache (LRU). Zero keeps caches unbounded.
	CacheMaxEntries int `mapstructure:"cache_max_entries" yaml:"cache_max_entries"`

	// FastLatencyMs is the average latency under which a handler earns the
	// fast-response scoring bonus.
	FastLatencyMs float64 `mapstructure:"fast_latency_ms" yaml:"fast_latency_ms"`

	BreakerEnabled bool                   `mapstructure:"breaker_enabled" yaml:"breaker_enabled"`
	Breaker        dispatch.BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

// HandlersConfig selects and configures the built-in handlers.
type HandlersConfig struct {
	// Enabled lists built-in handlers in registration order.
	Enabled []string `mapstructure:"enabled" yaml:"enabled"`

	// ScriptDir holds Lua handler scripts, registered after the built-ins
	// and before the llm fallback.
	ScriptDir string `mapstructure:"script_dir" yaml:"script_dir"`

	LLM LLMConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMConfig configures the catch-all language model handler.
type LLMConfig struct {
	Provider     string `mapstructure:"provider" yaml:"provider"`
	Model        string `mapstructure:"model" yaml:"model"`
	APIKey       string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	MaxTokens    int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// PersistenceConfig controls the persisted response store and dispatch log.
type PersistenceConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	DataDir       string        `mapstructure:"data_dir" yaml:"data_dir"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	MinConfidence float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SchedulerConfig holds cron expressions for background jobs. An empty
// expression disables the job.
type SchedulerConfig struct {
	PruneSchedule   string `mapstructure:"prune_schedule" yaml:"prune_schedule"`
	SummarySchedule string `mapstructure:"summary_schedule" yaml:"summary_schedule"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config with default values.
func Default() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		Dispatch: DispatchConfig{
			Timeout:        30 * time.Second,
			FastLatencyMs:  dispatch.DefaultFastLatencyMs,
			BreakerEnabled: true,
			Breaker:        dispatch.DefaultBreakerConfig(),
		},
		Handlers: HandlersConfig{
			Enabled:   []string{HandlerMath, HandlerSystem, HandlerKnowledge, HandlerLLM},
			ScriptDir: filepath.Join(dataDir, "handlers"),
			LLM: LLMConfig{
				Provider:     "anthropic",
				Model:        "claude-sonnet-4-20250514",
				MaxTokens:    1024,
				SystemPrompt: "You are a concise assistant. Answer in a few sentences.",
			},
		},
		Persistence: PersistenceConfig{
			Backend:       BackendSQLite,
			DataDir:       dataDir,
			RedisAddr:     "127.0.0.1:6379",
			MinConfidence: 0.6,
			Retention:     30 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8642",
		},
		Scheduler: SchedulerConfig{
			PruneSchedule:   "@daily",
			SummarySchedule: "@hourly",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "switchboard.log"),
		},
	}
}

// DefaultDataDir returns ~/.switchboard.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".switchboard"
	}
	return filepath.Join(homeDir, ".switchboard")
}

// DefaultPath returns ~/.switchboard/config.yaml.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads configuration from the default location.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath())
}

// LoadFromPath reads configuration from path and merges environment
// variables. If the file doesn't exist, it is created with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: SWITCHBOARD_HANDLERS_LLM_API_KEY
	v.SetEnvPrefix("SWITCHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets are omitted from the file when empty, so bind them explicitly.
	for _, key := range []string{"handlers.llm.api_key", "handlers.llm.base_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Persistence.DataDir = expandPath(cfg.Persistence.DataDir)
	cfg.Handlers.ScriptDir = expandPath(cfg.Handlers.ScriptDir)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return cfg, nil
}

// SaveToPath writes the configuration to path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// YAML renders the configuration with secrets redacted.
func (c *Config) YAML() (string, error) {
	redacted := *c
	if redacted.Handlers.LLM.APIKey != "" {
		redacted.Handlers.LLM.APIKey = "********"
	}
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// DBPath returns the sqlite database path inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Persistence.DataDir, "switchboard.db")
}

// EnsureDirectories creates the data, script and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Persistence.DataDir}
	if c.Handlers.ScriptDir != "" {
		dirs = append(dirs, c.Handlers.ScriptDir)
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// HandlerEnabled reports whether the named built-in handler is enabled.
func (c *Config) HandlerEnabled(name string) bool {
	for _, n := range c.Handlers.Enabled {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Options converts the dispatch section into dispatcher options.
func (c DispatchConfig) Options() []dispatch.Option {
	opts := []dispatch.Option{
		dispatch.WithTimeout(c.Timeout),
		dispatch.WithCacheFactory(dispatch.LRUCaches(c.CacheMaxEntries)),
		dispatch.WithFastLatency(c.FastLatencyMs),
	}
	if c.BreakerEnabled {
		opts = append(opts, dispatch.WithBreaker(c.Breaker))
	} else {
		opts = append(opts, dispatch.WithoutBreaker())
	}
	return opts
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Dispatch.Timeout < 0 {
		return fmt.Errorf("dispatch.timeout cannot be negative")
	}
	if c.Dispatch.CacheMaxEntries < 0 {
		return fmt.Errorf("dispatch.cache_max_entries cannot be negative")
	}
	if c.Dispatch.FastLatencyMs < 0 {
		return fmt.Errorf("dispatch.fast_latency_ms cannot be negative")
	}

	known := map[string]bool{HandlerMath: true, HandlerSystem: true, HandlerKnowledge: true, HandlerLLM: true}
	seen := make(map[string]bool)
	for _, name := range c.Handlers.Enabled {
		n := strings.ToLower(name)
		if !known[n] {
			return fmt.Errorf("unknown handler '%s' in handlers.enabled", name)
		}
		if seen[n] {
			return fmt.Errorf("handler '%s' listed twice in handlers.enabled", name)
		}
		seen[n] = true
	}
	if c.HandlerEnabled(HandlerLLM) && c.Handlers.LLM.Provider != "anthropic" {
		return fmt.Errorf("invalid llm provider '%s', must be 'anthropic'", c.Handlers.LLM.Provider)
	}

	switch c.Persistence.Backend {
	case BackendSQLite, BackendRedis, BackendNone:
	default:
		return fmt.Errorf("invalid persistence backend '%s', must be one of: sqlite, redis, none", c.Persistence.Backend)
	}
	if c.Persistence.Backend == BackendRedis && c.Persistence.RedisAddr == "" {
		return fmt.Errorf("persistence.redis_addr is required for the redis backend")
	}
	if c.Persistence.MinConfidence < 0 || c.Persistence.MinConfidence > 1 {
		return fmt.Errorf("persistence.min_confidence must be between 0 and 1")
	}

	for key, expr := range map[string]string{
		"scheduler.prune_schedule":   c.Scheduler.PruneSchedule,
		"scheduler.summary_schedule": c.Scheduler.SummarySchedule,
	} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", key, expr, err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes cfg to path as YAML.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
