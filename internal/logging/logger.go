// Package logging configures the zerolog logger shared by every switchboard
// component. It supports a human-readable console writer, optional JSON file
// output for persistent debugging, and muting the console while a terminal
// UI owns the screen.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config configures the logger behavior.
type Config struct {
	Level    string    // Minimum level to log (debug, info, warn, error)
	FilePath string    // Optional file path for JSON logs
	Console  bool      // Write human-readable output to Out
	NoColor  bool      // Disable ANSI colors on the console
	Out      io.Writer // Console destination, stderr when nil
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Console: true,
	}
}

// VerboseConfig returns a configuration for troubleshooting.
func VerboseConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// GLOBAL LOGGER
// ═══════════════════════════════════════════════════════════════════════════════

var (
	globalMu sync.Mutex
	logFile  *os.File
	console  = &gate{}
)

// gate is a console writer that can be muted without rebuilding the logger.
type gate struct {
	mu      sync.RWMutex
	w       io.Writer
	enabled atomic.Bool
}

func (g *gate) Write(p []byte) (int, error) {
	if !g.enabled.Load() {
		return len(p), nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.w == nil {
		return len(p), nil
	}
	return g.w.Write(p)
}

func (g *gate) set(w io.Writer, enabled bool) {
	g.mu.Lock()
	g.w = w
	g.mu.Unlock()
	g.enabled.Store(enabled)
}

// Setup installs the global zerolog logger described by cfg. Calling it
// again replaces the previous configuration and closes its log file.
func Setup(cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if err := closeFileLocked(); err != nil {
		return err
	}

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	console.set(zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: time.Kitchen}, cfg.Console)

	writers := []io.Writer{console}
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		writers = append(writers, f)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	zlog.Logger = logger
	zerolog.DefaultContextLogger = &logger

	return nil
}

// Close closes the log file opened by Setup, if any.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	return closeFileLocked()
}

func closeFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// For returns a sub-logger of the global logger tagged with component.
func For(component string) zerolog.Logger {
	return zlog.Logger.With().Str("component", component).Logger()
}

// DisableConsoleOutput mutes console output, logging only to file.
// Call it before a terminal UI takes over the screen.
func DisableConsoleOutput() {
	console.enabled.Store(false)
}

// EnableConsoleOutput re-enables console output.
func EnableConsoleOutput() {
	console.enabled.Store(true)
}
