package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/switchboard/internal/config"
	"github.com/normanking/switchboard/internal/logging"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	noColor bool
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Switchboard - routes questions to specialised handlers",
		Long: `Switchboard answers questions by routing each one to the handler best
suited to it:
  • Math evaluates arithmetic and trigonometry
  • System reports cpu, memory, disk, network and process status
  • Knowledge answers general why/how/what-is questions
  • Lua scripts in the handlers directory add your own
  • An LLM fallback answers the rest when an API key is configured

Start interactive mode:  switchboard
One-shot question:       switchboard ask "what is 6*7"
HTTP API:                switchboard serve`,
		SilenceUsage:      true,
		PersistentPreRunE: initLogging,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
		RunE:              runChat,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.switchboard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Switchboard v%s\n", version)
		},
	})

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(handlersCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	if noColor || os.Getenv("NO_COLOR") != "" {
		noColor = true
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loaded

	logCfg := logging.DefaultConfig()
	if verbose {
		logCfg = logging.VerboseConfig()
	} else if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logCfg.FilePath = cfg.Logging.File
	logCfg.NoColor = noColor

	if err := logging.Setup(logCfg); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	log.Debug().Str("config", getConfigPath()).Str("data_dir", cfg.Persistence.DataDir).Msg("switchboard starting")
	return nil
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, error) {
	c, err := config.LoadFromPath(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", getConfigPath(), err)
	}
	if err := c.EnsureDirectories(); err != nil {
		return nil, err
	}
	return c, nil
}
