package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/switchboard/internal/assistant"
	"github.com/normanking/switchboard/internal/bus"
	"github.com/normanking/switchboard/internal/logging"
	"github.com/normanking/switchboard/internal/metrics"
	"github.com/normanking/switchboard/internal/scheduler"
	"github.com/normanking/switchboard/internal/server"
	"github.com/normanking/switchboard/internal/tui"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#A99CFF"})
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#707070", Dark: "#8A8A8A"})
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1F7A4D", Dark: "#6BD6A0"})
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"})
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAT COMMAND (ROOT)
// ═══════════════════════════════════════════════════════════════════════════════

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat (default)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := initializeRuntime(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer rt.close()

	logging.DisableConsoleOutput()
	defer logging.EnableConsoleOutput()

	return tui.Run(ctx, rt.assistant, rt.dispatcher, tui.Options{
		Plain:        noColor,
		QueryTimeout: cfg.Dispatch.Timeout + 5*time.Second,
	})
}

// ═══════════════════════════════════════════════════════════════════════════════
// ASK COMMAND (One-shot query)
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Long: `Route one question to the best handler and print the answer.

Examples:
  switchboard ask "what is (4+5)*2"
  switchboard ask "how much memory is free"
  switchboard ask --json "why is the sky blue"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Dispatch.Timeout+5*time.Second)
			defer cancel()

			rt, err := initializeRuntime(ctx, cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer rt.close()

			reply, err := rt.assistant.Ask(ctx, question)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reply)
			}

			fmt.Println(reply.Text)
			fmt.Println(dimStyle.Render(describeReply(reply)))
			if reply.Error != "" {
				return fmt.Errorf("handler %s failed: %s", reply.Handler, reply.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full reply as JSON")
	return cmd
}

func describeReply(r assistant.Reply) string {
	parts := []string{"via " + r.Handler}
	switch r.Source {
	case assistant.SourcePersisted:
		parts = append(parts, "remembered")
	case assistant.SourceDispatch:
		if r.Cached {
			parts = append(parts, "cached")
		}
		parts = append(parts,
			fmt.Sprintf("confidence %.2f", r.Confidence),
			fmt.Sprintf("%.1fms", r.LatencyMs))
	}
	return strings.Join(parts, " · ")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HANDLERS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func handlersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List registered handlers and their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := initializeRuntime(cmd.Context(), cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer rt.close()

			fmt.Println(titleStyle.Render("Registered handlers"))
			fmt.Println(dimStyle.Render(strings.Repeat("─", 40)))
			for i, st := range rt.dispatcher.Status(cmd.Context()) {
				health := okStyle.Render("ok")
				if st.Degraded {
					health = warnStyle.Render("degraded: " + st.Error)
				}
				fmt.Printf("%d. %-12s %-28s %s\n", i+1, st.Name, dimStyle.Render(st.Specialization), health)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, event stream and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = cfg.Server.Addr
			}

			prom := metrics.NewPrometheus()
			rt, err := initializeRuntime(ctx, cfg, prom)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer rt.close()

			stream := bus.NewStream(rt.bus)
			defer stream.Close()

			pruners := map[string]scheduler.Pruner{"responses": rt.responses}
			if rt.stats != nil {
				pruners["dispatch_log"] = rt.stats
			}
			sched, err := scheduler.New(scheduler.Config{
				PruneSchedule:   cfg.Scheduler.PruneSchedule,
				SummarySchedule: cfg.Scheduler.SummarySchedule,
				Retention:       cfg.Persistence.Retention,
			}, rt.dispatcher, pruners)
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			srv := server.New(addr, server.Deps{
				Registry:  rt.dispatcher,
				Assistant: rt.assistant,
				Stats:     rt.stats,
				Metrics:   prom,
				Events:    stream,
				Health:    rt.health,
				Version:   version,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			log.Info().Str("addr", addr).Int("handlers", len(rt.dispatcher.Handlers())).Int("jobs", sched.Jobs()).Msg("switchboard serving")

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			sched.LogSummary()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func statsCmd() *cobra.Command {
	var (
		since time.Duration
		days  int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dispatch statistics from the dispatch log",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := initializeRuntime(cmd.Context(), cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer rt.close()

			if rt.stats == nil {
				return errors.New("the dispatch log is disabled (persistence.backend is none)")
			}
			ctx := cmd.Context()

			handlerStats, err := rt.stats.HandlerStats(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render(fmt.Sprintf("Handlers, last %s", since)))
			fmt.Println(dimStyle.Render(strings.Repeat("─", 64)))
			if len(handlerStats) == 0 {
				fmt.Println(dimStyle.Render("no dispatches recorded"))
			}
			for _, hs := range handlerStats {
				fmt.Printf("%-12s %8s req  %6s fail  %6s cached  %8.1fms  conf %.2f\n",
					hs.Handler,
					humanize.Comma(hs.Requests),
					humanize.Comma(hs.Failures),
					humanize.Comma(hs.CacheHits),
					hs.AvgLatencyMs,
					hs.AvgConfidence)
			}

			daily, err := rt.stats.DailyStats(ctx, days)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(titleStyle.Render(fmt.Sprintf("Daily, last %d days", days)))
			fmt.Println(dimStyle.Render(strings.Repeat("─", 64)))
			for _, d := range daily {
				fmt.Printf("%s %8s total  %6s ok  %6s failed  %6s unmatched  %5.1f%% cached\n",
					d.Date,
					humanize.Comma(d.Total),
					humanize.Comma(d.Succeeded),
					humanize.Comma(d.Failed),
					humanize.Comma(d.Unmatched),
					d.CacheHitRate()*100)
			}

			total, err := rt.stats.Count(ctx)
			if err != nil {
				return err
			}
			remembered, err := rt.assistant.Remembered(ctx)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(dimStyle.Render(fmt.Sprintf("%s log entries · %s remembered answers",
				humanize.Comma(total), humanize.Comma(remembered))))
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "window for per-handler statistics")
	cmd.Flags().IntVar(&days, "days", 7, "number of days of daily statistics")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CACHE COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage remembered answers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Count remembered answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := initializeRuntime(cmd.Context(), cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer rt.close()

			n, err := rt.assistant.Remembered(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s remembered answers\n", humanize.Comma(n))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every remembered answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := initializeRuntime(cmd.Context(), cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer rt.close()

			n, err := rt.assistant.ForgetAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("✅ Forgot %s answers\n", humanize.Comma(n))
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Switchboard Configuration"))
			fmt.Println(dimStyle.Render(strings.Repeat("─", 25)))
			fmt.Print(out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(getConfigPath())
		},
	})

	return cmd
}
