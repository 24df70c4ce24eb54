// Package scheduler runs periodic maintenance while the server is up:
// pruning persisted answers and the dispatch log past their retention, and
// logging the dispatcher summary.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/normanking/switchboard/internal/dispatch"
	"github.com/normanking/switchboard/internal/logging"
)

const jobTimeout = time.Minute

// Pruner removes records created before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SummarySource reports aggregate dispatcher statistics.
type SummarySource interface {
	Summary() dispatch.Summary
}

// Config selects the jobs to run. An empty schedule disables its job.
type Config struct {
	PruneSchedule   string
	SummarySchedule string
	Retention       time.Duration
}

// Scheduler manages cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	retention time.Duration
	pruners   map[string]Pruner
	summary   SummarySource
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a scheduler. pruners are keyed by a name used in logs.
func New(cfg Config, summary SummarySource, pruners map[string]Pruner) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		retention: cfg.Retention,
		pruners:   pruners,
		summary:   summary,
		now:       time.Now,
		log:       logging.For("scheduler"),
	}

	if cfg.PruneSchedule != "" && cfg.Retention > 0 && len(pruners) > 0 {
		if _, err := s.cron.AddFunc(cfg.PruneSchedule, func() { s.Prune(context.Background()) }); err != nil {
			return nil, fmt.Errorf("prune schedule %q: %w", cfg.PruneSchedule, err)
		}
	}
	if cfg.SummarySchedule != "" && summary != nil {
		if _, err := s.cron.AddFunc(cfg.SummarySchedule, s.LogSummary); err != nil {
			return nil, fmt.Errorf("summary schedule %q: %w", cfg.SummarySchedule, err)
		}
	}
	return s, nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Prune removes records older than the retention from every pruner and
// returns the number removed per pruner.
func (s *Scheduler) Prune(ctx context.Context) map[string]int64 {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.retention)
	removed := make(map[string]int64, len(s.pruners))
	for name, p := range s.pruners {
		n, err := p.Prune(ctx, cutoff)
		if err != nil {
			s.log.Warn().Err(err).Str("target", name).Msg("prune failed")
			continue
		}
		removed[name] = n
		s.log.Info().Str("target", name).Int64("removed", n).Time("cutoff", cutoff).Msg("pruned")
	}
	return removed
}

// LogSummary writes the dispatcher summary to the log.
func (s *Scheduler) LogSummary() {
	sum := s.summary.Summary()
	s.log.Info().
		Int64("requests", sum.TotalRequests).
		Float64("avg_latency_ms", sum.AvgLatencyMs).
		Float64("cache_hit_rate", sum.CacheHitRate()).
		Int64("unmatched", sum.NoMatch).
		Int64("failures", sum.Failures).
		Interface("usage", sum.Usage).
		Msg("dispatch summary")
}
