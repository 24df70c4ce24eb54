package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/normanking/switchboard/internal/assistant"
	"github.com/normanking/switchboard/internal/bus"
	"github.com/normanking/switchboard/internal/config"
	"github.com/normanking/switchboard/internal/data"
	"github.com/normanking/switchboard/internal/dispatch"
	"github.com/normanking/switchboard/internal/handlers"
	"github.com/normanking/switchboard/internal/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RUNTIME WIRING
// ═══════════════════════════════════════════════════════════════════════════════

// runtime bundles the components every command shares.
type runtime struct {
	bus        *bus.Bus
	dispatcher *dispatch.Dispatcher
	assistant  *assistant.Assistant
	db         *data.Store
	responses  data.ResponseStore
	stats      *metrics.Store
	collector  *metrics.Collector

	closers []func() error
}

// initializeRuntime wires config, bus, handlers, persistence and the
// assistant. prom may be nil.
func initializeRuntime(ctx context.Context, c *config.Config, prom *metrics.Prometheus) (*runtime, error) {
	rt := &runtime{bus: bus.New()}

	opts := append(c.Dispatch.Options(), dispatch.WithObserver(bus.NewDispatchBridge(rt.bus)))
	rt.dispatcher = dispatch.New(opts...)

	hs, err := handlers.Build(c, handlers.BuildOptions{})
	if err != nil {
		rt.close()
		return nil, err
	}
	for _, h := range hs {
		if err := rt.dispatcher.Register(h); err != nil {
			rt.close()
			return nil, fmt.Errorf("register %s: %w", h.Name(), err)
		}
	}

	if err := rt.openPersistence(ctx, c); err != nil {
		rt.close()
		return nil, err
	}

	rt.collector = metrics.NewCollector(rt.bus, prom, rt.stats)
	rt.collector.Start()
	rt.closers = append(rt.closers, func() error { rt.collector.Stop(); return nil })

	rt.assistant = assistant.New(rt.dispatcher,
		assistant.WithStore(rt.responses),
		assistant.WithMinConfidence(c.Persistence.MinConfidence),
		assistant.WithPublisher(rt.bus),
	)

	log.Debug().
		Int("handlers", len(hs)).
		Str("backend", c.Persistence.Backend).
		Msg("runtime initialized")
	return rt, nil
}

// openPersistence opens the response store for the configured backend. The
// dispatch log lives in SQLite for every backend except none.
func (rt *runtime) openPersistence(ctx context.Context, c *config.Config) error {
	rt.responses = data.NopResponses{}
	if c.Persistence.Backend == config.BackendNone {
		return nil
	}

	db, err := data.Open(c.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)

	if rt.stats, err = metrics.NewStore(db.DB()); err != nil {
		return fmt.Errorf("failed to open dispatch log: %w", err)
	}

	switch c.Persistence.Backend {
	case config.BackendSQLite:
		rt.responses = data.NewSQLiteResponses(db)
	case config.BackendRedis:
		r, err := data.NewRedisResponses(ctx, data.RedisConfig{
			Addr:      c.Persistence.RedisAddr,
			DB:        c.Persistence.RedisDB,
			Retention: c.Persistence.Retention,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.responses = r
		rt.closers = append(rt.closers, r.Close)
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	return nil
}

// health reports whether the persistence layer is reachable.
func (rt *runtime) health(ctx context.Context) error {
	if rt.db == nil {
		return nil
	}
	return rt.db.Health(ctx)
}

// close releases everything in reverse order of acquisition. The bus
// goes first so queued events reach the dispatch log.
func (rt *runtime) close() error {
	var errs []error
	if err := rt.bus.Close(); err != nil && !errors.Is(err, bus.ErrClosed) {
		errs = append(errs, err)
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
