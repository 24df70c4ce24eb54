package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/switchboard/internal/logging"
)

// Observer receives dispatcher events. Implementations must not block.
type Observer interface {
	ObserveDispatch(res Result)
	ObserveCacheClear(removed int)
	ObserveBreaker(handler string, from, to CircuitState)
}

// Dispatcher is the handler registry. It selects the best handler for a
// query, runs it through the cached execution wrapper and keeps aggregate
// statistics. It is safe for concurrent use.
type Dispatcher struct {
	cacheFactory  CacheFactory
	timeout       time.Duration
	fastLatencyMs float64
	breakerCfg    BreakerConfig
	useBreaker    bool
	observer      Observer
	log           zerolog.Logger

	mu     sync.RWMutex
	units  []*unit
	byName map[string]*unit

	// aggregate counters, guarded by mu
	total        int64
	usage        map[string]int64
	noMatch      int64
	failures     int64
	cacheHits    int64
	timed        int64
	avgLatencyMs float64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each Process call. Zero disables the timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithCacheFactory sets how per-handler caches are created.
func WithCacheFactory(factory CacheFactory) Option {
	return func(d *Dispatcher) {
		if factory != nil {
			d.cacheFactory = factory
		}
	}
}

// WithBreaker enables per-handler circuit breakers with the given config.
func WithBreaker(cfg BreakerConfig) Option {
	return func(d *Dispatcher) {
		d.breakerCfg = cfg
		d.useBreaker = true
	}
}

// WithoutBreaker disables circuit breaking.
func WithoutBreaker() Option {
	return func(d *Dispatcher) {
		d.useBreaker = false
	}
}

// WithFastLatency sets the average latency under which a handler earns the
// fast-response scoring bonus.
func WithFastLatency(ms float64) Option {
	return func(d *Dispatcher) {
		if ms > 0 {
			d.fastLatencyMs = ms
		}
	}
}

// WithObserver registers an observer for dispatch events.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// New creates an empty Dispatcher. By default caches are unbounded, Process
// calls have no timeout and circuit breakers use DefaultBreakerConfig.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cacheFactory:  UnboundedCaches(),
		fastLatencyMs: DefaultFastLatencyMs,
		breakerCfg:    DefaultBreakerConfig(),
		useBreaker:    true,
		log:           logging.For("dispatch"),
		byName:        make(map[string]*unit),
		usage:         make(map[string]int64),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Register appends h to the registry. Registration order breaks score ties.
func (d *Dispatcher) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidHandler)
	}
	name := h.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidHandler)
	}
	if name == DispatcherName {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidHandler, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}

	var breaker *CircuitBreaker
	if d.useBreaker {
		breaker = NewCircuitBreaker(name, d.breakerCfg)
		breaker.onStateChange = d.breakerChanged
	}

	u := newUnit(h, d.cacheFactory(), breaker, d.log)
	d.units = append(d.units, u)
	d.byName[name] = u

	d.log.Debug().Str("handler", name).Str("specialization", u.specialization).Msg("handler registered")
	return nil
}

// MustRegister registers every handler and panics on the first error.
func (d *Dispatcher) MustRegister(handlers ...Handler) *Dispatcher {
	for _, h := range handlers {
		if err := d.Register(h); err != nil {
			panic(err)
		}
	}
	return d
}

// Candidates returns every handler able to answer query with its score, in
// registration order. Handlers with an open circuit are skipped.
func (d *Dispatcher) Candidates(query string) []Candidate {
	d.mu.RLock()
	units := make([]*unit, len(d.units))
	copy(units, d.units)
	d.mu.RUnlock()

	candidates := make([]Candidate, 0, len(units))
	for _, u := range units {
		if u.breaker != nil && !u.breaker.Allow() {
			continue
		}
		if !u.matches(query) {
			continue
		}
		score := scoreHandler(u.snapshot(), u.scoringBonus(query), d.fastLatencyMs)
		candidates = append(candidates, Candidate{Name: u.name, Score: score, unit: u})
	}
	return candidates
}

// FindBestCandidate returns the highest-scoring candidate for query. Exact
// ties go to the handler registered first.
func (d *Dispatcher) FindBestCandidate(query string) (Candidate, bool) {
	var best Candidate
	found := false

	for _, c := range d.Candidates(query) {
		if !found || c.Score > best.Score {
			best = c
			found = true
		}
	}

	return best, found
}

// Dispatch routes query to the best handler and returns the annotated
// result. It never fails: unmatched queries and handler failures are
// reported inside the Result with zero confidence.
func (d *Dispatcher) Dispatch(ctx context.Context, query string) Result {
	start := time.Now()
	res := Result{
		RequestID: uuid.NewString(),
		Query:     query,
	}

	d.mu.Lock()
	d.total++
	d.mu.Unlock()

	best, ok := d.FindBestCandidate(query)
	if !ok {
		res.Response = NoHandlerResponse
		res.Handler = DispatcherName
		res.LatencyMs = millisSince(start)
		d.finish(res)
		d.log.Debug().Str("request_id", res.RequestID).Msg("no handler matched")
		return res
	}

	u := best.unit
	res.Handler = u.name

	exec, err := u.execute(ctx, query, d.timeout)
	if err != nil {
		res.Response = fmt.Sprintf("%s failed to process the query: %v", u.name, err)
		res.Error = err.Error()
		res.LatencyMs = millisSince(start)
		d.finish(res)
		d.log.Warn().Err(err).Str("handler", u.name).Str("request_id", res.RequestID).Msg("handler failed")
		return res
	}

	res.Response = exec.response
	res.Cached = exec.cached
	res.LatencyMs = exec.latencyMs
	res.Confidence = computeConfidence(exec.cached, exec.latencyMs, u.confidenceBonus(query, exec.response))

	d.finish(res)
	d.log.Debug().
		Str("request_id", res.RequestID).
		Str("handler", res.Handler).
		Bool("cached", res.Cached).
		Float64("latency_ms", res.LatencyMs).
		Float64("confidence", res.Confidence).
		Msg("dispatched")

	return res
}

// finish updates the aggregate counters for a completed dispatch and
// notifies the observer.
func (d *Dispatcher) finish(res Result) {
	d.mu.Lock()
	switch {
	case !res.Matched():
		d.noMatch++
	case res.Failed():
		d.failures++
	default:
		d.usage[res.Handler]++
		if res.Cached {
			d.cacheHits++
		}
	}
	d.timed++
	n := float64(d.timed)
	d.avgLatencyMs = (d.avgLatencyMs*(n-1) + res.LatencyMs) / n
	d.mu.Unlock()

	if d.observer != nil {
		d.observer.ObserveDispatch(res)
	}
}

// Handlers lists the registered handlers in registration order.
func (d *Dispatcher) Handlers() []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]HandlerInfo, len(d.units))
	for i, u := range d.units {
		infos[i] = HandlerInfo{Name: u.name, Specialization: u.specialization}
	}
	return infos
}

// Status reports every handler's counters, cache size and health.
func (d *Dispatcher) Status(ctx context.Context) []HandlerStatus {
	d.mu.RLock()
	units := make([]*unit, len(d.units))
	copy(units, d.units)
	d.mu.RUnlock()

	statuses := make([]HandlerStatus, len(units))
	for i, u := range units {
		statuses[i] = u.status(ctx)
	}
	return statuses
}

// Summary returns a snapshot of the aggregate usage statistics.
func (d *Dispatcher) Summary() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	usage := make(map[string]int64, len(d.usage))
	for k, v := range d.usage {
		usage[k] = v
	}

	return Summary{
		TotalRequests: d.total,
		Usage:         usage,
		NoMatch:       d.noMatch,
		Failures:      d.failures,
		CacheHits:     d.cacheHits,
		AvgLatencyMs:  d.avgLatencyMs,
	}
}

// ClearCaches empties every handler cache and returns the number of
// entries removed. Counters are left untouched.
func (d *Dispatcher) ClearCaches() int {
	d.mu.RLock()
	units := make([]*unit, len(d.units))
	copy(units, d.units)
	d.mu.RUnlock()

	cleared := 0
	for _, u := range units {
		cleared += u.clear()
	}

	d.log.Info().Int("entries", cleared).Msg("handler caches cleared")
	if d.observer != nil {
		d.observer.ObserveCacheClear(cleared)
	}
	return cleared
}

// ResetBreakers closes every handler's circuit.
func (d *Dispatcher) ResetBreakers() {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, u := range d.units {
		if u.breaker != nil {
			u.breaker.Reset()
		}
	}
}

func (d *Dispatcher) breakerChanged(name string, from, to CircuitState) {
	d.log.Warn().Str("handler", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
	if d.observer != nil {
		d.observer.ObserveBreaker(name, from, to)
	}
}
