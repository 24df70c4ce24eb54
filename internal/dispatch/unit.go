package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// unit owns one registered handler together with its private cache,
// counters and circuit breaker. The cache and counters are guarded by mu;
// mu is never held while the handler runs.
type unit struct {
	handler        Handler
	name           string
	specialization string
	breaker        *CircuitBreaker
	log            zerolog.Logger

	mu    sync.Mutex
	cache Cache
	stats HandlerStats
}

// execution is the outcome of the cached execution wrapper.
type execution struct {
	response  string
	cached    bool
	latencyMs float64
}

func newUnit(h Handler, cache Cache, breaker *CircuitBreaker, log zerolog.Logger) *unit {
	name := h.Name()
	return &unit{
		handler:        h,
		name:           name,
		specialization: h.Specialization(),
		breaker:        breaker,
		cache:          cache,
		log:            log.With().Str("handler", name).Logger(),
	}
}

// execute serves query from the cache or runs the handler and memoizes the
// response. It is the only place where the cache and counters change.
func (u *unit) execute(ctx context.Context, query string, timeout time.Duration) (execution, error) {
	key := CacheKey(u.name, query)

	u.mu.Lock()
	if response, ok := u.cache.Get(key); ok {
		u.stats.CacheHits++
		u.mu.Unlock()
		return execution{response: response, cached: true}, nil
	}
	u.mu.Unlock()

	start := time.Now()
	response, err := u.invoke(ctx, query, timeout)
	latency := millisSince(start)

	if err != nil {
		u.recordFailure(ctx, err)
		return execution{latencyMs: latency}, err
	}

	u.mu.Lock()
	u.cache.Add(key, response)
	u.stats.Requests++
	n := float64(u.stats.Requests)
	u.stats.AvgLatencyMs = (u.stats.AvgLatencyMs*(n-1) + latency) / n
	u.mu.Unlock()

	if u.breaker != nil {
		u.breaker.RecordSuccess()
	}

	return execution{response: response, latencyMs: latency}, nil
}

// recordFailure counts a failed Process call. Nothing is counted once the
// caller's context is done, and input errors never reach the breaker.
func (u *unit) recordFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		u.log.Debug().Err(err).Msg("dispatch abandoned by caller")
		return
	}

	u.mu.Lock()
	u.stats.Failures++
	u.mu.Unlock()

	if u.breaker != nil && !errors.Is(err, ErrBadInput) {
		u.breaker.RecordFailure()
	}
}

// invoke runs Process with panic recovery and an optional timeout.
// A timeout of zero waits for Process indefinitely.
func (u *unit) invoke(ctx context.Context, query string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		response string
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		response, err := u.handler.Process(ctx, query)
		done <- outcome{response: response, err: err}
	}()

	select {
	case out := <-done:
		return out.response, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", ctx.Err()
	}
}

// matches evaluates CanHandle; a panicking predicate disqualifies the handler.
func (u *unit) matches(query string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			u.log.Warn().Interface("panic", r).Msg("can_handle panicked")
			ok = false
		}
	}()
	return u.handler.CanHandle(query)
}

func (u *unit) scoringBonus(query string) (bonus float64) {
	defer func() {
		if r := recover(); r != nil {
			u.log.Warn().Interface("panic", r).Msg("scoring bonus panicked")
			bonus = 0
		}
	}()
	return u.handler.ScoringBonus(query)
}

func (u *unit) confidenceBonus(query, response string) (bonus float64) {
	defer func() {
		if r := recover(); r != nil {
			u.log.Warn().Interface("panic", r).Msg("confidence bonus panicked")
			bonus = 0
		}
	}()
	return u.handler.ConfidenceBonus(query, response)
}

func (u *unit) snapshot() HandlerStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

func (u *unit) cacheSize() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cache.Len()
}

// clear empties the cache and returns the number of entries removed.
func (u *unit) clear() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cache.Purge()
}

// status builds the handler's status entry. Health failures and panics
// yield a degraded entry instead of aborting the report.
func (u *unit) status(ctx context.Context) (st HandlerStatus) {
	st.Name = u.name
	st.Specialization = u.specialization

	defer func() {
		if r := recover(); r != nil {
			st.Degraded = true
			st.Error = fmt.Sprintf("status panicked: %v", r)
		}
	}()

	st.HandlerStats = u.snapshot()
	st.CacheSize = u.cacheSize()
	st.Breaker = "disabled"
	if u.breaker != nil {
		st.Breaker = u.breaker.State().String()
	}

	if hc, ok := u.handler.(HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			st.Degraded = true
			st.Error = err.Error()
		}
	}
	return st
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
