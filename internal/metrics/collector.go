package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/switchboard/internal/bus"
	"github.com/normanking/switchboard/internal/dispatch"
	"github.com/normanking/switchboard/internal/logging"
)

const recordTimeout = 5 * time.Second

// Collector subscribes to the bus and feeds Prometheus and the dispatch log.
type Collector struct {
	bus   *bus.Bus
	prom  *Prometheus
	store *Store
	log   zerolog.Logger

	mu           sync.RWMutex
	session      SessionStats
	recentEvents []bus.Event
	maxEvents    int
	subID        bus.SubscriptionID
	stopped      bool
}

// SessionStats summarises activity seen since the collector started.
type SessionStats struct {
	StartTime     time.Time
	Dispatches    int
	Failures      int
	Unmatched     int
	CacheHits     int
	Recalled      int
	CacheClears   int
	BreakerTrips  int
	LastEvent     string
	LastEventTime time.Time
}

// NewCollector creates a collector. prom and store may be nil.
func NewCollector(b *bus.Bus, prom *Prometheus, store *Store) *Collector {
	return &Collector{
		bus:       b,
		prom:      prom,
		store:     store,
		log:       logging.For("metrics"),
		session:   SessionStats{StartTime: time.Now()},
		maxEvents: 50,
	}
}

// Start subscribes to every bus event.
func (c *Collector) Start() {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.subID != "" {
		return
	}
	c.subID = c.bus.Subscribe("", c.handleEvent)
}

// Stop unsubscribes from the bus.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.subID != "" {
		_ = c.bus.Unsubscribe(c.subID)
		c.subID = ""
	}
}

// Session returns a copy of the session counters.
func (c *Collector) Session() SessionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// RecentEvents returns up to n of the most recent events, oldest first.
func (c *Collector) RecentEvents(n int) []bus.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.recentEvents) || n < 0 {
		n = len(c.recentEvents)
	}
	out := make([]bus.Event, n)
	copy(out, c.recentEvents[len(c.recentEvents)-n:])
	return out
}

func (c *Collector) handleEvent(e bus.Event) {
	if c.prom != nil {
		c.prom.Observe(e)
	}

	c.mu.Lock()
	c.recentEvents = append(c.recentEvents, e)
	if len(c.recentEvents) > c.maxEvents {
		c.recentEvents = c.recentEvents[1:]
	}
	c.session.LastEvent = string(e.Type)
	c.session.LastEventTime = e.Timestamp

	var outcome Outcome
	switch e.Type {
	case bus.EventDispatchCompleted:
		c.session.Dispatches++
		if e.Cached {
			c.session.CacheHits++
		}
		outcome = OutcomeOK
	case bus.EventDispatchFailed:
		c.session.Dispatches++
		c.session.Failures++
		outcome = OutcomeError
	case bus.EventDispatchNoMatch:
		c.session.Dispatches++
		c.session.Unmatched++
		outcome = OutcomeNoMatch
	case bus.EventResponseRecalled:
		c.session.Recalled++
	case bus.EventCacheCleared:
		c.session.CacheClears++
	case bus.EventBreakerChanged:
		if e.To == dispatch.CircuitOpen.String() {
			c.session.BreakerTrips++
		}
	}
	c.mu.Unlock()

	if outcome == "" || c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	err := c.store.Record(ctx, Record{
		RequestID:  e.RequestID,
		Handler:    e.Handler,
		Outcome:    outcome,
		Cached:     e.Cached,
		LatencyMs:  e.LatencyMs,
		Confidence: e.Confidence,
		Error:      e.Error,
		CreatedAt:  e.Timestamp,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("request_id", e.RequestID).Msg("dispatch not logged")
	}
}
