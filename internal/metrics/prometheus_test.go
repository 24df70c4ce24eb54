package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/switchboard/internal/bus"
)

func event(typ bus.EventType, handler string, mutate func(*bus.Event)) bus.Event {
	e := bus.NewEvent(typ)
	e.Handler = handler
	if mutate != nil {
		mutate(&e)
	}
	return e
}

func TestPrometheus_Observe(t *testing.T) {
	p := NewPrometheus()

	p.Observe(event(bus.EventDispatchCompleted, "Math", func(e *bus.Event) { e.LatencyMs = 12; e.Confidence = 0.9 }))
	p.Observe(event(bus.EventDispatchCompleted, "Math", func(e *bus.Event) { e.Cached = true; e.Confidence = 1 }))
	p.Observe(event(bus.EventDispatchFailed, "System", nil))
	p.Observe(event(bus.EventDispatchNoMatch, "Dispatcher", nil))
	p.Observe(event(bus.EventCacheCleared, "", func(e *bus.Event) { e.Cleared = 7 }))
	p.Observe(event(bus.EventBreakerChanged, "System", func(e *bus.Event) { e.To = "open" }))
	p.Observe(event(bus.EventResponseRecalled, "Math", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.requests.WithLabelValues("Math", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("System", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("Dispatcher", "no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheHits.WithLabelValues("Math")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheClears))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.cleared))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.breakers.WithLabelValues("System", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.recalled))
	assert.Equal(t, 1, testutil.CollectAndCount(p.latency))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.Observe(event(bus.EventDispatchCompleted, "Math", func(e *bus.Event) { e.LatencyMs = 3 }))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `switchboard_dispatch_requests_total{handler="Math",outcome="ok"} 1`)
	assert.Contains(t, string(body), "switchboard_dispatch_latency_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
