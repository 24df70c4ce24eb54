// Package bus distributes dispatch events to in-process subscribers and
// websocket clients. It keeps a bounded history so late subscribers can
// replay recent activity.
package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/normanking/switchboard/internal/dispatch"
)

// EventType names the kind of event flowing through the bus.
type EventType string

const (
	// Dispatch outcomes
	EventDispatchCompleted EventType = "dispatch.completed"
	EventDispatchFailed    EventType = "dispatch.failed"
	EventDispatchNoMatch   EventType = "dispatch.no_match"

	// Maintenance
	EventCacheCleared   EventType = "cache.cleared"
	EventBreakerChanged EventType = "breaker.changed"

	// Persisted answers served without dispatching
	EventResponseRecalled EventType = "response.recalled"
)

// EventTypes lists every event type the bus carries.
func EventTypes() []EventType {
	return []EventType{
		EventDispatchCompleted,
		EventDispatchFailed,
		EventDispatchNoMatch,
		EventCacheCleared,
		EventBreakerChanged,
		EventResponseRecalled,
	}
}

// Event is a single notification on the bus.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Dispatch details
	RequestID  string  `json:"request_id,omitempty"`
	Query      string  `json:"query,omitempty"`
	Handler    string  `json:"handler,omitempty"`
	Cached     bool    `json:"cached,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	LatencyMs  float64 `json:"latency_ms,omitempty"`

	// Breaker transitions
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Cache maintenance
	Cleared int `json:"cleared,omitempty"`

	Error string `json:"error,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// ResultEvent converts a dispatch result into the matching event.
func ResultEvent(res dispatch.Result) Event {
	var e Event
	switch {
	case !res.Matched():
		e = NewEvent(EventDispatchNoMatch)
	case res.Failed():
		e = NewEvent(EventDispatchFailed)
	default:
		e = NewEvent(EventDispatchCompleted)
	}
	e.RequestID = res.RequestID
	e.Query = res.Query
	e.Handler = res.Handler
	e.Cached = res.Cached
	e.Confidence = res.Confidence
	e.LatencyMs = res.LatencyMs
	e.Error = res.Error
	return e
}
