// Package dispatch selects, runs and memoizes specialised query handlers.
// A Dispatcher keeps an ordered set of handlers, scores the ones able to
// answer a query, runs the winner through a cached execution wrapper and
// annotates the response with a confidence heuristic.
package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DispatcherName is the handler identity reported when no handler matched.
	DispatcherName = "Dispatcher"

	// NoHandlerResponse is the fixed response returned when no handler matched.
	NoHandlerResponse = "No specialised handler matched this query. Try a more specific question."

	// DefaultFastLatencyMs is the average latency under which a handler earns
	// the fast-response scoring bonus.
	DefaultFastLatencyMs = 100.0

	// ConfidentLatencyMs is the latency under which a response earns the
	// fast-response confidence bonus.
	ConfidentLatencyMs = 50.0
)

// Result is the annotated outcome of a single Dispatch call.
type Result struct {
	// RequestID uniquely identifies this dispatch.
	RequestID string `json:"request_id"`

	// Query is the raw query as submitted.
	Query string `json:"query"`

	// Response is the handler's answer, the no-handler text or a failure description.
	Response string `json:"response"`

	// Handler is the name of the handler that produced the response,
	// or DispatcherName when none matched.
	Handler string `json:"handler"`

	// Cached reports whether the response came from the handler's cache.
	Cached bool `json:"cached"`

	// LatencyMs is the processing time in milliseconds (0 for cache hits).
	LatencyMs float64 `json:"latency_ms"`

	// Confidence is the heuristic trust score in [0, 1].
	Confidence float64 `json:"confidence"`

	// Error holds the handler failure, if any.
	Error string `json:"error,omitempty"`
}

// Matched reports whether a handler was selected for the query.
func (r Result) Matched() bool {
	return r.Handler != DispatcherName
}

// Failed reports whether the selected handler failed.
func (r Result) Failed() bool {
	return r.Error != ""
}

// HandlerInfo identifies a registered handler.
type HandlerInfo struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

// String returns "Name (specialization)".
func (i HandlerInfo) String() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.Specialization)
}

// HandlerStats are the per-handler performance counters.
type HandlerStats struct {
	// Requests counts Process invocations that succeeded.
	Requests int64 `json:"requests"`

	// CacheHits counts responses served from the handler's cache.
	CacheHits int64 `json:"cache_hits"`

	// Failures counts Process invocations that errored, panicked or timed
	// out. Calls abandoned by a cancelled caller are not counted.
	Failures int64 `json:"failures"`

	// AvgLatencyMs is the running average latency of successful Process calls.
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// CacheHitRatio returns CacheHits / Requests, or 0 before the first request.
func (s HandlerStats) CacheHitRatio() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.Requests)
}

// HandlerStatus is a per-handler entry of the registry status report.
type HandlerStatus struct {
	HandlerInfo
	HandlerStats

	CacheSize int    `json:"cache_size"`
	Breaker   string `json:"breaker"`

	// Degraded is set when the handler's health or introspection failed.
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary is the aggregate usage report of a Dispatcher.
type Summary struct {
	TotalRequests int64            `json:"total_requests"`
	Usage         map[string]int64 `json:"usage"`
	NoMatch       int64            `json:"no_match"`
	Failures      int64            `json:"failures"`
	CacheHits     int64            `json:"cache_hits"`
	AvgLatencyMs  float64          `json:"avg_latency_ms"`
}

// CacheHitRate returns the share of dispatches served from a handler cache.
func (s Summary) CacheHitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalRequests)
}

// UsageShare returns the percentage of total requests routed to name.
func (s Summary) UsageShare(name string) float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.Usage[name]) / float64(s.TotalRequests) * 100
}

// String renders the summary as a short multi-line report.
func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total requests: %d\n", s.TotalRequests)
	fmt.Fprintf(&sb, "Average latency: %.1fms\n", s.AvgLatencyMs)
	fmt.Fprintf(&sb, "Cache hit rate: %.1f%%\n", s.CacheHitRate()*100)
	if s.NoMatch > 0 {
		fmt.Fprintf(&sb, "Unmatched: %d\n", s.NoMatch)
	}
	if s.Failures > 0 {
		fmt.Fprintf(&sb, "Failures: %d\n", s.Failures)
	}

	names := make([]string, 0, len(s.Usage))
	for name := range s.Usage {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("Handler usage:")
	for _, name := range names {
		fmt.Fprintf(&sb, "\n  - %s: %d (%.1f%%)", name, s.Usage[name], s.UsageShare(name))
	}
	return sb.String()
}
