package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/normanking/switchboard/internal/assistant"
	"github.com/normanking/switchboard/internal/dispatch"
)

const maxRequestBodySize = 64 << 10

// QueryRequest is the body of /api/ask and /api/dispatch.
type QueryRequest struct {
	Query string `json:"query"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Uptime    string `json:"uptime"`
	Handlers  int    `json:"handlers"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SummaryResponse is the /api/summary body.
type SummaryResponse struct {
	dispatch.Summary
	CacheHitRate float64            `json:"cache_hit_rate"`
	UsageShare   map[string]float64 `json:"usage_share"`
	Text         string             `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func readQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req QueryRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return "", false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return "", false
	}
	return req.Query, true
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   s.deps.Version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Handlers:  len(s.deps.Registry.Handlers()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// POST /api/ask
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	q, ok := readQuery(w, r)
	if !ok {
		return
	}
	reply, err := s.deps.Assistant.Ask(r.Context(), q)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// POST /api/dispatch bypasses small talk and the response store.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	q, ok := readQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Registry.Dispatch(r.Context(), q))
}

// GET /api/handlers
func (s *Server) handleHandlers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.Handlers())
}

// GET /api/handlers/{name}
func (s *Server) handleHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, st := range s.deps.Registry.Status(r.Context()) {
		if strings.EqualFold(st.Name, name) {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, http.StatusNotFound, "handler not found")
}

// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.Status(r.Context()))
}

// GET /api/summary
func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	sum := s.deps.Registry.Summary()
	share := make(map[string]float64, len(sum.Usage))
	for name := range sum.Usage {
		share[name] = sum.UsageShare(name)
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		Summary:      sum,
		CacheHitRate: sum.CacheHitRate(),
		UsageShare:   share,
		Text:         sum.String(),
	})
}

// POST /api/cache/clear
func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	cleared := s.deps.Registry.ClearCaches()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// POST /api/breakers/reset
func (s *Server) handleBreakersReset(w http.ResponseWriter, _ *http.Request) {
	s.deps.Registry.ResetBreakers()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/responses
func (s *Server) handleResponsesCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Assistant.Remembered(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// DELETE /api/responses
func (s *Server) handleResponsesForget(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Assistant.ForgetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

// GET /api/stats?since=24h
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid since duration")
			return
		}
		window = d
	}
	stats, err := s.deps.Stats.HandlerStats(r.Context(), time.Now().Add(-window))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/stats/daily?days=7
func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}
	stats, err := s.deps.Stats.DailyStats(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
