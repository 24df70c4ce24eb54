// Package server exposes the dispatcher over HTTP: a JSON API, a query
// websocket, the bus event stream and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/switchboard/internal/assistant"
	"github.com/normanking/switchboard/internal/dispatch"
	"github.com/normanking/switchboard/internal/logging"
	"github.com/normanking/switchboard/internal/metrics"
)

// Registry is the dispatcher surface the API needs.
type Registry interface {
	Dispatch(ctx context.Context, query string) dispatch.Result
	Handlers() []dispatch.HandlerInfo
	Status(ctx context.Context) []dispatch.HandlerStatus
	Summary() dispatch.Summary
	ClearCaches() int
	ResetBreakers()
}

// Asker answers conversational queries and manages remembered answers.
type Asker interface {
	Ask(ctx context.Context, query string) (assistant.Reply, error)
	ForgetAll(ctx context.Context) (int64, error)
	Remembered(ctx context.Context) (int64, error)
}

// Deps are the components served. Registry and Assistant are required;
// a nil Stats, Metrics or Events disables the corresponding routes.
type Deps struct {
	Registry  Registry
	Assistant Asker
	Stats     *metrics.Store
	Metrics   *metrics.Prometheus
	Events    http.Handler
	Health    func(ctx context.Context) error
	Version   string
}

// Server is the HTTP front end.
type Server struct {
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startTime  time.Time
	log        zerolog.Logger
}

// New creates a server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{
		deps:      deps,
		startTime: time.Now(),
		log:       logging.For("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()

	// WriteTimeout stays zero for the websocket routes.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/dispatch", s.handleDispatch)
		r.Get("/handlers", s.handleHandlers)
		r.Get("/handlers/{name}", s.handleHandler)
		r.Get("/status", s.handleStatus)
		r.Get("/summary", s.handleSummary)
		r.Post("/cache/clear", s.handleCacheClear)
		r.Post("/breakers/reset", s.handleBreakersReset)
		r.Get("/responses", s.handleResponsesCount)
		r.Delete("/responses", s.handleResponsesForget)
		if s.deps.Stats != nil {
			r.Get("/stats", s.handleStats)
			r.Get("/stats/daily", s.handleDailyStats)
		}
	})

	r.Get("/ws", s.handleQuerySocket)
	if s.deps.Events != nil {
		r.Handle("/events", s.deps.Events)
	}
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server starting")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
