// Package queryserver exposes the orchestrator's read-only query
// surface over HTTP: agent balances, queue sizes, transaction lookup,
// accumulated costs, and both a point-in-time and a live SSE view of
// the event log.
//
// The middleware chain (setupMiddleware), CORS policy shape, and
// request-logging middleware all wrap a zerolog.Logger.
package queryserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/txn"
)

// Orchestrator is the read-only surface this server binds to HTTP
// routes — exactly orchestrator.Orchestrator's query-getter set
//, named here as an interface so this package doesn't
// need a compile-time dependency on the rest of the orchestrator.
type Orchestrator interface {
	GetAgentBalance(agentID string) (money.Cents, bool)
	GetQueue1Size(agentID string) (int, bool)
	GetQueue2Size() int
	GetTransaction(txID string) (*txn.Transaction, bool)
	GetAgentAccumulatedCosts(agentID string) (money.Cents, bool)
	GetTickEvents(tick int64) []events.Record
}

// HealthChecker reports process and event-store health for GET /health.
type HealthChecker interface {
	Check() (healthy bool, detail map[string]interface{})
}

// Server wraps a chi.Mux bound to one running simulation's query
// surface.
type Server struct {
	router *chi.Mux
	http   *http.Server
	log    zerolog.Logger

	orch    Orchestrator
	health  HealthChecker
	stream  *StreamHandler
	devMode bool
}

// Config configures a new Server.
type Config struct {
	Log     zerolog.Logger
	Addr    string
	Orch    Orchestrator
	Health  HealthChecker
	Stream  *StreamHandler
	DevMode bool
}

// New builds a Server with its middleware chain wired and the query
// routes bound.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "query_server").Logger(),
		orch:    cfg.Orch,
		health:  cfg.Health,
		stream:  cfg.Stream,
		devMode: cfg.DevMode,
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // the SSE stream route needs to hold the connection open
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/agents/{id}/balance", s.handleAgentBalance)
		r.Get("/agents/{id}/queue1", s.handleQueue1Size)
		r.Get("/queue2", s.handleQueue2Size)
		r.Get("/transactions/{txID}", s.handleTransaction)
		r.Get("/agents/{id}/costs", s.handleAgentCosts)
		r.Get("/ticks/{tick}/events", s.handleTickEvents)
		if s.stream != nil {
			r.Get("/events/stream", s.stream.ServeHTTP)
		}
	})
}

// loggingMiddleware logs every HTTP request: method, path, status,
// latency, and the chi request ID.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is
// called or an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
