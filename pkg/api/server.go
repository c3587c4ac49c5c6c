package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/docmill/docmill/pkg/config"
	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/health"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/metrics"
	"github.com/docmill/docmill/pkg/objectstore"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/scheduler"
	"github.com/docmill/docmill/pkg/storage"
)

// Options carries the collaborators the HTTP facade is built on. Config,
// Store, and Fabric are required; Scheduler may be nil until the pipeline
// is wired, in which case the endpoints that report on it return 503.
type Options struct {
	Config    *config.Config
	Store     storage.Store
	Scheduler *scheduler.Scheduler
	Fabric    *queue.Fabric
	// Artifacts serves /api/download streams; it must reach the bucket
	// the conversion workers upload into.
	Artifacts objectstore.Gateway
	Broker    *events.Broker
	// Checks are probed by /api/health, keyed by the name reported in
	// the response.
	Checks map[string]health.Checker
}

// Server is the REST facade over the task store and scheduler. All task
// state lives in the store; the server never caches task rows.
type Server struct {
	cfg       *config.Config
	store     storage.Store
	sched     *scheduler.Scheduler
	fabric    *queue.Fabric
	artifacts objectstore.Gateway
	broker    *events.Broker
	checks    map[string]health.Checker

	router  *chi.Mux
	httpSrv *http.Server
	logger  zerolog.Logger
}

// NewServer assembles the router and handlers. Call Start to serve.
func NewServer(opts Options) *Server {
	if opts.Broker == nil {
		opts.Broker = events.NewBroker()
	}
	s := &Server{
		cfg:       opts.Config,
		store:     opts.Store,
		sched:     opts.Scheduler,
		fabric:    opts.Fabric,
		artifacts: opts.Artifacts,
		broker:    opts.Broker,
		checks:    opts.Checks,
		logger:    log.WithComponent("api"),
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestMetrics)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/tasks/create", s.createTask)
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)
		r.Post("/tasks/{id}/retry", s.retryTask)
		r.Post("/tasks/retry-failed", s.retryFailed)
		r.Put("/tasks/{id}/task-type", s.updateTaskType)
		r.Get("/statistics", s.statistics)
		r.Get("/health", s.healthCheck)
		r.Get("/download/{id}/{filename}", s.downloadArtifact)
	})
	s.router.Handle("/metrics", metrics.Handler())

	// Process-level probes fed by the component health registry. The
	// detailed report with live dependency checks is /api/health.
	s.router.Get("/health", metrics.HealthHandler())
	s.router.Get("/ready", metrics.ReadyHandler())
	s.router.Get("/live", metrics.LivenessHandler())
}

// Handler exposes the routing table; tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP on the configured listen address and blocks until
// Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Long enough to stream a converted artifact to a slow client.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metrics.RegisterComponent("api", true, "")
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("API server listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		metrics.UpdateComponent("api", false, err.Error())
		return fmt.Errorf("failed to serve API: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// to finish, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info().Msg("API server shutting down")
	metrics.UpdateComponent("api", false, "stopped")
	return s.httpSrv.Shutdown(ctx)
}

// requestMetrics records the request counter and latency histogram for
// every route, including 404s.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, errorResponse{Error: fmt.Sprintf(format, args...)})
}
