// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/edgelab/internal/analysis"
	apihandler "github.com/newthinker/edgelab/internal/api/handler/api"
	"github.com/newthinker/edgelab/internal/api/job"
	"github.com/newthinker/edgelab/internal/api/response"
	"github.com/newthinker/edgelab/internal/metrics"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"github.com/newthinker/edgelab/internal/strategy"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for edgelab
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	MetricsPath string // empty disables the metrics endpoint
	MaxRunning  int
	JobTimeout  time.Duration
	Defaults    analysis.Options
}

// Dependencies holds the components the routes are served from.
type Dependencies struct {
	Runner     *analysis.Runner
	Jobs       *job.Store
	Strategies *strategy.Registry
	Store      archive.Storage   // optional
	Metrics    *metrics.Registry // optional
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Runner == nil || deps.Jobs == nil {
		return nil, fmt.Errorf("runner and job store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}
	handler = metrics.LoggingMiddleware(logger)(handler)

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	s.setupRoutes(cfg, deps)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	analyses := apihandler.NewAnalysisHandler(
		apihandler.HandlerConfig{
			Defaults:   cfg.Defaults,
			MaxRunning: cfg.MaxRunning,
			Timeout:    cfg.JobTimeout,
		},
		deps.Jobs, deps.Runner, deps.Store, deps.Metrics, s.logger,
	)

	s.mux.HandleFunc("POST /api/v1/analyses", analyses.Create)
	s.mux.HandleFunc("GET /api/v1/analyses", analyses.List)
	s.mux.HandleFunc("GET /api/v1/analyses/{id}", analyses.Get)
	s.mux.HandleFunc("GET /api/v1/strategies", s.handleStrategies(deps.Strategies))
	s.mux.HandleFunc("GET /api/v1/results", analyses.Results)
	s.mux.HandleFunc("GET /api/health", s.handleHealth(deps.Jobs))

	if cfg.MetricsPath != "" && deps.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(jobs *job.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"active_jobs": jobs.Active(),
		})
	}
}

func (s *Server) handleStrategies(reg *strategy.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []map[string]string{}
		if reg != nil {
			for _, name := range reg.Names() {
				st, _ := reg.Get(name)
				out = append(out, map[string]string{
					"name":        name,
					"description": st.Description(),
				})
			}
		}
		response.JSON(w, http.StatusOK, out)
	}
}
