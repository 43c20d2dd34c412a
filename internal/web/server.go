// Package web serves the read-only status API: runs, their stages and
// jobs, and per-job command logs.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/matrixci/internal/observability"
	"github.com/example/matrixci/internal/service"
)

// Server is the status HTTP server.
type Server struct {
	addr     string
	handlers *Handlers
	logger   *zap.Logger
	mux      *http.ServeMux
	httpSrv  *http.Server
}

// NewServer creates a new status server.
func NewServer(addr string, orchestrator *service.OrchestratorService, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:     addr,
		handlers: NewHandlers(orchestrator, logger),
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.setupRoutes(metrics)
	return s
}

func (s *Server) setupRoutes(metrics *observability.Metrics) {
	// Trailing slash enables prefix matching for all /api/runs/* paths.
	s.mux.HandleFunc("/api/runs", s.corsMiddleware(s.requireGet(s.handlers.ListRuns)))
	s.mux.HandleFunc("/api/runs/", s.corsMiddleware(s.requireGet(s.routeRuns)))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if metrics != nil {
		s.mux.Handle("/metrics", metrics)
	}
}

// requireGet rejects every method but GET; the API is read-only.
func (s *Server) requireGet(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// routeRuns dispatches /api/runs/* requests by path shape.
func (s *Server) routeRuns(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	switch {
	case path == "":
		s.handlers.ListRuns(w, r)
	case strings.HasSuffix(path, "/log"):
		s.handlers.GetJobLog(w, r)
	default:
		s.handlers.GetRun(w, r)
	}
}

// corsMiddleware adds CORS headers to responses.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("status server listening", zap.String("addr", s.addr))
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}
