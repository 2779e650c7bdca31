package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"checkinbot/internal/dashboard"
	"checkinbot/internal/logger"
	"checkinbot/internal/storage"

	"go.uber.org/zap"
)

// Server exposes liveness, the last poll cycle and the ledger report.
type Server struct {
	store      storage.Storage
	options    dashboard.Options
	httpServer *http.Server
}

func NewServer(addr string, store storage.Storage, options dashboard.Options) *Server {
	s := &Server{
		store:   store,
		options: options,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/report", s.handleReport)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      withLogging(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks until the server is shut down or fails.
func (s *Server) Start() error {
	logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("check-in bot is alive\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "running",
		"dry_run":   s.options.DryRun,
		"timestamp": time.Now().UTC(),
	}
	if s.options.Heartbeat != nil {
		resp["last_cycle"] = s.options.Heartbeat.Heartbeat()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := dashboard.Build(r.Context(), s.store, s.options)

	status := http.StatusOK
	if report.Health.Status == dashboard.StatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report.Health)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.Build(r.Context(), s.store, s.options))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("http: cannot encode response", zap.Error(err))
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
