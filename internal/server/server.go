// Package server exposes a small read-only HTTP view of the pipeline state:
// the last processed commit and the recent run history. It never triggers
// anything; the pipeline only runs through the CLI.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/krislette/gl-jenkins-tem/internal/tracker"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 30 * time.Second

	// GlobalRateLimit is requests per minute per client
	GlobalRateLimit = 60

	// historyLimit caps the run history returned by /status
	historyLimit = 20
)

// StatusStore is the tracker surface the server reads from.
type StatusStore interface {
	LastProcessed(ctx context.Context) string
	LatestRun(ctx context.Context) (*tracker.RunRecord, error)
	RunHistory(ctx context.Context, limit int) ([]tracker.RunRecord, error)
}

// Server serves the pipeline status endpoints.
type Server struct {
	Store    StatusStore
	Logger   *slog.Logger
	TestMode bool
}

// NewServer creates a status server over the tracker.
func NewServer(store StatusStore, logger *slog.Logger, testMode bool) *Server {
	return &Server{Store: store, Logger: logger, TestMode: testMode}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.HandleHealth)
	r.Get("/status", s.HandleStatus)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting status server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}
