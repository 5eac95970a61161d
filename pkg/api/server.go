// Package api serves the hybrid router over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/router"
)

const (
	requestTimeout  = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
	maxBodyBytes    = 64 << 10
)

// Server exposes routing, health, reprobe and metrics endpoints.
type Server struct {
	router   *router.HybridRouter
	holder   *fallback.Holder
	gatherer prometheus.Gatherer
	limiter  *clientLimiter
	port     int
	logger   zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHolder enables provider listing in health and the reprobe endpoint.
func WithHolder(h *fallback.Holder) Option {
	return func(s *Server) { s.holder = h }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithRateLimit caps route requests per client per minute. Non-positive
// values disable limiting.
func WithRateLimit(rpm int) Option {
	return func(s *Server) {
		if rpm > 0 {
			s.limiter = newClientLimiter(rpm)
		}
	}
}

// WithPort sets the listen port.
func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server around rt.
func NewServer(rt *router.HybridRouter, opts ...Option) *Server {
	s := &Server{
		router: rt,
		port:   8080,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with all middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/rules", s.handleRules)
		r.With(s.rateLimitMiddleware).Post("/route", s.handleRoute)
		r.Post("/providers/reprobe", s.handleReprobe)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.port).Msg("starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()

		next.ServeHTTP(ww, r)
	})
}
