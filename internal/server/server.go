// Package server exposes the analysis service over HTTP.
//
// Routes:
//
//	POST /v1/analyze   raw audio body, Content-Type names the encoding
//	POST /v1/score     JSON transcript plus optional acoustic summary
//	GET  /v1/stream    WebSocket live extraction
//	GET  /v1/streams   open live streams
//	GET  /healthz      liveness
//	GET  /readyz       readiness
//	GET  /metrics      Prometheus exposition
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/cadence/internal/analysis"
	"github.com/MrWong99/cadence/internal/health"
	"github.com/MrWong99/cadence/internal/observe"
)

// Config holds the transport limits.
type Config struct {
	// MaxUploadBytes caps request bodies. Default: 25 MiB.
	MaxUploadBytes int64

	// RequestTimeout bounds /v1/analyze and /v1/score. Zero disables it.
	RequestTimeout time.Duration

	// StreamIdleTimeout closes a live stream that sends nothing for this
	// long. Default: 30s.
	StreamIdleTimeout time.Duration
}

// Server routes HTTP requests to an [analysis.Service].
type Server struct {
	svc     *analysis.Service
	health  *health.Handler
	metrics *observe.Metrics
	cfg     Config
	scrape  http.Handler
	handler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// WithMetrics replaces [observe.DefaultMetrics] for the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the route table.
func New(svc *analysis.Service, hc *health.Handler, cfg Config, opts ...Option) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = 30 * time.Second
	}
	s := &Server{svc: svc, health: hc, cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/score", s.handleScore)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/streams", s.handleStreams)
	hc.Register(mux)
	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape)
	}
	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then drains for up
// to shutdownTimeout. certFile and keyFile enable TLS when both are set.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	observe.Logger(ctx).Info("http server listening", "addr", addr, "tls", certFile != "")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	s.health.SetDraining(true)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
