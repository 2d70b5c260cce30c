package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Server provides HTTP endpoints for Prometheus metrics and health checks.
type Server struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	ready    atomic.Bool
}

// NewServer creates a new metrics server exposing gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger,
	}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)

	// Ready once the kernel has booted
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/readyz", s.readyHandler)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "booting")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// SetReady marks the server ready.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start binds the listen address and serves in a goroutine.
// Returns once the socket is bound. Use Shutdown to stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	s.logger.Info("metrics_server_starting", "addr", s.addr)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address. After Start it is the bound address.
func (s *Server) Addr() string {
	return s.addr
}

// WriteText writes every metric family in gatherer in the Prometheus text
// exposition format.
func WriteText(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
