package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// Server serves /metrics over HTTP.
type Server struct {
	addr    string
	metrics *Metrics
	log     *slog.Logger
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, m *Metrics, log *slog.Logger) *Server {
	return &Server{addr: addr, metrics: m, log: log}
}

// Handler returns the HTTP handler serving /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.log.Error("metrics server shutdown", "error", err)
		}
	}()

	s.log.Info("metrics server started", "address", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	s.log.Info("metrics server stopped")
	return nil
}
