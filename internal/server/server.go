// Package server provides the observability endpoint served alongside a
// long optimization run: Prometheus metrics under /metrics and a JSON
// health probe under /healthz. The server is optional; it only runs when a
// listen address is configured.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qmsolve/mrscf/internal/logging"
)

// Server wraps the HTTP listener for the metrics endpoint.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
	gatherer   prometheus.Gatherer
	health     HealthFunc
	timeouts   Timeouts

	requests prometheus.Counter
}

// New creates a metrics server listening on addr. The gatherer is the
// registry the solver's observers write into; the same registry receives
// the server's own request counter.
//
// Parameters:
//   - addr: The listen address (e.g. ":9090").
//   - reg: The metrics registry served under /metrics.
//   - opts: Functional options (logger, timeouts, health source).
//
// Returns:
//   - *Server: The configured server; call Serve to run it.
func New(addr string, reg *prometheus.Registry, opts ...Option) *Server {
	s := &Server{
		logger:   logging.Nop{},
		gatherer: reg,
		health:   func() HealthStatus { return HealthStatus{Status: "ok"} },
		timeouts: DefaultTimeouts(),
		requests: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mrscf_http_requests_total",
			Help: "Number of requests served by the metrics endpoint.",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}
	return s
}

// Handler returns the server's route table, usable directly in tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)
	return s.counting(mux)
}

// counting wraps the route table with the request counter.
func (s *Server) counting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Inc()
		next.ServeHTTP(w, r)
	})
}

// Serve runs the listener until ctx is canceled, then shuts down
// gracefully within the configured shutdown timeout. A clean shutdown
// returns nil.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics endpoint listening", logging.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("metrics endpoint shutdown", err)
		return err
	}
	s.logger.Info("metrics endpoint stopped")
	return <-errCh
}
