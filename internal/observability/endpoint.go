package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/shmaudio/internal/conf"
	"github.com/tphakala/shmaudio/internal/logger"
	metricspkg "github.com/tphakala/shmaudio/internal/observability/metrics"
)

// Endpoint serves Prometheus metrics over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint creates a new metrics Endpoint.
//
// It returns an error if telemetry is not enabled in the settings. The
// Metrics instance must be initialized by the caller.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}

	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
		log:           logger.Global().Module("observability"),
		server: &http.Server{
			Addr:              settings.Telemetry.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("telemetry listen on %s: %w", e.listenAddress, err)
	}
	return e.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	e.log.Info("telemetry endpoint starting", logger.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			e.log.Error("telemetry HTTP server error", logger.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	e.log.Info("stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.log.Error("telemetry server shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
