package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/certmigrate/internal/logger"
	metricspkg "github.com/tphakala/certmigrate/internal/observability/metrics"
)

// Endpoint serves /metrics while a run is in progress.
type Endpoint struct {
	server        *http.Server
	listener      net.Listener
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
	wg            sync.WaitGroup
}

// NewEndpoint creates an endpoint for the given listen address. Start binds it.
func NewEndpoint(listenAddress string, metrics *Metrics, log logger.Logger) (*Endpoint, error) {
	if listenAddress == "" {
		return nil, errors.New("metrics listen address is empty")
	}
	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
		log:           log.Module("metrics"),
	}, nil
}

// Start binds the listener and serves in the background. The server stops
// when ctx is cancelled or Shutdown is called.
func (e *Endpoint) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}
	e.listener = ln
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	e.wg.Go(func() {
		e.log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics HTTP server error", logger.Error(err))
		}
	})

	go func() {
		<-ctx.Done()
		e.Shutdown()
	}()
	return nil
}

// Addr returns the bound address, useful when listening on :0
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return e.listenAddress
	}
	return e.listener.Addr().String()
}

// Shutdown stops the server and waits for the serve goroutine
func (e *Endpoint) Shutdown() {
	if e.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Error("metrics server shutdown error", logger.Error(err))
	}
	e.wg.Wait()
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
