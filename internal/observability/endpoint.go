package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/anprfile/lpr-ingest/internal/conf"
	internalerrors "github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/logger"
	metricspkg "github.com/anprfile/lpr-ingest/internal/observability/metrics"
)

const readHeaderTimeout = 5 * time.Second

// Endpoint serves /metrics and /healthz over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates the metrics endpoint. It fails if metrics are disabled
// in settings.
func NewEndpoint(settings *conf.MetricsSettings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, internalerrors.Newf("metrics endpoint not enabled in settings").
			Component("observability").
			Category(internalerrors.CategoryConfiguration).
			Build()
	}

	e := &Endpoint{
		listenAddress: settings.Listen,
		metrics:       metrics,
	}
	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           e.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return e, nil
}

// Handler returns the endpoint's routes.
func (e *Endpoint) Handler() http.Handler {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.Use(middleware.Recover())

	router.GET("/metrics", echo.WrapHandler(e.metrics.Handler()))
	router.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok\n")
	})
	return router
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return internalerrors.New(err).
			Component("observability").
			Category(internalerrors.CategoryNetwork).
			Context("listen", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	log := getLogger()
	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		errCh <- e.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return internalerrors.New(err).
			Component("observability").
			Category(internalerrors.CategoryNetwork).
			Build()
	case <-ctx.Done():
	}

	log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
