// Package telemetry reports EnhancedErrors to Sentry. Reporting is opt-in and
// events are stripped of host, user and path information before sending.
package telemetry

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/anprfile/lpr-ingest/internal/conf"
	"github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

// DefaultFlushTimeout bounds Close.
const DefaultFlushTimeout = 2 * time.Second

// Option configures Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// WithHTTPTransport keeps the default Sentry transport but sends its
// requests through rt.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(o *sentry.ClientOptions) { o.HTTPTransport = rt }
}

// WithRelease sets the release tag.
func WithRelease(version string) Option {
	return func(o *sentry.ClientOptions) { o.Release = "lpr-ingest@" + version }
}

// Init initializes Sentry and installs the error reporter. It returns a nil
// Reporter and no error when telemetry is disabled.
func Init(settings *conf.SentrySettings, opts ...Option) (*Reporter, error) {
	log := getLogger()
	if !settings.Enabled {
		log.Debug("sentry telemetry is disabled")
		return nil, nil
	}

	options := sentry.ClientOptions{
		Dsn:              settings.DSN,
		Environment:      settings.Environment,
		Debug:            settings.Debug,
		SampleRate:       1.0,
		AttachStacktrace: false,
		ServerName:       "",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	r := &Reporter{hub: hub}
	r.enabled.Store(true)
	errors.SetTelemetryReporter(r)

	log.Info("sentry telemetry enabled", logger.String("environment", settings.Environment))
	return r, nil
}

// applyPrivacyFilters removes host identity and free-form context.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" && k != "operation" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = errors.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

func getLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
