// Package transport builds the outbound HTTP client used for the storefront API.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Fingerprint names accepted by Options.Fingerprint.
const (
	FingerprintGo     = "go"
	FingerprintChrome = "chrome"
)

// Options configures NewClient.
type Options struct {
	Timeout     time.Duration
	Fingerprint string // "go" (default) or "chrome"
	Breaker     bool
	Settings    BreakerSettings // zero value uses DefaultBreakerSettings
	Logger      *slog.Logger
}

// NewClient assembles base transport → circuit breaker → otel spans.
// Spans sit outermost so a breaker rejection still shows up in traces.
func NewClient(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var rt http.RoundTripper
	if opts.Fingerprint == FingerprintChrome {
		rt = NewChromeTransport(opts.Timeout)
	} else {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	if opts.Breaker {
		settings := opts.Settings
		if settings.Name == "" {
			settings = DefaultBreakerSettings()
		}
		rt = NewBreakerTransport(rt, settings, opts.Logger)
	}

	rt = otelhttp.NewTransport(rt,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}
