package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("storefront api unavailable (circuit open)")

// errServerFault marks a 5xx so the breaker counts it; the response itself is still returned.
var errServerFault = errors.New("server fault")

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32        // trips after this many failures in a row
	OpenTimeout         time.Duration // how long to reject before probing again
}

// DefaultBreakerSettings trips after 5 consecutive failures and probes again after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "storefront-api",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// NewBreakerTransport wraps next with a circuit breaker. Transport errors and
// 5xx responses count as failures; 4xx responses are the caller's problem and
// count as successes. Nothing is retried.
func NewBreakerTransport(next http.RoundTripper, settings BreakerSettings, logger *slog.Logger) http.RoundTripper {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    settings.Name,
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &breakerTransport{next: next, cb: cb}
}

type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerFault
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, errServerFault):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return resp, err
}
