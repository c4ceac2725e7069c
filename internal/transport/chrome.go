package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Storefronts behind bot-management CDNs throttle Go's TLS hello by its JA3
// hash. The Chrome transport dials with uTLS (HelloChrome_Auto) instead and
// speaks whatever ALPN picks: x/net/http2 for h2, net/http for http/1.1.

// errNoH2 is returned by the h2 dialer when the peer chose another protocol.
// No request bytes have been written at that point, so falling back is safe.
var errNoH2 = errors.New("peer did not negotiate h2")

type chromeTransport struct {
	dialer *net.Dialer
	h2     http.RoundTripper
	h1     http.RoundTripper
	plain  http.RoundTripper

	mu    sync.Mutex
	http1 map[string]bool // host:port that answered ALPN with http/1.1
}

// NewChromeTransport returns a RoundTripper presenting Chrome's TLS fingerprint.
// Plain-http targets (local dev storefronts) bypass it.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	t := &chromeTransport{
		dialer: &net.Dialer{Timeout: timeout},
		plain:  http.DefaultTransport,
		http1:  make(map[string]bool),
	}
	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, err := t.dial(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
				conn.Close()
				t.markHTTP1(addr)
				return nil, errNoH2
			}
			return conn, nil
		},
	}
	t.h1 = &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dial(ctx, network, addr)
		},
		TLSHandshakeTimeout: timeout,
		MaxIdleConnsPerHost: 4,
	}
	return t
}

// RoundTrip sends over h2 unless the host is known to speak only HTTP/1.1.
// An h2 failure after the connection is up is returned as is: replaying a
// cart mutation on another protocol could apply it twice.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}
	addr := authority(req.URL)
	if t.prefersHTTP1(addr) {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err != nil && (errors.Is(err, errNoH2) || t.prefersHTTP1(addr)) {
		return t.h1.RoundTrip(req)
	}
	return resp, err
}

func (t *chromeTransport) markHTTP1(addr string) {
	t.mu.Lock()
	t.http1[addr] = true
	t.mu.Unlock()
}

func (t *chromeTransport) prefersHTTP1(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.http1[addr]
}

func (t *chromeTransport) dial(ctx context.Context, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return tlsConn, nil
}

// authority is the host:port key the dialers see for u.
func authority(u *url.URL) string {
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}
	return net.JoinHostPort(u.Hostname(), "443")
}
