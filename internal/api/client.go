// Package api is the HTTP client for the storefront REST API.
//
// Every call shares the same headers, the bearer session token, the
// {"data": ...} response envelope and the mapping from HTTP failures onto
// model.APIError codes. Resource clients (remote cart, catalog, account)
// build on Client instead of talking to net/http directly.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"storefront/internal/middleware"
	"storefront/internal/model"
)

const (
	userAgent   = "storefront-cart/1.0"
	serviceName = "storefront"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the storefront origin, e.g. https://shop.example.
	BaseURL string
	// Version selects the API prefix; "v1.4.0" → /api/v1.
	Version string
	// ClientToken, when set, is sent as X-Client-Token on every call.
	ClientToken string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client performs storefront API calls.
type Client struct {
	httpClient  *http.Client
	baseURL     string // origin + /api/vN, no trailing slash
	clientToken string
	logger      *slog.Logger

	mu             sync.RWMutex
	token          func() string
	onUnauthorized []func()
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	prefix, err := BasePath(cfg.Version)
	if err != nil {
		return nil, err
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		httpClient:  cfg.HTTPClient,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/") + prefix,
		clientToken: cfg.ClientToken,
		logger:      cfg.Logger,
		token:       func() string { return "" },
	}, nil
}

// BaseURL returns the versioned API root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetTokenSource installs the bearer token lookup, called once per request.
func (c *Client) SetTokenSource(fn func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = fn
}

// OnUnauthorized registers fn to run whenever the server rejects the session.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

// Data performs a call whose response is wrapped as {"data": ...} and decodes
// the inner value into result. result may be nil.
func (c *Client) Data(ctx context.Context, method, path string, body, result interface{}) error {
	if result == nil {
		return c.JSON(ctx, method, path, body, nil)
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.JSON(ctx, method, path, body, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return model.NewInternalError(fmt.Errorf("parsing %s %s data: %w", method, path, err))
	}
	return nil
}

// JSON performs a call and decodes the whole response body into result.
func (c *Client) JSON(ctx context.Context, method, path string, body, result interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("creating %s %s request: %w", method, path, err))
	}
	return c.do(req, result)
}

// newRequest creates a request with the storefront headers and, when a
// session exists, the bearer token.
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(path, "/"), bodyReader)
	if err != nil {
		return nil, err
	}

	requestID := middleware.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(middleware.RequestIDHeader, requestID)
	if c.clientToken != "" {
		req.Header.Set("X-Client-Token", c.clientToken)
	}

	c.mu.RLock()
	token := c.token()
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// do executes the request and decodes a success body into result.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewNetworkError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewNetworkError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		apiErr := parseError(resp, body)
		c.logger.DebugContext(req.Context(), "storefront call failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("code", apiErr.Code),
			slog.String("request_id", req.Header.Get(middleware.RequestIDHeader)),
		)
		// 403 is a permission problem, not a dead session.
		if apiErr.Code == model.CodeUnauthorized && resp.StatusCode != http.StatusForbidden {
			c.notifyUnauthorized()
		}
		return apiErr
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return model.NewInternalError(fmt.Errorf("parsing response: %w", err))
		}
	}
	return nil
}

func (c *Client) notifyUnauthorized() {
	c.mu.RLock()
	hooks := append([]func(){}, c.onUnauthorized...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}
