package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"storefront/internal/middleware"
	"storefront/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:    srv.URL,
		Version:    "v1.2.0",
		HTTPClient: srv.Client(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func TestBasePath(t *testing.T) {
	tests := []struct {
		version string
		want    string
		wantErr bool
	}{
		{"", "/api/v1", false},
		{"v1", "/api/v1", false},
		{"v1.4.0", "/api/v1", false},
		{"2.0", "/api/v2", false},
		{"latest", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := BasePath(tt.version)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BasePath(%q) error = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BasePath(%q) = %q, want %q", tt.version, got, tt.want)
			}
		})
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without base url")
	}
}

func TestClient_HeadersAndEnvelope(t *testing.T) {
	var got *http.Request
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":3,"product_id":9,"quantity":2,"product":{"id":9,"title":"Lamp","price":12.5}}]}`))
	})
	c.SetTokenSource(func() string { return "tok-123" })

	var lines []model.ServerLine
	if err := c.Data(context.Background(), http.MethodGet, "/cart", nil, &lines); err != nil {
		t.Fatalf("Data() error = %v", err)
	}

	if got.URL.Path != "/api/v1/cart" {
		t.Errorf("path = %s, want /api/v1/cart", got.URL.Path)
	}
	wantHeaders := map[string]string{
		"Accept":           "application/json",
		"Content-Type":     "application/json",
		"X-Requested-With": "XMLHttpRequest",
		"Authorization":    "Bearer tok-123",
	}
	for k, v := range wantHeaders {
		if got.Header.Get(k) != v {
			t.Errorf("header %s = %q, want %q", k, got.Header.Get(k), v)
		}
	}
	if _, err := uuid.Parse(got.Header.Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID %q is not a uuid", got.Header.Get("X-Request-ID"))
	}

	if len(lines) != 1 || lines[0].ID != 3 || lines[0].Product.Price.String() != "12.50" {
		t.Errorf("decoded lines = %+v", lines)
	}
}

func TestClient_NoAuthorizationWithoutToken(t *testing.T) {
	var auth string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.JSON(context.Background(), http.MethodPost, "/logout", nil, nil); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if auth != "" {
		t.Errorf("Authorization = %q, want none", auth)
	}
}

func TestClient_PropagatesRequestID(t *testing.T) {
	const id = "4a3c1e2f-9b1d-4f65-8f1c-7d0a3b2c1e00"
	var seen string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{"data":null}`))
	})

	ctx := middleware.WithRequestID(context.Background(), id)
	var out []model.ServerLine
	c.Data(ctx, http.MethodGet, "/cart", nil, &out)

	if seen != id {
		t.Errorf("X-Request-ID = %q, want %q", seen, id)
	}
}

func TestClient_SendsBody(t *testing.T) {
	var body map[string]int
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":1,"product_id":5,"quantity":2}}`))
	})

	var line model.ServerLine
	err := c.Data(context.Background(), http.MethodPost, "/cart", map[string]int{"product_id": 5, "quantity": 2}, &line)
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	if body["product_id"] != 5 || body["quantity"] != 2 {
		t.Errorf("server saw body %v", body)
	}
	if line.ID != 1 {
		t.Errorf("line.ID = %d, want 1", line.ID)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		body       string
		wantCode   string
		wantStatus int
		sentinel   error
	}{
		{
			name:       "validation with fields",
			status:     422,
			body:       `{"message":"The quantity field must be at least 1.","errors":{"quantity":["The quantity field must be at least 1."]}}`,
			wantCode:   model.CodeValidation,
			wantStatus: 422,
			sentinel:   model.ErrInvalidRequest,
		},
		{
			name:       "bad request",
			status:     400,
			body:       `{"message":"bad"}`,
			wantCode:   model.CodeValidation,
			wantStatus: 400,
			sentinel:   model.ErrInvalidRequest,
		},
		{"unauthorized", 401, nil, `{"message":"Unauthenticated."}`, model.CodeUnauthorized, 401, model.ErrUnauthorized},
		{"session expired", 419, nil, `{"message":"CSRF token mismatch."}`, model.CodeUnauthorized, 401, model.ErrUnauthorized},
		{"forbidden", 403, nil, `{}`, model.CodeUnauthorized, 403, model.ErrUnauthorized},
		{"not found", 404, nil, `{"message":"No query results"}`, model.CodeNotFound, 404, model.ErrNotFound},
		{"rate limited", 429, map[string]string{"RateLimit": `"default";r=0;t=30`}, ``, model.CodeRateLimited, 429, model.ErrRateLimited},
		{"server error", 500, nil, `{"message":"Server Error"}`, model.CodeNetwork, 502, model.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := c.Data(context.Background(), http.MethodPut, "/cart/12", map[string]int{"quantity": 0}, nil)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *model.APIError", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", apiErr.Code, tt.wantCode)
			}
			if apiErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.wantStatus)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v) = false", tt.sentinel)
			}
		})
	}
}

func TestClient_ValidationFields(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		w.Write([]byte(`{"message":"invalid","errors":{"email":["The email has already been taken."]}}`))
	})

	err := c.JSON(context.Background(), http.MethodPost, "/register", map[string]string{}, nil)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if got := apiErr.FirstFieldError("email"); got != "The email has already been taken." {
		t.Errorf("email error = %q", got)
	}
}

func TestClient_NotFoundNamesResource(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	})

	err := c.JSON(context.Background(), http.MethodDelete, "/cart/77", nil, nil)

	var apiErr *model.APIError
	errors.As(err, &apiErr)
	if apiErr == nil || apiErr.Message != "cart not found" {
		t.Errorf("error = %v, want 'cart not found'", err)
	}
}

func TestClient_UnauthorizedHook(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	})
	calls := 0
	c.OnUnauthorized(func() { calls++ })

	c.JSON(context.Background(), http.MethodGet, "/user", nil, nil)

	if calls != 1 {
		t.Errorf("unauthorized hook calls = %d, want 1", calls)
	}
}

func TestClient_UnauthorizedHookNotCalledOnOtherErrors(t *testing.T) {
	for _, status := range []int{403, 404, 422, 500} {
		c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		calls := 0
		c.OnUnauthorized(func() { calls++ })

		c.JSON(context.Background(), http.MethodPost, "/login", nil, nil)

		if calls != 0 {
			t.Errorf("status %d: unauthorized hook calls = %d, want 0", status, calls)
		}
	}
}

func TestClient_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatal(err)
	}

	err = c.JSON(context.Background(), http.MethodGet, "/cart", nil, nil)
	if !errors.Is(err, model.ErrNetwork) {
		t.Errorf("error = %v, want network error", err)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    time.Duration
	}{
		{"structured ratelimit", map[string]string{"RateLimit": `"default";r=0;t=45`}, 45 * time.Second},
		{"retry-after seconds", map[string]string{"Retry-After": "12"}, 12 * time.Second},
		{"malformed ratelimit falls back", map[string]string{"RateLimit": `;;;`, "Retry-After": "3"}, 3 * time.Second},
		{"no params", map[string]string{"RateLimit": `"default"`}, 0},
		{"nothing", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if got := retryAfter(h); got != tt.want {
				t.Errorf("retryAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}
