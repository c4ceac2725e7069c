package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"storefront/internal/model"
)

// errorBody is the storefront's error shape:
// {"message": "...", "errors": {"field": ["msg", ...]}}
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// parseError converts a failed response into a model.APIError.
func parseError(resp *http.Response, body []byte) *model.APIError {
	var eb errorBody
	json.Unmarshal(body, &eb) // Best effort parse

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if len(eb.Errors) > 0 {
			e := model.NewFieldValidationError(eb.Message, eb.Errors)
			e.StatusCode = http.StatusBadRequest
			return e
		}
		return model.NewValidationError("request", withDefault(eb.Message, "invalid request"))
	case http.StatusUnprocessableEntity:
		return model.NewFieldValidationError(eb.Message, eb.Errors)
	case http.StatusUnauthorized, 419: // 419: session or CSRF token expired
		return model.NewUnauthorizedError(withDefault(eb.Message, "authentication required"))
	case http.StatusForbidden:
		e := model.NewUnauthorizedError(withDefault(eb.Message, "access denied"))
		e.StatusCode = http.StatusForbidden
		return e
	case http.StatusNotFound:
		return model.NewNotFoundError(resourceName(resp.Request))
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName, retryAfter(resp.Header))
	default:
		return model.NewNetworkError(serviceName,
			fmt.Errorf("status %d: %s", resp.StatusCode, withDefault(eb.Message, http.StatusText(resp.StatusCode))))
	}
}

// retryAfter reads the structured RateLimit header ("default";r=0;t=30),
// falling back to a delta-seconds Retry-After. Zero means no hint.
func retryAfter(h http.Header) time.Duration {
	if values := h.Values("RateLimit"); len(values) > 0 {
		if d, ok := parseRateLimit(values); ok {
			return d
		}
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// parseRateLimit takes the t (seconds until reset) parameter of the first
// policy item in an RFC 8941 list.
func parseRateLimit(values []string) (time.Duration, bool) {
	list, err := httpsfv.UnmarshalList(values)
	if err != nil || len(list) == 0 {
		return 0, false
	}
	item, ok := list[0].(httpsfv.Item)
	if !ok || item.Params == nil {
		return 0, false
	}
	raw, ok := item.Params.Get("t")
	if !ok {
		return 0, false
	}
	secs, ok := raw.(int64)
	if !ok || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// resourceName turns /api/v1/cart/12 into "cart" for not-found messages.
func resourceName(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "resource"
	}
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			continue
		}
		return p
	}
	return "resource"
}

func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}
