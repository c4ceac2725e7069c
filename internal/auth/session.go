// Package auth owns the account session: it is the auth state provider the
// cart facade consults, and the client for the account endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/model"
)

// Doer is the storefront transport. *api.Client satisfies it.
type Doer interface {
	JSON(ctx context.Context, method, path string, body, result interface{}) error
}

// TokenStore persists the session token. *localstore.TokenSlot satisfies it.
type TokenStore interface {
	Load(ctx context.Context) string
	Save(ctx context.Context, token string) error
}

// Session tracks whether the user is signed in. Listeners fire on every
// change of session token: sign-in, sign-out, and a switch of account.
type Session struct {
	api    Doer
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time // zero for tokens without an exp claim
	user      *User
	listeners map[int]func(authenticated bool)
	nextID    int
}

// NewSession creates a guest session. Call Restore to pick up a stored token.
func NewSession(api Doer, store TokenStore, logger *slog.Logger) *Session {
	return &Session{
		api:       api,
		store:     store,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]func(bool)),
	}
}

// Restore loads a persisted token. Expired tokens are discarded.
func (s *Session) Restore(ctx context.Context) {
	token := s.store.Load(ctx)
	if token == "" {
		return
	}
	exp := tokenExpiry(token)
	if !exp.IsZero() && !s.now().Before(exp) {
		s.logger.InfoContext(ctx, "stored session expired, continuing as guest")
		s.store.Save(ctx, "")
		return
	}
	s.set(ctx, token, exp, nil)
}

// IsAuthenticated reports whether a live session token is held.
func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// Token returns the bearer token, or "" for guests and expired sessions.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return ""
	}
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return ""
	}
	return s.token
}

// User returns the cached account, if login or CurrentUser supplied one.
func (s *Session) User() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Subscribe registers fn for auth transitions and returns its cancel func.
func (s *Session) Subscribe(fn func(authenticated bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Login authenticates with email and password.
func (s *Session) Login(ctx context.Context, creds LoginCredentials) error {
	if creds.Email == "" || creds.Password == "" {
		return model.NewValidationError("email", "email and password are required")
	}
	var resp tokenResponse
	if err := s.api.JSON(ctx, http.MethodPost, "/login", creds, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return s.adopt(ctx, resp)
}

// Register creates an account and signs in.
func (s *Session) Register(ctx context.Context, creds RegisterCredentials) error {
	if creds.Password != creds.PasswordConfirmation {
		return model.NewValidationError("password_confirmation", "does not match password")
	}
	var resp tokenResponse
	if err := s.api.JSON(ctx, http.MethodPost, "/register", creds, &resp); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return s.adopt(ctx, resp)
}

// Logout ends the session server-side and always drops it locally. A server
// failure other than an already-dead session is returned after dropping.
func (s *Session) Logout(ctx context.Context) error {
	err := s.api.JSON(ctx, http.MethodPost, "/logout", nil, nil)
	s.Drop(ctx)
	if err != nil && !errors.Is(err, model.ErrUnauthorized) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Drop returns to guest without calling the server. Used when any call
// comes back unauthorized.
func (s *Session) Drop(ctx context.Context) {
	s.mu.Lock()
	had := s.token != ""
	s.mu.Unlock()
	if !had {
		return
	}
	if err := s.store.Save(ctx, ""); err != nil {
		s.logger.WarnContext(ctx, "clearing stored session failed", slog.String("error", err.Error()))
	}
	s.set(ctx, "", time.Time{}, nil)
}

// CurrentUser fetches the signed-in account.
func (s *Session) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := s.api.JSON(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return User{}, fmt.Errorf("current user: %w", err)
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return u, nil
}

// UpdateProfile changes the display name.
func (s *Session) UpdateProfile(ctx context.Context, data UpdateProfileData) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := s.api.JSON(ctx, http.MethodPut, "/user", data, &resp); err != nil {
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	s.mu.Lock()
	s.user = &resp.User
	s.mu.Unlock()
	return resp.User, nil
}

// UpdatePassword changes the password of the signed-in account.
func (s *Session) UpdatePassword(ctx context.Context, data UpdatePasswordData) error {
	if data.NewPassword != data.NewPasswordConfirmation {
		return model.NewValidationError("new_password_confirmation", "does not match new password")
	}
	if err := s.api.JSON(ctx, http.MethodPut, "/user/password", data, nil); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// RequestPasswordReset asks the server to email a reset link.
func (s *Session) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var resp messageResponse
	if err := s.api.JSON(ctx, http.MethodPost, "/forgot-password", map[string]string{"email": email}, &resp); err != nil {
		return "", fmt.Errorf("request password reset: %w", err)
	}
	return resp.Message, nil
}

// ResetPassword completes a reset with the emailed token.
func (s *Session) ResetPassword(ctx context.Context, data ResetPasswordData) (string, error) {
	var resp messageResponse
	if err := s.api.JSON(ctx, http.MethodPost, "/reset-password", data, &resp); err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	return resp.Message, nil
}

func (s *Session) adopt(ctx context.Context, resp tokenResponse) error {
	if resp.Token == "" {
		return model.NewInternalError(errors.New("auth response carried no token"))
	}
	if err := s.store.Save(ctx, resp.Token); err != nil {
		// The session still works for this process; it just won't survive a restart.
		s.logger.WarnContext(ctx, "persisting session failed", slog.String("error", err.Error()))
	}
	s.set(ctx, resp.Token, tokenExpiry(resp.Token), resp.User)
	return nil
}

// set swaps the session state and notifies listeners whenever the token
// changes. Signing in as another account over a live session is a change
// even though the mode stays authenticated.
func (s *Session) set(ctx context.Context, token string, exp time.Time, user *User) {
	s.mu.Lock()
	prev := s.token
	s.token = token
	s.expiresAt = exp
	s.user = user
	now := token != ""
	listeners := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if prev == token {
		return
	}
	s.logger.InfoContext(ctx, "auth state changed",
		slog.Bool("authenticated", now),
		slog.Bool("account_switch", prev != "" && now),
	)
	for _, fn := range listeners {
		fn(now)
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying it; the server
// does verification. Opaque tokens have no client-side expiry.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
