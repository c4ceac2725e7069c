package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/localstore"
	"storefront/internal/model"
)

// fakeAPI answers JSON calls from a handler func.
type fakeAPI struct {
	handle func(method, path string, body interface{}) (interface{}, error)
	paths  []string
}

func (f *fakeAPI) JSON(_ context.Context, method, path string, body, result interface{}) error {
	f.paths = append(f.paths, method+" "+path)
	resp, err := f.handle(method, path, body)
	if err != nil {
		return err
	}
	if result == nil || resp == nil {
		return nil
	}
	b, _ := json.Marshal(resp)
	return json.Unmarshal(b, result)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(api *fakeAPI) (*Session, *localstore.TokenSlot) {
	slot := localstore.NewTokenSlot(localstore.NewMemoryBackend(), localstore.DefaultKey, testLogger())
	return NewSession(api, slot, testLogger()), slot
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLogin_PersistsTokenAndNotifies(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{handle: func(method, path string, _ interface{}) (interface{}, error) {
		return map[string]interface{}{"token": "opaque-abc", "user": map[string]interface{}{"id": 1, "name": "Ada"}}, nil
	}}
	s, slot := newTestSession(api)

	var events []bool
	s.Subscribe(func(authed bool) { events = append(events, authed) })

	if err := s.Login(ctx, LoginCredentials{Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if !s.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after login")
	}
	if slot.Load(ctx) != "opaque-abc" {
		t.Errorf("stored token = %q", slot.Load(ctx))
	}
	if len(events) != 1 || !events[0] {
		t.Errorf("events = %v, want [true]", events)
	}
	if u, ok := s.User(); !ok || u.Name != "Ada" {
		t.Errorf("User() = %+v, %v", u, ok)
	}
	if api.paths[0] != "POST /login" {
		t.Errorf("path = %s", api.paths[0])
	}
}

func TestLogin_FailureStaysGuest(t *testing.T) {
	api := &fakeAPI{handle: func(string, string, interface{}) (interface{}, error) {
		return nil, model.NewFieldValidationError("", map[string][]string{"email": {"These credentials do not match our records."}})
	}}
	s, _ := newTestSession(api)
	fired := false
	s.Subscribe(func(bool) { fired = true })

	err := s.Login(context.Background(), LoginCredentials{Email: "a@b.c", Password: "wrong"})

	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if s.IsAuthenticated() || fired {
		t.Error("failed login must not change auth state")
	}
}

func TestLogin_ValidatesLocally(t *testing.T) {
	api := &fakeAPI{handle: func(string, string, interface{}) (interface{}, error) {
		t.Fatal("server should not be called")
		return nil, nil
	}}
	s, _ := newTestSession(api)
	if err := s.Login(context.Background(), LoginCredentials{Email: "a@b.c"}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestLogin_MissingTokenIsAnError(t *testing.T) {
	api := &fakeAPI{handle: func(string, string, interface{}) (interface{}, error) {
		return map[string]interface{}{}, nil
	}}
	s, _ := newTestSession(api)
	if err := s.Login(context.Background(), LoginCredentials{Email: "a@b.c", Password: "pw"}); !model.IsCode(err, model.CodeInternal) {
		t.Errorf("error = %v, want internal error", err)
	}
	if s.IsAuthenticated() {
		t.Error("session must stay guest")
	}
}

func TestRegister_PasswordMismatch(t *testing.T) {
	s, _ := newTestSession(&fakeAPI{handle: func(string, string, interface{}) (interface{}, error) { return nil, nil }})
	err := s.Register(context.Background(), RegisterCredentials{Name: "A", Email: "a@b.c", Password: "x", PasswordConfirmation: "y"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.FirstFieldError("password_confirmation") == "" {
		t.Errorf("error = %v, want password_confirmation field error", err)
	}
}

func TestLogout_DropsEvenWhenServerFails(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"ok", nil, false},
		{"already expired", model.NewUnauthorizedError("unauthenticated"), false},
		{"network", model.NewNetworkError("storefront", errors.New("boom")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			api := &fakeAPI{handle: func(method, path string, _ interface{}) (interface{}, error) {
				if path == "/logout" {
					return nil, tt.err
				}
				return map[string]string{"token": "tok"}, nil
			}}
			s, slot := newTestSession(api)
			s.Login(ctx, LoginCredentials{Email: "a@b.c", Password: "pw"})

			err := s.Logout(ctx)

			if (err != nil) != tt.wantErr {
				t.Errorf("Logout() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s.IsAuthenticated() {
				t.Error("still authenticated after logout")
			}
			if slot.Load(ctx) != "" {
				t.Error("token still persisted after logout")
			}
		})
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name   string
		token  func(t *testing.T) string
		authed bool
	}{
		{"opaque token", func(*testing.T) string { return "opaque" }, true},
		{"live jwt", func(t *testing.T) string { return signedToken(t, time.Now().Add(time.Hour)) }, true},
		{"expired jwt", func(t *testing.T) string { return signedToken(t, time.Now().Add(-time.Minute)) }, false},
		{"nothing stored", func(*testing.T) string { return "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, slot := newTestSession(&fakeAPI{})
			if tok := tt.token(t); tok != "" {
				slot.Save(ctx, tok)
			}

			s.Restore(ctx)

			if s.IsAuthenticated() != tt.authed {
				t.Errorf("IsAuthenticated() = %v, want %v", s.IsAuthenticated(), tt.authed)
			}
			if !tt.authed && slot.Load(ctx) != "" {
				t.Error("expired token should be cleared from storage")
			}
		})
	}
}

func TestToken_ExpiresInMemory(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	tok := signedToken(t, exp)
	api := &fakeAPI{handle: func(string, string, interface{}) (interface{}, error) {
		return map[string]string{"token": tok}, nil
	}}
	s, _ := newTestSession(api)
	s.Login(ctx, LoginCredentials{Email: "a@b.c", Password: "pw"})

	if s.Token() != tok {
		t.Fatal("token should be live")
	}
	s.now = func() time.Time { return exp.Add(time.Second) }
	if s.Token() != "" || s.IsAuthenticated() {
		t.Error("token past exp should read as guest")
	}
}

func TestSubscribe_Cancel(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{handle: func(string, string, interface{}) (interface{}, error) {
		return map[string]string{"token": "tok"}, nil
	}}
	s, _ := newTestSession(api)
	calls := 0
	cancel := s.Subscribe(func(bool) { calls++ })
	cancel()

	s.Login(ctx, LoginCredentials{Email: "a@b.c", Password: "pw"})
	if calls != 0 {
		t.Errorf("cancelled listener fired %d times", calls)
	}
}

func TestSubscribe_FiresOnAccountSwitch(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{handle: func(_, _ string, body interface{}) (interface{}, error) {
		return map[string]string{"token": "tok-" + body.(LoginCredentials).Email}, nil
	}}
	s, _ := newTestSession(api)

	var events []bool
	s.Subscribe(func(authed bool) { events = append(events, authed) })

	s.Login(ctx, LoginCredentials{Email: "a@b.c", Password: "pw"})
	s.Login(ctx, LoginCredentials{Email: "b@b.c", Password: "pw"})
	if len(events) != 2 || !events[0] || !events[1] {
		t.Errorf("events = %v, want [true true]", events)
	}
	if s.Token() != "tok-b@b.c" {
		t.Errorf("Token() = %q", s.Token())
	}
}

func TestDrop_NotifiesAfterInMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	tok := signedToken(t, exp)
	api := &fakeAPI{handle: func(string, string, interface{}) (interface{}, error) {
		return map[string]string{"token": tok}, nil
	}}
	s, _ := newTestSession(api)
	s.Login(ctx, LoginCredentials{Email: "a@b.c", Password: "pw"})
	s.now = func() time.Time { return exp.Add(time.Second) }

	var events []bool
	s.Subscribe(func(authed bool) { events = append(events, authed) })
	s.Drop(ctx)
	if len(events) != 1 || events[0] {
		t.Errorf("events = %v, want [false]", events)
	}
}

func TestDrop_NoopForGuest(t *testing.T) {
	s, _ := newTestSession(&fakeAPI{})
	fired := false
	s.Subscribe(func(bool) { fired = true })
	s.Drop(context.Background())
	if fired {
		t.Error("Drop on a guest session should not notify")
	}
}

func TestAccountEndpoints(t *testing.T) {
	ctx := context.Background()
	var gotBody interface{}
	api := &fakeAPI{handle: func(method, path string, body interface{}) (interface{}, error) {
		gotBody = body
		switch method + " " + path {
		case "GET /user":
			return map[string]interface{}{"id": 3, "name": "Grace", "email": "g@h.i"}, nil
		case "PUT /user":
			return map[string]interface{}{"user": map[string]interface{}{"id": 3, "name": "Grace H"}}, nil
		case "POST /forgot-password", "POST /reset-password":
			return map[string]string{"message": "ok"}, nil
		}
		return nil, nil
	}}
	s, _ := newTestSession(api)

	u, err := s.CurrentUser(ctx)
	if err != nil || u.Email != "g@h.i" {
		t.Errorf("CurrentUser() = %+v, %v", u, err)
	}

	u, err = s.UpdateProfile(ctx, UpdateProfileData{Name: "Grace H"})
	if err != nil || u.Name != "Grace H" {
		t.Errorf("UpdateProfile() = %+v, %v", u, err)
	}
	if cached, _ := s.User(); cached.Name != "Grace H" {
		t.Errorf("cached user = %+v", cached)
	}

	if err := s.UpdatePassword(ctx, UpdatePasswordData{CurrentPassword: "a", NewPassword: "b", NewPasswordConfirmation: "b"}); err != nil {
		t.Errorf("UpdatePassword() error = %v", err)
	}
	if err := s.UpdatePassword(ctx, UpdatePasswordData{NewPassword: "b", NewPasswordConfirmation: "c"}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("mismatched UpdatePassword() error = %v", err)
	}

	msg, err := s.RequestPasswordReset(ctx, "g@h.i")
	if err != nil || msg != "ok" {
		t.Errorf("RequestPasswordReset() = %q, %v", msg, err)
	}
	if m, ok := gotBody.(map[string]string); !ok || m["email"] != "g@h.i" {
		t.Errorf("forgot-password body = %#v", gotBody)
	}

	msg, err = s.ResetPassword(ctx, ResetPasswordData{Token: "t", Email: "g@h.i", Password: "p", PasswordConfirmation: "p"})
	if err != nil || msg != "ok" {
		t.Errorf("ResetPassword() = %q, %v", msg, err)
	}
}
