package authhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/platform/email"
	"notifycsc/internal/transport/http/middleware"
)

func TestValidateResetPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "valid password",
			password: "Stronger123",
		},
		{
			name:     "too short",
			password: "S1hort",
			wantErr:  true,
		},
		{
			name:     "missing uppercase",
			password: "longpassword1",
			wantErr:  true,
		},
		{
			name:     "missing lowercase",
			password: "LONGPASSWORD1",
			wantErr:  true,
		},
		{
			name:     "missing number",
			password: "LongPassword",
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := validateResetPassword(tc.password)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestBuildResetLink(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		token     string
		wantParts []string
	}{
		{
			name:      "empty base url uses default",
			baseURL:   "",
			token:     "abc",
			wantParts: []string{"http://localhost:8080/reset", "token=abc"},
		},
		{
			name:      "custom host",
			baseURL:   "https://csc.example.in",
			token:     "token123",
			wantParts: []string{"https://csc.example.in/reset", "token=token123"},
		},
		{
			name:      "custom path",
			baseURL:   "https://csc.example.in/console",
			token:     "xyz",
			wantParts: []string{"https://csc.example.in/console/reset", "token=xyz"},
		},
		{
			name:      "invalid base url falls back",
			baseURL:   "not a url",
			token:     "abc",
			wantParts: []string{"http://localhost:8080/reset", "token=abc"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := buildResetLink(tc.baseURL, tc.token)
			for _, part := range tc.wantParts {
				if !strings.Contains(got, part) {
					t.Fatalf("expected reset link %q to contain %q", got, part)
				}
			}
		})
	}
}

func TestBuildResetEmailMessage(t *testing.T) {
	link := "https://csc.example.in/reset?token=abc"
	msg := buildResetEmailMessage(link, 2*time.Hour)
	if !strings.Contains(msg, link) {
		t.Fatalf("expected email message to include reset link, got %q", msg)
	}
	if !strings.Contains(msg, "expires in 2 hour(s)") {
		t.Fatalf("expected email message to include ttl, got %q", msg)
	}
}

type fakeService struct {
	Service
	loginErr   error
	resetToken string
	resetErr   error
	created    []auth.CreateUserInput
	allow      bool
}

func (f *fakeService) Login(_ context.Context, email, _, _ string) (auth.LoginResult, error) {
	if f.loginErr != nil {
		return auth.LoginResult{}, f.loginErr
	}
	return auth.LoginResult{Token: "jwt", User: auth.User{ID: "u1", Email: email, Role: "staff"}}, nil
}

func (f *fakeService) RequestPasswordReset(context.Context, string) (string, error) {
	return f.resetToken, f.resetErr
}

func (f *fakeService) HasPermission(context.Context, string, string) (bool, error) {
	return f.allow, nil
}

func (f *fakeService) CreateUser(_ context.Context, in auth.CreateUserInput) (auth.User, error) {
	f.created = append(f.created, in)
	return auth.User{ID: "new-user", Email: in.Email, Name: in.Name, Role: in.Role}, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *captureMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path string, body any, user *auth.UserContext) (int, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.RemoteAddr = "198.51.100.10:4321"
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), *user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestLoginMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "bad password", err: auth.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: "invalid_credentials"},
		{name: "mfa missing", err: auth.ErrMFARequired, wantStatus: http.StatusUnauthorized, wantCode: "mfa_required"},
		{name: "mfa wrong", err: auth.ErrMFAInvalid, wantStatus: http.StatusUnauthorized, wantCode: "mfa_invalid"},
		{name: "success", wantStatus: http.StatusOK},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&fakeService{loginErr: tc.err}, nil, nil, "", "")
			status, env := do(t, newRouter(h), http.MethodPost, "/auth/login", map[string]string{"email": "a@b.in", "password": "x"}, nil)
			if status != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, status)
			}
			if tc.wantCode != "" && (env.Error == nil || env.Error.Code != tc.wantCode) {
				t.Fatalf("expected %s, got %+v", tc.wantCode, env.Error)
			}
		})
	}
}

func TestRequestResetSendsLinkOnlyForKnownAccounts(t *testing.T) {
	mailer := &captureMailer{}
	svc := &fakeService{resetToken: "tok123"}
	h := NewHandler(svc, nil, mailer, "no-reply@csc.local", "https://csc.example.in")
	router := newRouter(h)

	status, env := do(t, router, http.MethodPost, "/auth/request-reset", map[string]string{"email": "vle@csc.in"}, nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), "reset_requested") {
		t.Fatalf("unexpected response %d %s", status, env.Data)
	}
	if len(mailer.sent) != 1 || !strings.Contains(mailer.sent[0].Body, "https://csc.example.in/reset?token=tok123") {
		t.Fatalf("expected reset mail with link, got %+v", mailer.sent)
	}

	svc.resetErr = auth.ErrUserNotFound
	status, env = do(t, router, http.MethodPost, "/auth/request-reset", map[string]string{"email": "ghost@csc.in"}, nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), "reset_requested") {
		t.Fatalf("unknown address must look identical, got %d %s", status, env.Data)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected no extra mail, got %d", len(mailer.sent))
	}
}

func TestUsersRequirePermission(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, nil, nil, "", "")
	router := newRouter(h)
	vle := &auth.UserContext{UserID: "u2", RoleID: "r-vle", RoleName: "vle"}

	status, _ := do(t, router, http.MethodPost, "/users", map[string]string{}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous, got %d", status)
	}
	status, _ = do(t, router, http.MethodPost, "/users", map[string]string{}, vle)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 without permission, got %d", status)
	}
}

func TestCreateUserValidates(t *testing.T) {
	svc := &fakeService{allow: true}
	h := NewHandler(svc, nil, nil, "", "")
	router := newRouter(h)
	admin := &auth.UserContext{UserID: "u1", RoleID: "r-admin", RoleName: "admin"}

	status, env := do(t, router, http.MethodPost, "/users", map[string]string{
		"email": "not-an-email", "name": "", "password": "weak", "role": "owner",
	}, admin)
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %d %+v", status, env.Error)
	}
	if len(svc.created) != 0 {
		t.Fatal("service must not be called for invalid input")
	}

	status, _ = do(t, router, http.MethodPost, "/users", map[string]string{
		"email": "akshaya@csc.in", "name": "Akshaya Kollam", "password": "Kiosk12345", "role": "vle",
	}, admin)
	if status != http.StatusCreated || len(svc.created) != 1 {
		t.Fatalf("expected created, got %d", status)
	}
}
