package authhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/audit"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/platform/email"
	"notifycsc/internal/transport/http/api"
	"notifycsc/internal/transport/http/middleware"
	"notifycsc/internal/transport/http/shared"
)

const defaultBaseURL = "http://localhost:8080"

// Service is the slice of auth.Service the handlers call.
type Service interface {
	Login(ctx context.Context, email, password, mfaCode string) (auth.LoginResult, error)
	Logout(ctx context.Context, user auth.UserContext) error
	Refresh(ctx context.Context, rawToken string) (auth.LoginResult, error)
	Me(ctx context.Context, userID string) (auth.User, error)
	HasPermission(ctx context.Context, roleID, permission string) (bool, error)
	SetupMFA(ctx context.Context, user auth.UserContext) (auth.MFASetup, error)
	EnableMFA(ctx context.Context, userID, code string) error
	DisableMFA(ctx context.Context, userID, code string) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	CreateUser(ctx context.Context, in auth.CreateUserInput) (auth.User, error)
	ListUsers(ctx context.Context, role auth.Role, limit, offset int) ([]auth.User, int, error)
	SetUserStatus(ctx context.Context, userID, status string) error
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) error
}

type Handler struct {
	Service   Service
	Audit     Auditor
	Mailer    email.Sender
	EmailFrom string
	BaseURL   string
}

func NewHandler(service Service, auditor Auditor, mailer email.Sender, from, baseURL string) *Handler {
	return &Handler{Service: service, Audit: auditor, Mailer: mailer, EmailFrom: from, BaseURL: baseURL}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

type userStatusRequest struct {
	Status string `json:"status"`
}

// RegisterRoutes mounts the public auth endpoints plus the authenticated
// profile and user administration routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(10, time.Minute, middleware.WithKeyFunc(middleware.AuthEmailOrIPKey("email")))).
			Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.Post("/refresh", h.HandleRefresh)
		r.With(middleware.RateLimit(5, time.Minute, middleware.WithKeyFunc(middleware.AuthEmailOrIPKey("email")))).
			Post("/request-reset", h.HandleRequestReset)
		r.Post("/reset", h.HandleResetPassword)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/me", h.HandleMe)
			r.Post("/mfa/setup", h.HandleMFASetup)
			r.Post("/mfa/enable", h.HandleMFAEnable)
			r.Post("/mfa/disable", h.HandleMFADisable)
		})
	})
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermUsersManage, h.Service))
		r.Get("/", h.handleListUsers)
		r.Post("/", h.handleCreateUser)
		r.Put("/{userID}/status", h.handleUserStatus)
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	result, err := h.Service.Login(r.Context(), strings.TrimSpace(payload.Email), payload.Password, payload.MFACode)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	case errors.Is(err, auth.ErrMFARequired):
		api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", middleware.GetRequestID(r.Context()))
		return
	case errors.Is(err, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", middleware.GetRequestID(r.Context()))
		return
	case err != nil:
		slog.Warn("login failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", middleware.GetRequestID(r.Context()))
		return
	}

	h.record(r.Context(), result.User.ID, audit.ActionLogin, "user", result.User.ID, nil, nil)
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok {
		if err := h.Service.Logout(r.Context(), user); err != nil {
			slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
		}
	}
	api.Success(w, map[string]string{"status": "logged_out"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	result, err := h.Service.Refresh(r.Context(), token)
	if errors.Is(err, auth.ErrSessionExpired) {
		api.Fail(w, http.StatusUnauthorized, "session_expired", "session expired", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		slog.Warn("refresh failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to refresh token", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	profile, err := h.Service.Me(r.Context(), user.UserID)
	if errors.Is(err, auth.ErrUserNotFound) {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_fetch_failed", "failed to load profile", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	setup, err := h.Service.SetupMFA(r.Context(), user)
	if errors.Is(err, auth.ErrMFAUnavailable) {
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires an encryption key", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		slog.Warn("mfa setup failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to set up mfa", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, setup, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleMFAEnable(w http.ResponseWriter, r *http.Request) {
	h.toggleMFA(w, r, true)
}

func (h *Handler) HandleMFADisable(w http.ResponseWriter, r *http.Request) {
	h.toggleMFA(w, r, false)
}

func (h *Handler) toggleMFA(w http.ResponseWriter, r *http.Request, enable bool) {
	user, _ := middleware.GetUser(r.Context())
	var payload mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Code) == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "mfa code required", middleware.GetRequestID(r.Context()))
		return
	}

	action, toggle := audit.ActionMFADisable, h.Service.DisableMFA
	if enable {
		action, toggle = audit.ActionMFAEnable, h.Service.EnableMFA
	}
	switch e := toggle(r.Context(), user.UserID, payload.Code); {
	case errors.Is(e, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa code", middleware.GetRequestID(r.Context()))
		return
	case errors.Is(e, auth.ErrMFANotSetUp):
		api.Fail(w, http.StatusBadRequest, "mfa_not_setup", "mfa setup required", middleware.GetRequestID(r.Context()))
		return
	case errors.Is(e, auth.ErrMFAUnavailable):
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires an encryption key", middleware.GetRequestID(r.Context()))
		return
	case e != nil:
		slog.Warn("mfa toggle failed", "userId", user.UserID, "err", e)
		api.Fail(w, http.StatusInternalServerError, "mfa_update_failed", "failed to update mfa", middleware.GetRequestID(r.Context()))
		return
	}

	h.record(r.Context(), user.UserID, action, "user", user.UserID, nil, map[string]bool{"mfaEnabled": enable})
	api.Success(w, map[string]bool{"mfaEnabled": enable}, middleware.GetRequestID(r.Context()))
}

// HandleRequestReset always answers reset_requested so the endpoint cannot be
// used to probe which addresses are registered.
func (h *Handler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	var payload resetRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	address := strings.TrimSpace(payload.Email)
	if address == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "email required", middleware.GetRequestID(r.Context()))
		return
	}

	token, err := h.Service.RequestPasswordReset(r.Context(), address)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
	case err != nil:
		slog.Warn("password reset request failed", "err", err)
	default:
		link := buildResetLink(h.BaseURL, token)
		msg := email.Message{
			From:    h.EmailFrom,
			To:      address,
			Subject: "Reset your Notify CSC password",
			Body:    buildResetEmailMessage(link, auth.ResetTokenTTL),
		}
		if h.Mailer != nil {
			if err := h.Mailer.Send(r.Context(), msg); err != nil {
				slog.Warn("password reset email failed", "err", err)
			}
		}
	}

	api.Success(w, map[string]string{"status": "reset_requested"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if strings.TrimSpace(payload.Token) == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_token", "reset token required", middleware.GetRequestID(r.Context()))
		return
	}
	if err := validateResetPassword(payload.NewPassword); err != nil {
		api.Fail(w, http.StatusBadRequest, "weak_password", err.Error(), middleware.GetRequestID(r.Context()))
		return
	}

	err := h.Service.ResetPassword(r.Context(), payload.Token, payload.NewPassword)
	if errors.Is(err, auth.ErrInvalidResetToken) {
		api.Fail(w, http.StatusBadRequest, "invalid_token", "invalid or expired reset token", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		slog.Warn("password reset failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "reset_failed", "failed to reset password", middleware.GetRequestID(r.Context()))
		return
	}

	h.record(r.Context(), "", audit.ActionPasswordReset, "user", "", nil, nil)
	api.Success(w, map[string]string{"status": "password_reset"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := auth.Role("")
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, ok := auth.ParseRole(raw)
		if !ok {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "role", Reason: "unknown role"}})
			return
		}
		role = parsed
	}
	page := shared.ParsePagination(r, 50, 200)
	users, total, err := h.Service.ListUsers(r.Context(), role, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_list_failed", "failed to list users", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("X-Total-Count", fmt.Sprint(total))
	api.Success(w, users, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUser(r.Context())
	var payload auth.CreateUserInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	if _, err := mail.ParseAddress(strings.TrimSpace(payload.Email)); err != nil {
		v.Add("email", "must be a valid email address")
	}
	v.Required("name", payload.Name, "is required")
	v.MaxLength("name", payload.Name, 120)
	v.Enum("role", payload.Role, []string{string(auth.RoleAdmin), string(auth.RoleStaff), string(auth.RoleVLE)}, "must be admin, staff or vle")
	v.Required("role", payload.Role, "is required")
	if err := validateResetPassword(payload.Password); err != nil {
		v.Add("password", err.Error())
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	user, err := h.Service.CreateUser(r.Context(), payload)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		api.Fail(w, http.StatusConflict, "email_taken", "email already registered", middleware.GetRequestID(r.Context()))
		return
	case errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrWeakPassword):
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
		return
	case err != nil:
		slog.Warn("user create failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", middleware.GetRequestID(r.Context()))
		return
	}

	h.record(r.Context(), actor.UserID, audit.ActionUserCreate, "user", user.ID, nil, user)
	api.Created(w, user, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userID")
	var payload userStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if userID == actor.UserID && payload.Status == auth.UserStatusDisabled {
		api.Fail(w, http.StatusBadRequest, "invalid_state", "cannot disable your own account", middleware.GetRequestID(r.Context()))
		return
	}

	err := h.Service.SetUserStatus(r.Context(), userID, payload.Status)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", middleware.GetRequestID(r.Context()))
		return
	case err != nil && payload.Status != auth.UserStatusActive && payload.Status != auth.UserStatusDisabled:
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "status", Reason: err.Error()}})
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "user_update_failed", "failed to update user", middleware.GetRequestID(r.Context()))
		return
	}

	h.record(r.Context(), actor.UserID, audit.ActionUserStatus, "user", userID, nil, payload)
	api.Success(w, map[string]string{"id": userID, "status": payload.Status}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(ctx, actorID, action, entityType, entityID, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}

func validateResetPassword(password string) error {
	return auth.ValidatePassword(password)
}

func buildResetLink(baseURL, token string) string {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		base, _ = url.Parse(defaultBaseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/reset"
	base.RawQuery = url.Values{"token": {token}}.Encode()
	return base.String()
}

func buildResetEmailMessage(link string, ttl time.Duration) string {
	hours := int(ttl.Hours())
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf("A password reset was requested for your Notify CSC account.\n\nOpen this link to choose a new password:\n%s\n\nThe link expires in %d hour(s). If you did not ask for a reset you can ignore this message.\n", link, hours)
}
