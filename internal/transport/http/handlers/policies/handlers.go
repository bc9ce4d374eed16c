package policieshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/audit"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/expiry"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/policy"
	"notifycsc/internal/platform/metrics"
	"notifycsc/internal/transport/http/api"
	"notifycsc/internal/transport/http/middleware"
	"notifycsc/internal/transport/http/shared"
)

const remindEndpoint = "policies.remind"

type Service interface {
	Create(ctx context.Context, actorID string, in policy.Input) (policy.View, error)
	Update(ctx context.Context, id string, in policy.Input) (policy.View, error)
	Get(ctx context.Context, id string) (policy.View, error)
	List(ctx context.Context, q listquery.Query) (listquery.Result[policy.View], error)
	Delete(ctx context.Context, id string) error
	SendReminder(ctx context.Context, actorID, id string) (policy.ReminderResult, error)
	Reminders(ctx context.Context, id string) ([]policy.Reminder, error)
	WriteNotice(ctx context.Context, id string, w io.Writer) error
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) error
}

type Idempotency interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, response any) error
}

type Handler struct {
	Service     Service
	Perms       middleware.PermissionStore
	Audit       Auditor
	Idempotency Idempotency
	Events      shared.Counter
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor Auditor, idem Idempotency) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor, Idempotency: idem}
}

type policyRequest struct {
	PolicyNumber     string `json:"policyNumber"`
	HolderName       string `json:"holderName"`
	VehicleNumber    string `json:"vehicleNumber"`
	VehicleType      string `json:"vehicleType"`
	Insurer          string `json:"insurer"`
	Mobile           string `json:"mobile"`
	Email            string `json:"email"`
	PolicyStartDate  string `json:"policyStartDate"`
	PolicyExpiryDate string `json:"policyExpiryDate"`
	Notes            string `json:"notes"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/policies", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPoliciesRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermPoliciesWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermPoliciesWrite, h.Perms)).Get("/suggest-expiry", h.handleSuggestExpiry)
		r.Route("/{policyID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermPoliciesRead, h.Perms)).Get("/", h.handleGet)
			r.With(middleware.RequirePermission(auth.PermPoliciesWrite, h.Perms)).Put("/", h.handleUpdate)
			r.With(middleware.RequirePermission(auth.PermPoliciesWrite, h.Perms)).Delete("/", h.handleDelete)
			r.With(middleware.RequirePermission(auth.PermPoliciesRemind, h.Perms)).Post("/reminders", h.handleSendReminder)
			r.With(middleware.RequirePermission(auth.PermPoliciesRead, h.Perms)).Get("/reminders", h.handleListReminders)
			r.With(middleware.RequirePermission(auth.PermPoliciesRead, h.Perms)).Get("/notice.pdf", h.handleNotice)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	q := shared.ParseListQuery(r, listquery.DefaultPageSize, v)
	if q.Status != "" {
		if _, ok := expiry.ParseStatus(q.Status); !ok {
			v.Add("status", "must be one of EXPIRED, EXPIRING_SOON, EXPIRING_WARNING, EXPIRING_UPCOMING, ACTIVE")
		}
	}
	v.MaxLength("search", q.Search, 100)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	result, err := h.Service.List(r.Context(), q)
	if err != nil {
		slog.Warn("policy list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "policy_list_failed", "failed to list policies", middleware.GetRequestID(r.Context()))
		return
	}
	shared.WriteList(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Get(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		h.fail(w, r, err, "policy_fetch_failed", "failed to load policy")
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}

	view, err := h.Service.Create(r.Context(), user.UserID, in)
	if err != nil {
		h.fail(w, r, err, "policy_create_failed", "failed to create policy")
		return
	}
	h.record(r.Context(), user.UserID, audit.ActionPolicyCreate, view.ID, nil, view)
	api.Created(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "policyID")
	before, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "policy_fetch_failed", "failed to load policy")
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}

	view, err := h.Service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err, "policy_update_failed", "failed to update policy")
		return
	}
	h.record(r.Context(), user.UserID, audit.ActionPolicyUpdate, id, before, view)
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "policyID")
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err, "policy_delete_failed", "failed to delete policy")
		return
	}
	h.record(r.Context(), user.UserID, audit.ActionPolicyDelete, id, nil, nil)
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

// handleSendReminder replays the stored response for a repeated
// Idempotency-Key instead of sending a second reminder.
func (h *Handler) handleSendReminder(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "policyID")

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash([]byte(id))
	if idempotencyKey != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), user.UserID, remindEndpoint, idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used for another policy", middleware.GetRequestID(r.Context()))
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "err", err)
		}
		if found {
			api.Success(w, stored, middleware.GetRequestID(r.Context()))
			return
		}
	}

	result, err := h.Service.SendReminder(r.Context(), user.UserID, id)
	if errors.Is(err, policy.ErrReminderNotEligible) {
		shared.Count(h.Events, metrics.RemindersRejected)
	}
	if err != nil {
		h.fail(w, r, err, "reminder_failed", "failed to send reminder")
		return
	}

	if idempotencyKey != "" && h.Idempotency != nil {
		if err := h.Idempotency.Save(r.Context(), user.UserID, remindEndpoint, idempotencyKey, requestHash, result); err != nil {
			slog.Warn("idempotency save failed", "err", err)
		}
	}
	shared.Count(h.Events, metrics.RemindersSent)
	h.record(r.Context(), user.UserID, audit.ActionPolicyRemind, id, nil, result.Reminder)
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListReminders(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Reminders(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		h.fail(w, r, err, "reminder_list_failed", "failed to list reminders")
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleNotice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "policyID")
	var buf bytes.Buffer
	if err := h.Service.WriteNotice(r.Context(), id, &buf); err != nil {
		h.fail(w, r, err, "notice_failed", "failed to render renewal notice")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="renewal-notice-`+id+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("notice write failed", "policyId", id, "err", err)
	}
}

// handleSuggestExpiry offers start + N years - 1 day. The form may ignore it.
func (h *Handler) handleSuggestExpiry(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	start, _ := v.Date("start", r.URL.Query().Get("start"))
	years := 1
	if raw := r.URL.Query().Get("years"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 5 {
			v.Add("years", "must be between 1 and 5")
		}
		years = parsed
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	api.Success(w, map[string]string{
		"policyStartDate":  start.Format("2006-01-02"),
		"policyExpiryDate": expiry.SuggestExpiry(start, years).Format("2006-01-02"),
	}, middleware.GetRequestID(r.Context()))
}

func decodeInput(w http.ResponseWriter, r *http.Request) (policy.Input, bool) {
	var payload policyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return policy.Input{}, false
	}

	v := shared.NewValidator()
	v.Required("holderName", payload.HolderName, "is required")
	v.MaxLength("holderName", payload.HolderName, 120)
	v.Required("vehicleNumber", payload.VehicleNumber, "is required")
	v.MaxLength("vehicleNumber", payload.VehicleNumber, 20)
	v.MaxLength("policyNumber", payload.PolicyNumber, 60)
	v.MaxLength("vehicleType", payload.VehicleType, 40)
	v.MaxLength("insurer", payload.Insurer, 120)
	v.MaxLength("notes", payload.Notes, 2000)
	mobile := v.Mobile("mobile", payload.Mobile)
	if address := strings.TrimSpace(payload.Email); address != "" {
		if _, err := mail.ParseAddress(address); err != nil {
			v.Add("email", "must be a valid email address")
		}
	}
	start, _ := v.Date("policyStartDate", payload.PolicyStartDate)
	end, _ := v.Date("policyExpiryDate", payload.PolicyExpiryDate)
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		v.Add("policyExpiryDate", "must be after policyStartDate")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return policy.Input{}, false
	}

	return policy.Input{
		PolicyNumber:  payload.PolicyNumber,
		HolderName:    payload.HolderName,
		VehicleNumber: payload.VehicleNumber,
		VehicleType:   payload.VehicleType,
		Insurer:       payload.Insurer,
		Mobile:        mobile,
		Email:         payload.Email,
		StartDate:     start,
		ExpiryDate:    end,
		Notes:         payload.Notes,
	}, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, policy.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "policy not found", reqID)
	case errors.Is(err, policy.ErrReminderNotEligible):
		api.Fail(w, http.StatusUnprocessableEntity, "reminder_not_eligible", policy.ErrReminderNotEligible.Error(), reqID)
	case errors.Is(err, policy.ErrInvalidDates):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "policyExpiryDate", Reason: "must be after policyStartDate"}})
	default:
		slog.Warn(code, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, reqID)
	}
}

func (h *Handler) record(ctx context.Context, actorID, action, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(ctx, actorID, action, "policy", entityID, before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
