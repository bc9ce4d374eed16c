package reportshandler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/reports"
	"notifycsc/internal/platform/jobs"
	"notifycsc/internal/transport/http/api"
	"notifycsc/internal/transport/http/middleware"
	"notifycsc/internal/transport/http/shared"
)

type Service interface {
	Dashboard(ctx context.Context) (reports.Dashboard, error)
	ExpiryBuckets(ctx context.Context) ([]reports.BucketCount, error)
	JobRuns(ctx context.Context, jobType string, limit, offset int) ([]reports.JobRun, error)
}

type Runner interface {
	RunNow(ctx context.Context, jobType string, run jobs.Task) (any, error)
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
	Jobs    Runner
	// Tasks maps a job type to what "run now" executes for it.
	Tasks map[string]jobs.Task
}

func NewHandler(service Service, perms middleware.PermissionStore, runner Runner, tasks map[string]jobs.Task) *Handler {
	return &Handler{Service: service, Perms: perms, Jobs: runner, Tasks: tasks}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/dashboard", h.handleDashboard)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/expiry-buckets", h.handleBuckets)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/jobs", h.handleJobRuns)
		r.With(middleware.RequirePermission(auth.PermSettingsWrite, h.Perms)).Post("/jobs/{jobType}/run", h.handleRunJob)
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.Service.Dashboard(r.Context())
	if err != nil {
		slog.Warn("dashboard failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "dashboard_failed", "failed to build dashboard", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.Service.ExpiryBuckets(r.Context())
	if err != nil {
		slog.Warn("expiry buckets failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "buckets_failed", "failed to count expiry buckets", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, buckets, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	jobType := r.URL.Query().Get("jobType")
	if jobType != "" {
		if _, ok := h.Tasks[jobType]; !ok {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "jobType", Reason: "unknown job type"}})
			return
		}
	}
	runs, err := h.Service.JobRuns(r.Context(), jobType, page.Limit, page.Offset)
	if err != nil {
		slog.Warn("job runs failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunJob(w http.ResponseWriter, r *http.Request) {
	jobType := chi.URLParam(r, "jobType")
	task, ok := h.Tasks[jobType]
	if !ok {
		api.Fail(w, http.StatusNotFound, "not_found", "unknown job type", middleware.GetRequestID(r.Context()))
		return
	}
	details, err := h.Jobs.RunNow(r.Context(), jobType, task)
	if err != nil {
		slog.Warn("manual job run failed", "jobType", jobType, "err", err)
		api.Fail(w, http.StatusInternalServerError, "job_failed", "job run failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"jobType": jobType, "status": jobs.StatusCompleted, "details": details}, middleware.GetRequestID(r.Context()))
}
