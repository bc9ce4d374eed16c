package audithandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/audit"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/transport/http/middleware"
)

type rolePerms struct{}

func (rolePerms) HasPermission(_ context.Context, roleID, permission string) (bool, error) {
	role, _ := auth.ParseRole(roleID)
	return role.Allows(permission), nil
}

type fakeService struct{ filters []audit.Filter }

func (f *fakeService) Count(_ context.Context, filter audit.Filter) (int, error) {
	f.filters = append(f.filters, filter)
	return 1, nil
}

func (f *fakeService) List(context.Context, audit.Filter, bool, int, int) ([]audit.Event, error) {
	return []audit.Event{{ID: "e1", Action: audit.ActionPolicyRemind}}, nil
}

func (f *fakeService) ListExport(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	f.filters = append(f.filters, filter)
	return []audit.Event{{
		ID: "e1", ActorID: "u1", Action: audit.ActionPolicyRemind, EntityType: "policy", EntityID: "p1",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}, nil
}

func serve(svc *fakeService, target string, role auth.Role) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(svc, rolePerms{}).RegisterRoutes(r)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", RoleID: string(role), RoleName: string(role)}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListEventsAppliesFilter(t *testing.T) {
	svc := &fakeService{}
	rec := serve(svc, "/audit/events?action=policy.remind&entityId=p1", auth.RoleAdmin)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Total-Count") != "1" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("X-Total-Count"))
	}
	if len(svc.filters) != 1 || svc.filters[0].Action != "policy.remind" || svc.filters[0].EntityID != "p1" {
		t.Fatalf("unexpected filter %+v", svc.filters)
	}
	if rec := serve(svc, "/audit/events", auth.RoleStaff); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}
}

func TestExportWritesCSV(t *testing.T) {
	rec := serve(&fakeService{}, "/audit/events/export?entityType=policy", auth.RoleAdmin)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "policy.remind") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}
}
