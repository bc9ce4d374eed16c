package publichandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/announcements"
	"notifycsc/internal/domain/expiry"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/policy"
)

type fakeLookup struct {
	calls []string
}

func (f *fakeLookup) Lookup(_ context.Context, kind listquery.LookupType, value string) ([]policy.Summary, error) {
	f.calls = append(f.calls, string(kind)+":"+value)
	return []policy.Summary{{
		VehicleNumber: "KL07******34",
		HolderName:    "A*** K****",
		Mobile:        "******2345",
		ExpiryStatus:  expiry.StatusExpiringSoon,
		DaysRemaining: 5,
	}}, nil
}

type fakeTickers struct{}

func (fakeTickers) ActiveTickers(context.Context) ([]announcements.Announcement, error) {
	return []announcements.Announcement{{ID: "a1", Title: "Camp on Saturday", IsTicker: true, Published: true}}, nil
}

func newRouter(lookup *fakeLookup, perMinute int) http.Handler {
	r := chi.NewRouter()
	NewHandler(lookup, fakeTickers{}, perMinute).RegisterRoutes(r)
	return r
}

func get(h http.Handler, target, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = ip + ":5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLookupValidatesTypeAndValue(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "unknown type", target: "/public/lookup?type=email&value=x", status: http.StatusBadRequest},
		{name: "short mobile", target: "/public/lookup?type=mobile&value=98470", status: http.StatusBadRequest},
		{name: "short vehicle", target: "/public/lookup?type=vehicle&value=KL-", status: http.StatusBadRequest},
		{name: "vehicle", target: "/public/lookup?type=vehicle&value=KL07AB1234", status: http.StatusOK},
		{name: "mobile with prefix", target: "/public/lookup?type=mobile&value=%2B919847012345", status: http.StatusOK},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			lookup := &fakeLookup{}
			rec := get(newRouter(lookup, 100), tc.target, "203.0.113.1")
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status != http.StatusOK && len(lookup.calls) != 0 {
				t.Fatal("invalid lookups must not reach the service")
			}
		})
	}
}

func TestLookupPassesNormalisedMobile(t *testing.T) {
	lookup := &fakeLookup{}
	rec := get(newRouter(lookup, 100), "/public/lookup?type=mobile&value=098470-12345", "203.0.113.1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(lookup.calls) != 1 || lookup.calls[0] != "mobile:9847012345" {
		t.Fatalf("unexpected calls %v", lookup.calls)
	}
	if !strings.Contains(rec.Body.String(), `"mobile":"******2345"`) {
		t.Fatalf("expected masked mobile, got %s", rec.Body.String())
	}
}

func TestLookupIsRateLimitedPerIP(t *testing.T) {
	router := newRouter(&fakeLookup{}, 2)
	target := "/public/lookup?type=vehicle&value=KL07AB1234"
	for i := 0; i < 2; i++ {
		if rec := get(router, target, "203.0.113.9"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := get(router, target, "203.0.113.9"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := get(router, target, "198.51.100.4"); rec.Code != http.StatusOK {
		t.Fatalf("other callers must not share the budget, got %d", rec.Code)
	}
}

func TestTickers(t *testing.T) {
	rec := get(newRouter(&fakeLookup{}, 10), "/public/tickers", "203.0.113.1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Camp on Saturday") {
		t.Fatalf("unexpected tickers response %d %s", rec.Code, rec.Body.String())
	}
}
