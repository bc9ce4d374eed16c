package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notifycsc/internal/domain/listquery"
)

func TestParseListQueryNormalizes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/policies?status=EXPIRED&search=+KL07+&page=0&limit=500", nil)
	v := NewValidator()
	q := ParseListQuery(req, 10, v)
	if v.HasIssues() {
		t.Fatalf("unexpected issues %+v", v.Issues())
	}
	if q.Page != 1 || q.Limit != listquery.MaxPageSize || q.Search != "KL07" || q.Status != "EXPIRED" {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestParseListQueryRejectsInvertedRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/policies?expiryFrom=2025-03-10&expiryTo=2025-03-01", nil)
	v := NewValidator()
	ParseListQuery(req, 10, v)
	if !v.HasIssues() {
		t.Fatal("expected inverted range to be rejected")
	}

	req = httptest.NewRequest(http.MethodGet, "/policies?expiryFrom=2025-03-10&expiryTo=2025-03-10", nil)
	v = NewValidator()
	ParseListQuery(req, 10, v)
	if v.HasIssues() {
		t.Fatalf("expected equal bounds to be accepted, got %+v", v.Issues())
	}
}

func TestParseListQueryRejectsBadDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/policies?expiryFrom=10-03-2025", nil)
	v := NewValidator()
	ParseListQuery(req, 10, v)
	if !v.HasIssues() {
		t.Fatal("expected malformed date to be rejected")
	}
}

func TestWriteListSetsTotalHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteList(rec, listquery.NewResult([]string{"a", "b"}, 12, 10), "req")
	if rec.Header().Get("X-Total-Count") != "12" {
		t.Fatalf("expected total header, got %q", rec.Header().Get("X-Total-Count"))
	}
	var env struct {
		Data listquery.Result[string] `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Pages != 2 || len(env.Data.Items) != 2 {
		t.Fatalf("unexpected result %+v", env.Data)
	}
}

func TestValidatorRejectWritesFields(t *testing.T) {
	v := NewValidator()
	v.Required("holderName", " ", "is required")
	v.Enum("type", "email", []string{"vehicle", "mobile"}, "must be vehicle or mobile")
	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req") {
		t.Fatal("expected reject")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	issues := v.Issues()
	if len(issues) != 2 || issues[0].Field != "holderName" {
		t.Fatalf("unexpected issues %+v", issues)
	}
}

func TestValidatorMobile(t *testing.T) {
	cases := map[string]string{
		"98470 12345":     "9847012345",
		"+91 98470-12345": "9847012345",
		"09847012345":     "9847012345",
		"984701234":       "",
		"98470abcde":      "",
	}
	for raw, want := range cases {
		v := NewValidator()
		got := v.Mobile("mobile", raw)
		if got != want {
			t.Fatalf("Mobile(%q) = %q, want %q", raw, got, want)
		}
		if (want == "") != v.HasIssues() {
			t.Fatalf("Mobile(%q) issues mismatch: %+v", raw, v.Issues())
		}
	}
}
