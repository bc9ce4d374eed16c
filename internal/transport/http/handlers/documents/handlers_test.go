package documentshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/documents"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/transport/http/middleware"
)

type allowAll struct{}

func (allowAll) HasPermission(context.Context, string, string) (bool, error) { return true, nil }

type fakeService struct {
	Service
	uploads    []documents.UploadInput
	uploadBody string
	uploader   documents.Viewer
	listViewer documents.Viewer
	listCat    string
	download   documents.Download
	rejectErr  error
}

func (f *fakeService) CreateCategory(_ context.Context, name, _ string) (documents.Category, error) {
	if strings.EqualFold(name, "Forms") {
		return documents.Category{}, documents.ErrDuplicateCategory
	}
	return documents.Category{ID: "c1", Name: name}, nil
}

func (f *fakeService) Upload(_ context.Context, uploader documents.Viewer, in documents.UploadInput, body io.Reader) (documents.Document, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return documents.Document{}, err
	}
	f.uploads = append(f.uploads, in)
	f.uploadBody = string(raw)
	f.uploader = uploader
	return documents.Document{ID: "d1", Title: in.Title, Status: documents.StatusPending}, nil
}

func (f *fakeService) List(_ context.Context, viewer documents.Viewer, q listquery.Query, categoryID string) (listquery.Result[documents.Document], error) {
	f.listViewer = viewer
	f.listCat = categoryID
	return listquery.NewResult([]documents.Document{{ID: "d1"}}, 1, q.Limit), nil
}

func (f *fakeService) Open(context.Context, documents.Viewer, string) (documents.Download, error) {
	return f.download, nil
}

func (f *fakeService) Reject(_ context.Context, _, id, reason string) (documents.Document, error) {
	if f.rejectErr != nil {
		return documents.Document{}, f.rejectErr
	}
	return documents.Document{ID: id, Status: documents.StatusRejected, RejectionReason: reason}, nil
}

var (
	vle   = auth.UserContext{UserID: "vle-1", RoleID: "r3", RoleName: "vle"}
	staff = auth.UserContext{UserID: "staff-1", RoleID: "r2", RoleName: "staff"}
)

func serve(svc *fakeService, req *http.Request, user auth.UserContext) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(svc, allowAll{}, nil).RegisterRoutes(r)
	req = req.WithContext(middleware.WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDuplicateCategoryIsConflict(t *testing.T) {
	rec := serve(&fakeService{}, jsonRequest(t, http.MethodPost, "/document-categories", map[string]string{"name": "Forms"}), staff)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"duplicate_category"`) {
		t.Fatalf("expected duplicate_category, got %s", rec.Body.String())
	}
}

func TestUploadMultipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("title", "Renewal form")
	_ = mw.WriteField("categoryId", "c1")
	part, err := mw.CreateFormFile("file", "form.pdf")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 sample"))
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	svc := &fakeService{}
	rec := serve(svc, req, vle)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.uploads) != 1 || svc.uploads[0].FileName != "form.pdf" || svc.uploads[0].CategoryID != "c1" {
		t.Fatalf("unexpected upload input %+v", svc.uploads)
	}
	if svc.uploadBody != "%PDF-1.4 sample" {
		t.Fatalf("unexpected body %q", svc.uploadBody)
	}
	if svc.uploader.Reviewer {
		t.Fatal("vle uploads must not be treated as reviewer uploads")
	}
}

func TestUploadRequiresFileAndTitle(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("title", "")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	svc := &fakeService{}
	rec := serve(svc, req, vle)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.uploads) != 0 {
		t.Fatal("service must not be called")
	}
}

func TestListScopesByRoleAndCategory(t *testing.T) {
	svc := &fakeService{}
	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/documents?categoryId=c9&status=approved", nil), vle)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.listViewer.Reviewer || svc.listViewer.UserID != "vle-1" || svc.listCat != "c9" {
		t.Fatalf("unexpected scope %+v %q", svc.listViewer, svc.listCat)
	}

	serve(svc, httptest.NewRequest(http.MethodGet, "/documents", nil), staff)
	if !svc.listViewer.Reviewer {
		t.Fatal("staff should list as reviewer")
	}

	rec = serve(svc, httptest.NewRequest(http.MethodGet, "/documents?status=archived", nil), staff)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestDownloadRedirectsOrStreams(t *testing.T) {
	svc := &fakeService{download: documents.Download{URL: "https://bucket.s3.example/obj?sig=1"}}
	rec := serve(svc, httptest.NewRequest(http.MethodGet, "/documents/d1/download", nil), vle)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "https://bucket.s3.example/obj?sig=1" {
		t.Fatalf("expected redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	svc.download = documents.Download{
		Document: documents.Document{ID: "d1", FileName: `form "v2".pdf`, ContentType: "application/pdf", SizeBytes: 5},
		Body:     io.NopCloser(strings.NewReader("hello")),
	}
	rec = serve(svc, httptest.NewRequest(http.MethodGet, "/documents/d1/download", nil), vle)
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Fatalf("expected streamed body, got %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="form _v2_.pdf"` {
		t.Fatalf("unexpected disposition %q", got)
	}
}

func TestRejectNeedsReasonAndMapsReviewedConflict(t *testing.T) {
	svc := &fakeService{}
	rec := serve(svc, jsonRequest(t, http.MethodPost, "/documents/d1/reject", map[string]string{"reason": " "}), staff)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d", rec.Code)
	}

	svc.rejectErr = documents.ErrAlreadyReviewed
	rec = serve(svc, jsonRequest(t, http.MethodPost, "/documents/d1/reject", map[string]string{"reason": "blurred scan"}), staff)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reviewed document, got %d", rec.Code)
	}
}
