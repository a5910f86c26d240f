package verification

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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/domain/identity"
	"github.com/carebook/carebook/internal/platform/auth"
)

func asUser(id uuid.UUID, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, auth.UserIDKey, id.String())
			ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func newVerificationServer(t *testing.T, f *verificationFixture, callerID uuid.UUID, roles ...string) *echo.Echo {
	t.Helper()
	h := NewHandler(f.svc)

	e := echo.New()
	api := e.Group("/api/v1", asUser(callerID, roles...))
	h.RegisterRoutes(api)
	return e
}

func multipartUpload(t *testing.T, fileName, contentType, category, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
	hdr["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteField("category", category); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestUploadDocumentEndpoint(t *testing.T) {
	f := newVerificationFixture()
	profile := f.addPendingDoctor("Maya Patel", "maya@clinic.example")
	e := newVerificationServer(t, f, profile.AccountID, auth.RoleDoctor)

	body, contentType := multipartUpload(t, "license.pdf", "application/pdf", "license", "%PDF-1.4 fake")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var meta struct {
		ID       string `json:"id"`
		FileName string `json:"file_name"`
		OwnerID  string `json:"owner_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.FileName != "license.pdf" {
		t.Errorf("file name = %q", meta.FileName)
	}
	if meta.OwnerID != profile.AccountID.String() {
		t.Errorf("owner = %q", meta.OwnerID)
	}

	// Download round trip.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/verification/documents/"+meta.ID+"/download", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if rec.Body.String() != "%PDF-1.4 fake" {
		t.Errorf("downloaded content = %q", rec.Body.String())
	}
}

func TestUploadDocumentEndpointRejectsBadCategory(t *testing.T) {
	f := newVerificationFixture()
	profile := f.addPendingDoctor("Maya Patel", "maya@clinic.example")
	e := newVerificationServer(t, f, profile.AccountID, auth.RoleDoctor)

	body, contentType := multipartUpload(t, "doc.pdf", "application/pdf", "selfie", "data")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification/documents", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDocumentEndpointsEnforceOwnership(t *testing.T) {
	f := newVerificationFixture()
	owner := f.addPendingDoctor("Maya Patel", "maya@clinic.example")
	other := f.addPendingDoctor("Liam Park", "liam@clinic.example")

	meta, err := f.svc.UploadDocument(context.Background(), owner.AccountID,
		"license.pdf", "application/pdf", "license", strings.NewReader("doc"))
	if err != nil {
		t.Fatal(err)
	}

	e := newVerificationServer(t, f, other.AccountID, auth.RoleDoctor)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/verification/documents/"+meta.ID, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("other doctor reads document: status = %d, want 403", rec.Code)
	}

	// Admins can read any document.
	admin := newVerificationServer(t, f, uuid.New(), auth.RoleAdmin, auth.RoleDoctor)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/verification/documents/"+meta.ID, nil)
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin reads document: status = %d, want 200", rec.Code)
	}
}

func TestAdminQueueEndpoints(t *testing.T) {
	f := newVerificationFixture()
	profile := f.addPendingDoctor("Maya Patel", "maya@clinic.example")
	e := newVerificationServer(t, f, uuid.New(), auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/doctors/pending", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status = %d", rec.Code)
	}

	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Fatalf("pending total = %d, want 1", resp.Total)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/doctors/"+profile.ID.String()+"/approve", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var updated identity.DoctorProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.VerificationStatus != identity.VerificationApproved {
		t.Errorf("status = %q", updated.VerificationStatus)
	}

	// Approving again conflicts.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/doctors/"+profile.ID.String()+"/approve", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("re-approve status = %d, want 409", rec.Code)
	}
}

func TestAdminQueueRequiresAdminRole(t *testing.T) {
	f := newVerificationFixture()
	profile := f.addPendingDoctor("Maya Patel", "maya@clinic.example")
	e := newVerificationServer(t, f, profile.AccountID, auth.RoleDoctor)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/doctors/pending", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("doctor reads admin queue: status = %d, want 403", rec.Code)
	}
}

func TestRejectEndpointRequiresReason(t *testing.T) {
	f := newVerificationFixture()
	profile := f.addPendingDoctor("Maya Patel", "maya@clinic.example")
	e := newVerificationServer(t, f, uuid.New(), auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/doctors/"+profile.ID.String()+"/reject",
		strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty reason status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/doctors/"+profile.ID.String()+"/reject",
		strings.NewReader(`{"reason":"expired license"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
