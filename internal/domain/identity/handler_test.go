package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/auth"
)

func newTestServer(t *testing.T) (*echo.Echo, *Service) {
	t.Helper()
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	e := echo.New()
	api := e.Group("/api/v1")
	h.RegisterRoutes(api, api)
	return e, svc
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegisterEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/auth/register", `{
		"email": "jane@example.com",
		"password": "SecurePass123",
		"first_name": "Jane",
		"last_name": "Smith",
		"user_type": "PATIENT",
		"date_of_birth": "1990-04-12",
		"gender": "female"
	}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token   string `json:"token"`
		Account struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"account"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Error("no token in response")
	}
	if resp.Account.Role != "patient" {
		t.Errorf("role = %q", resp.Account.Role)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks password fields")
	}
}

func TestRegisterEndpointValidationErrors(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/auth/register", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Errors["email"] != "Email is required" {
		t.Errorf("email error = %q", resp.Errors["email"])
	}
	if resp.Errors["userType"] != "User type is required" {
		t.Errorf("userType error = %q", resp.Errors["userType"])
	}
}

func TestRegisterEndpointDuplicateEmail(t *testing.T) {
	e, _ := newTestServer(t)

	body := `{
		"email": "jane@example.com",
		"password": "SecurePass123",
		"first_name": "Jane",
		"last_name": "Smith",
		"user_type": "PATIENT",
		"date_of_birth": "1990-04-12",
		"gender": "female"
	}`
	if rec := doJSON(e, http.MethodPost, "/api/v1/auth/register", body); rec.Code != http.StatusCreated {
		t.Fatalf("first register: %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodPost, "/api/v1/auth/register", body); rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: %d, want 409", rec.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	e, svc := newTestServer(t)
	if _, err := svc.Register(httptest.NewRequest(http.MethodGet, "/", nil).Context(), patientRequest()); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodPost, "/api/v1/auth/login", `{"email":"jane@example.com","password":"SecurePass123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/auth/login", `{"email":"jane@example.com","password":"Wrong12345"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d", rec.Code)
	}
}

func TestSearchDoctorsEndpointEmptyDirectory(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/doctors?specialty=Cardiology", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Data  []json.RawMessage `json:"data"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 || len(resp.Data) != 0 {
		t.Errorf("expected empty directory, got %s", rec.Body.String())
	}
}

func TestListAccountsEndpoint(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if _, err := svc.Register(ctx, patientRequest()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, doctorRequest()); err != nil {
		t.Fatal(err)
	}

	asAdmin := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, []string{auth.RoleAdmin})
			c.SetRequest(c.Request().WithContext(rctx))
			return next(c)
		}
	}
	e := echo.New()
	api := e.Group("/api/v1", asAdmin)
	h.RegisterRoutes(api, api)

	rec := doJSON(e, http.MethodGet, "/api/v1/admin/accounts?role=doctor", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data  []json.RawMessage `json:"data"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("doctor filter total = %d, want 1", resp.Total)
	}

	// Without the admin role the queue is off limits.
	plain, _ := newTestServer(t)
	if rec := doJSON(plain, http.MethodGet, "/api/v1/admin/accounts", ""); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", rec.Code)
	}
}

func TestGetDoctorEndpointHidesUnverified(t *testing.T) {
	e, svc := newTestServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	result, err := svc.Register(ctx, doctorRequest())
	if err != nil {
		t.Fatal(err)
	}
	profile, err := svc.doctors.GetByAccountID(ctx, result.Account.ID)
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodGet, "/api/v1/doctors/"+profile.ID.String(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("pending doctor visible: status = %d", rec.Code)
	}

	if err := svc.doctors.SetVerificationStatus(ctx, profile.ID, VerificationApproved, nil); err != nil {
		t.Fatal(err)
	}
	rec = doJSON(e, http.MethodGet, "/api/v1/doctors/"+profile.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Errorf("approved doctor hidden: status = %d", rec.Code)
	}
}
