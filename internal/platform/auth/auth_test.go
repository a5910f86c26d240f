package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key-for-unit-tests")

func issueTestToken(t *testing.T, roles []string) string {
	t.Helper()
	ti := &TokenIssuer{
		SigningKey: testKey,
		Issuer:     "carebook",
		TTL:        time.Hour,
	}
	token, _, err := ti.Issue("acct-1", "user@example.com", roles)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return token
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	token := issueTestToken(t, []string{RolePatient})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := JWTMiddleware(JWTConfig{Issuer: "carebook", SigningKey: testKey})
	err := mw(func(c echo.Context) error {
		ctx := c.Request().Context()
		if got := UserIDFromContext(ctx); got != "acct-1" {
			t.Errorf("user id = %q, want acct-1", got)
		}
		if got := EmailFromContext(ctx); got != "user@example.com" {
			t.Errorf("email = %q", got)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != RolePatient {
			t.Errorf("roles = %v", roles)
		}
		if sub, _ := c.Get("auth_subject").(string); sub != "acct-1" {
			t.Errorf("auth_subject = %q", sub)
		}
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("middleware rejected valid token: %v", err)
	}
}

func TestJWTMiddlewareRejections(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{Issuer: "carebook", SigningKey: testKey})

	cases := map[string]string{
		"missing header": "",
		"bad scheme":     "Basic abc",
		"garbage token":  "Bearer not.a.jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			err := mw(func(c echo.Context) error { return nil })(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %v", err)
			}
		})
	}
}

func TestJWTMiddlewareRejectsWrongIssuer(t *testing.T) {
	ti := &TokenIssuer{SigningKey: testKey, Issuer: "someone-else", TTL: time.Hour}
	token, _, err := ti.Issue("acct-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{Issuer: "carebook", SigningKey: testKey})
	mwErr := mw(func(c echo.Context) error { return nil })(c)
	httpErr, ok := mwErr.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong issuer, got %v", mwErr)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name      string
		userRoles []string
		required  []string
		wantPass  bool
	}{
		{"doctor accesses doctor route", []string{RoleDoctor}, []string{RoleDoctor}, true},
		{"patient blocked from doctor route", []string{RolePatient}, []string{RoleDoctor}, false},
		{"admin overrides", []string{RoleAdmin}, []string{RoleDoctor}, true},
		{"any of several", []string{RolePatient}, []string{RoleDoctor, RolePatient}, true},
		{"no roles", nil, []string{RolePatient}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := issueTestToken(t, tc.userRoles)
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			c := e.NewContext(req, httptest.NewRecorder())

			jwtMW := JWTMiddleware(JWTConfig{Issuer: "carebook", SigningKey: testKey})
			roleMW := RequireRole(tc.required...)
			err := jwtMW(roleMW(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			}))(c)

			if tc.wantPass && err != nil {
				t.Errorf("expected pass, got %v", err)
			}
			if !tc.wantPass {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok || httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %v", err)
				}
			}
		})
	}
}

func TestDevAuthMiddlewareDefaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := DevAuthMiddleware()(func(c echo.Context) error {
		ctx := c.Request().Context()
		if got := UserIDFromContext(ctx); got != "dev-user" {
			t.Errorf("user id = %q", got)
		}
		if !HasRole(RolesFromContext(ctx), RoleAdmin) {
			t.Error("dev user should have admin role")
		}
		return nil
	})(c)
	if err != nil {
		t.Fatal(err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("SecurePass123")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "SecurePass123" {
		t.Fatal("hash equals plaintext")
	}
	if !CheckPassword(hash, "SecurePass123") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "WrongPass123") {
		t.Error("wrong password accepted")
	}
}

func TestIssueRequiresSigningKey(t *testing.T) {
	ti := &TokenIssuer{Issuer: "carebook", TTL: time.Hour}
	if _, _, err := ti.Issue("acct-1", "", nil); err == nil {
		t.Error("expected error without signing key")
	}
}
