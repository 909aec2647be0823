package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRole(t *testing.T, userRoles []string, required ...string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userRoles != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, userRoles))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := RequireRole(required...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return h(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := runRole(t, []string{"clinician"}, "clinician", "auditor"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := runRole(t, []string{"admin"}, "clinician"); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	err := runRole(t, []string{"auditor"}, "clinician")
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	if err := runRole(t, nil, "clinician"); err == nil {
		t.Fatal("expected error when no roles in context")
	}
}
