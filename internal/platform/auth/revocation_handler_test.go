package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestContextAs(e *echo.Echo, method, path, body string, p *Principal) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandleLogout_RevokesCallerToken(t *testing.T) {
	list := NewMemoryRevocationList()
	tokens := newTestTokens(list)
	signed, _, _ := tokens.Issue(Principal{ID: 5, Role: RolePatient})
	p, err := tokens.Resolve(context.Background(), signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	c, rec := newTestContextAs(e, http.MethodPost, "/api/v1/auth/logout", "", &p)
	if err := handleLogout(tokens)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	revoked, _ := list.IsRevoked(context.Background(), p.JTI)
	if !revoked {
		t.Error("expected caller token to be revoked")
	}
}

func TestHandleLogout_DevPrincipal(t *testing.T) {
	list := NewMemoryRevocationList()
	e := echo.New()
	c, rec := newTestContextAs(e, http.MethodPost, "/api/v1/auth/logout", "", &Principal{Role: RoleAdmin})

	if err := handleLogout(newTestTokens(list))(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if list.Count() != 0 {
		t.Errorf("expected nothing revoked, got %d", list.Count())
	}
}

func TestHandleLogout_Unauthenticated(t *testing.T) {
	e := echo.New()
	c, _ := newTestContextAs(e, http.MethodPost, "/api/v1/auth/logout", "", nil)

	err := handleLogout(newTestTokens(nil))(c)
	assertHTTPError(t, err, http.StatusUnauthorized)
}

func TestHandleRevokeToken_Success(t *testing.T) {
	list := NewMemoryRevocationList()
	e := echo.New()
	body := `{"jti":"token-xyz","expires_at":"2099-01-01T00:00:00Z"}`
	c, rec := newTestContextAs(e, http.MethodPost, "/api/v1/auth/revoke", body, &Principal{ID: 1, Role: RoleAdmin})

	if err := handleRevokeToken(list)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	revoked, _ := list.IsRevoked(context.Background(), "token-xyz")
	if !revoked {
		t.Error("expected token-xyz to be revoked")
	}
}

func TestHandleRevokeToken_DefaultExpiry(t *testing.T) {
	list := NewMemoryRevocationList()
	e := echo.New()
	c, _ := newTestContextAs(e, http.MethodPost, "/api/v1/auth/revoke", `{"jti":"no-exp"}`, &Principal{ID: 1, Role: RoleAdmin})

	if err := handleRevokeToken(list)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	revoked, _ := list.IsRevoked(context.Background(), "no-exp")
	if !revoked {
		t.Error("expected no-exp to be revoked")
	}
}

func TestHandleRevokeToken_MissingJTI(t *testing.T) {
	e := echo.New()
	c, _ := newTestContextAs(e, http.MethodPost, "/api/v1/auth/revoke", `{"expires_at":"2099-01-01T00:00:00Z"}`, &Principal{ID: 1, Role: RoleAdmin})

	err := handleRevokeToken(NewMemoryRevocationList())(c)
	assertHTTPError(t, err, http.StatusBadRequest)
}

func TestRegisterRevocationRoutes_AdminOnlyRevoke(t *testing.T) {
	list := NewMemoryRevocationList()
	tokens := newTestTokens(list)
	signed, _, _ := tokens.Issue(Principal{ID: 5, Role: RolePatient})

	e := echo.New()
	g := e.Group("/api/v1", Middleware(tokens, nil))
	RegisterRevocationRoutes(g, tokens, list)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/revoke", strings.NewReader(`{"jti":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
