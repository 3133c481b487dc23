package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// revokeTokenRequest is the request body for POST /auth/revoke.
type revokeTokenRequest struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Revoker is the part of *Tokens the revocation endpoints need.
type Revoker interface {
	Revoke(ctx context.Context, p Principal) error
}

// RegisterRevocationRoutes mounts POST /auth/logout for any authenticated
// caller and POST /auth/revoke for admins.
func RegisterRevocationRoutes(g *echo.Group, tokens Revoker, list RevocationList) {
	authGroup := g.Group("/auth")
	authGroup.POST("/logout", handleLogout(tokens))
	authGroup.POST("/revoke", handleRevokeToken(list), RequireRole(RoleAdmin))
}

// handleLogout revokes the token the caller authenticated with.
func handleLogout(tokens Revoker) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := MustPrincipal(c)
		if err != nil {
			return err
		}
		if p.JTI == "" {
			// dev principals carry no token
			return c.NoContent(http.StatusNoContent)
		}
		if err := tokens.Revoke(c.Request().Context(), p); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke token")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// handleRevokeToken revokes a specific token by JTI.
func handleRevokeToken(list RevocationList) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeTokenRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.JTI == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "jti is required")
		}
		if req.ExpiresAt.IsZero() {
			req.ExpiresAt = time.Now().Add(defaultTokenTTL)
		}

		if err := list.Revoke(c.Request().Context(), req.JTI, req.ExpiresAt); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke token")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
