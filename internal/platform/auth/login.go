package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Issuer is the part of *Tokens that login flows need.
type Issuer interface {
	Issue(p Principal) (string, time.Time, error)
}

// TokenResponse is returned by every login endpoint.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        Role      `json:"role"`
	ID          int64     `json:"id"`
}

func NewTokenResponse(iss Issuer, p Principal) (*TokenResponse, error) {
	token, exp, err := iss.Issue(p)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, Role: p.Role, ID: p.ID}, nil
}

// AdminCredentials is the single configured admin account.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterAdminLogin mounts POST /auth/admin/login. With no configured
// username every attempt fails.
func RegisterAdminLogin(g *echo.Group, creds AdminCredentials, iss Issuer, logger zerolog.Logger) {
	g.POST("/auth/admin/login", handleAdminLogin(creds, iss, logger))
}

func handleAdminLogin(creds AdminCredentials, iss Issuer, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req adminLoginRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.Username == "" || req.Password == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
		}

		err := checkAdmin(creds, req.Username, req.Password)
		if err != nil {
			logger.Warn().Str("username", req.Username).Str("remote_ip", c.RealIP()).Msg("admin login failed")
			return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
		}

		resp, err := NewTokenResponse(iss, Principal{ID: 0, Role: RoleAdmin})
		if err != nil {
			logger.Error().Err(err).Msg("issue admin token")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func checkAdmin(creds AdminCredentials, username, password string) error {
	if creds.Username == "" || creds.PasswordHash == "" {
		return errors.New("admin login is not configured")
	}
	userOK := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(username)) == 1
	// the hash is checked even for a wrong username so both paths cost a bcrypt round
	passErr := CheckPassword(creds.PasswordHash, password)
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
