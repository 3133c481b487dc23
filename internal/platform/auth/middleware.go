package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const principalKey contextKey = "principal"

// Resolver turns a bearer token into a principal. *Tokens implements it.
type Resolver interface {
	Resolve(ctx context.Context, token string, required ...Role) (Principal, error)
}

// Middleware authenticates every request not matched by skipper.
func Middleware(resolver Resolver, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			token, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			p, err := resolver.Resolve(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenRevoked) {
					return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "token resolution failed")
			}

			setPrincipal(c, p)
			return next(c)
		}
	}
}

// DevAuthMiddleware accepts real tokens when present. Requests without an
// Authorization header act as the principal named by X-Dev-Principal
// ("patient:42"), or as admin 0 when that header is absent.
func DevAuthMiddleware(resolver Resolver, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	strict := Middleware(resolver, skipper)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withToken := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return withToken(c)
			}

			p := Principal{ID: 0, Role: RoleAdmin}
			if dev := c.Request().Header.Get("X-Dev-Principal"); dev != "" {
				parsed, ok := parseDevPrincipal(dev)
				if !ok {
					return echo.NewHTTPError(http.StatusBadRequest, "X-Dev-Principal must look like role:id")
				}
				p = parsed
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

func parseDevPrincipal(v string) (Principal, bool) {
	roleStr, idStr, ok := strings.Cut(v, ":")
	if !ok {
		return Principal{}, false
	}
	role, err := ParseRole(roleStr)
	if err != nil {
		return Principal{}, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Principal{}, false
	}
	return Principal{ID: id, Role: role}, true
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func setPrincipal(c echo.Context, p Principal) {
	ctx := WithPrincipal(c.Request().Context(), p)
	c.SetRequest(c.Request().WithContext(ctx))
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
