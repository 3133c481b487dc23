package auth

import (
	"github.com/labstack/echo/v4"
)

// publicRoutes lists "METHOD path" pairs that bypass authentication: health
// checks, metrics, logins, registration and the public doctor directory.
var publicRoutes = map[string]bool{
	"GET /health":                   true,
	"GET /health/db":                true,
	"GET /metrics":                  true,
	"POST /api/v1/auth/admin/login": true,
	"POST /api/v1/doctors/login":    true,
	"POST /api/v1/patients/login":   true,
	"POST /api/v1/patients":         true,
	"GET /api/v1/doctors":           true,
	"GET /api/v1/doctors/search":    true,
	"GET /api/v1/doctors/:id":       true,
}

// AuthSkipper returns true for requests whose route is public. It matches on
// the registered route path, so path parameters must be written as in the
// router (":id").
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

func IsPublicRoute(method, path string) bool {
	return publicRoutes[method+" "+path]
}
