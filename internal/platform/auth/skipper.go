package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// PublicRoutes are registered route patterns served without a token.
var PublicRoutes = []string{"/health", "/health/db"}

// AuthSkipper lets public routes and CORS preflights through. It matches
// on c.Path(), so it must run after routing.
func AuthSkipper(c echo.Context) bool {
	if c.Request().Method == http.MethodOptions {
		return true
	}
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether route bypasses auth.
func IsPublicPath(route string) bool {
	for _, p := range PublicRoutes {
		if p == route {
			return true
		}
	}
	return false
}
