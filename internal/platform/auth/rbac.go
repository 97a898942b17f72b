package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// HasAnyRole reports whether the caller holds one of roles. Admin holds all.
func HasAnyRole(ctx context.Context, roles ...string) bool {
	held := RolesFromContext(ctx)
	if slices.Contains(held, RoleAdmin) {
		return true
	}
	for _, r := range roles {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// RequireRole answers 403 unless the caller holds one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	msg := "requires role " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasAnyRole(c.Request().Context(), roles...) {
				return echo.NewHTTPError(http.StatusForbidden, msg)
			}
			return next(c)
		}
	}
}

// RequireStaff admits anyone working the practice: reads, search, metrics.
func RequireStaff() echo.MiddlewareFunc {
	return RequireRole(RoleMedico, RoleAssistant)
}

// RequireMedico admits only the prescribing doctor: clinical writes.
func RequireMedico() echo.MiddlewareFunc {
	return RequireRole(RoleMedico)
}
