package auth

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/status"
)

// RequireRole must run after RequireSession.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t, err := MustToken(c)
			if err != nil {
				return err
			}
			if !slices.Contains(roles, t.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
			}
			return next(c)
		}
	}
}

func RequireStaff() echo.MiddlewareFunc {
	return RequireRole(models.RoleAdmin, models.RoleManager)
}

// RequireSelfOrRole lets a user act on their own Discord id (taken from param) or lets roles act on anyone.
func RequireSelfOrRole(param string, roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t, err := MustToken(c)
			if err != nil {
				return err
			}
			if c.Param(param) != t.ExternalID && !slices.Contains(roles, t.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
			}
			return next(c)
		}
	}
}

// RequireCanCreate refuses suspended and banned sessions.
func RequireCanCreate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := MustToken(c)
		if err != nil {
			return err
		}
		if !status.Evaluate(t.Status).CanCreateCodes {
			return echo.NewHTTPError(http.StatusForbidden, "Account is "+string(t.Status))
		}
		return next(c)
	}
}
