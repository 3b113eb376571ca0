package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/health"
)

// Maintenance rejects mutating calls while the gate is active. Reads and the auth endpoints stay open.
func Maintenance(g *health.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g == nil || !g.Active() {
				return next(c)
			}
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			if strings.HasPrefix(c.Request().URL.Path, "/api/auth/") {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusServiceUnavailable, "maintenance")
		}
	}
}
