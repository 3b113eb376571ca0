package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/health"
	authmw "github.com/Skotchmaster/tachyon_hub/internal/middleware/auth"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/proxy"
	"github.com/Skotchmaster/tachyon_hub/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/tachyon_hub/pkg/middleware/logging"
)

// rewardBodyLimit covers an icon upload plus form fields.
const rewardBodyLimit = "6M"

type Deps struct {
	Logger *slog.Logger
	DB     *gorm.DB

	Sessions *authmw.Sessions
	Auth     *AuthHTTP
	API      *API
	Proxy    *proxy.Proxy
	Gate     *health.Gate

	CSRF csrf.Config
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = ErrorHandler
	e.Validator = NewValidator()

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", ready(d.DB))

	e.Pre(ecM.RemoveTrailingSlash())
	e.Use(
		ecM.Recover(),
		ecM.RequestID(),
		loggingmw.RequestLoggerWithConfig(d.Logger, loggingmw.Config{
			SkipPaths: []string{"/health/live", "/health/ready"},
		}),
		ecM.Secure(),
	)

	cfg := d.CSRF
	cfg.SkipPaths = append(cfg.SkipPaths, "/api/auth/callback")
	cfg.SkipPrefixes = append(cfg.SkipPrefixes, "/health/")
	e.Use(csrf.Middleware(cfg))
	e.Use(Maintenance(d.Gate))

	sess := d.Sessions.RequireSession
	staff := authmw.RequireStaff()
	pass := d.Proxy.Handler
	path := proxy.Path

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.GET("/login", d.Auth.Login)
	auth.GET("/callback", d.Auth.Callback)
	auth.POST("/logout", d.Auth.Logout, d.Sessions.Load)
	auth.GET("/session", d.Auth.Session, d.Sessions.Load)
	auth.GET("/status", d.Auth.Status, sess)

	api.GET("/health", d.API.Health)

	api.GET("/codes", d.API.ListCodes)
	api.POST("/codes", d.API.CreateCode, sess, authmw.RequireCanCreate)
	api.PATCH("/codes/:id", pass(backend.APIKey, path("/strinova/code/:id")), sess)
	api.DELETE("/codes/:id", pass(backend.APIKey, path("/strinova/code/:id")), sess)

	limit := ecM.BodyLimit(rewardBodyLimit)
	api.GET("/rewards", d.API.ListRewards)
	api.POST("/rewards", pass(backend.AdminKey, path("/rewards")), sess, staff, limit)
	api.PATCH("/rewards/:id", pass(backend.AdminKey, path("/rewards/:id")), sess, staff, limit)
	api.DELETE("/rewards/:id", pass(backend.AdminKey, path("/rewards/:id")), sess, staff)

	api.GET("/uploaders", pass(backend.AdminKey, path("/uploaders")), sess, staff)
	api.POST("/uploaders", pass(backend.AdminKey, path("/uploaders")), sess, staff)
	api.GET("/uploaders/discord/:discordId", pass(backend.AdminKey, path("/uploaders/discord/:discordId")),
		sess, authmw.RequireSelfOrRole("discordId", models.RoleAdmin, models.RoleManager))
	api.PATCH("/uploaders/:id/status", d.API.UpdateUploaderStatus, sess, authmw.RequireRole(models.RoleAdmin))

	ownKey := authmw.RequireSelfOrRole("discordId", models.RoleAdmin)
	api.GET("/admin/keys/discord/:discordId", pass(backend.AdminKey, path("/admin/keys/discord/:discordId")), sess, ownKey)
	api.DELETE("/admin/keys/discord/:discordId", pass(backend.AdminKey, path("/admin/keys/discord/:discordId")), sess, ownKey)
	api.POST("/admin/keys", d.API.CreateKey, sess)
}

func ready(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db == nil {
			return c.NoContent(http.StatusOK)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
}
