package loggingmw

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

// UserKey is the echo context key the session middleware stores the Discord id under.
const UserKey = "discord_id"

type Config struct {
	// SkipPaths are logged at debug level only; probes hit them every few seconds.
	SkipPaths []string
}

func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return RequestLoggerWithConfig(base, Config{})
}

func RequestLoggerWithConfig(base *slog.Logger, cfg Config) echo.MiddlewareFunc {
	quiet := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		quiet[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = c.Response().Header().Get(echo.HeaderXRequestID)
			}

			l := base.With(
				"method", req.Method,
				"url", req.URL.Path,
				"remote_ip", c.RealIP(),
			)
			if rid != "" {
				l = l.With("request_id", rid)
			}

			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))

			start := time.Now()
			err := next(c)
			dur := time.Since(start)

			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status

			attrs := []any{"path", c.Path(), "status", status, "duration_ms", dur.Milliseconds()}
			if uid, ok := c.Get(UserKey).(string); ok && uid != "" {
				attrs = append(attrs, "discord_id", uid)
			}

			switch {
			case err != nil && status >= 500:
				l.Error("request completed", append(attrs, "error", err.Error())...)
			case status >= 500:
				l.Error("request completed", attrs...)
			case status >= 400:
				l.Warn("request completed", attrs...)
			default:
				if _, ok := quiet[req.URL.Path]; ok {
					l.Debug("request completed", attrs...)
				} else {
					l.Info("request completed", append(attrs, "bytes", c.Response().Size)...)
				}
			}
			return nil
		}
	}
}
