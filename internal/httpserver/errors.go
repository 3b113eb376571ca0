package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ErrorHandler renders every error as {"success":false,"error":"..."}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	} else {
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody{Success: false, Error: msg})
}

// upstream maps an outbound call failure to the response the browser sees.
func upstream(c echo.Context, err error, fallback string) error {
	l := logging.FromContext(c.Request().Context())
	switch {
	case errors.Is(err, backend.ErrMissingAuthKey), errors.Is(err, backend.ErrMissingAPIKey):
		l.Error("server_misconfigured", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Server configuration error")
	case errors.Is(err, backend.ErrCircuitOpen):
		l.Warn("backend_circuit_open", "status", 503, "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Backend temporarily unavailable")
	default:
		l.Warn("backend_call_failed", "status", 502, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, fallback)
	}
}

// relay writes a buffered backend response with its original status.
func relay(c echo.Context, resp *backend.Response) error {
	if len(resp.Body) == 0 {
		return c.NoContent(resp.Status)
	}
	ct := resp.Header.Get(echo.HeaderContentType)
	if ct == "" {
		ct = echo.MIMEApplicationJSON
	}
	return c.Blob(resp.Status, ct, resp.Body)
}
