package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/health"
	authmw "github.com/Skotchmaster/tachyon_hub/internal/middleware/auth"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/service"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

type RewardsBackend interface {
	ListRewards(ctx context.Context) (*backend.Response, error)
}

// API holds the handlers that do more than relay a request.
type API struct {
	Gate      *health.Gate
	Codes     *service.Codes
	Uploaders *service.Uploaders
	Keys      *service.Keys
	Rewards   RewardsBackend
}

func (h *API) Health(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "health")

	rep := h.Gate.Check(ctx)
	if rep.OK {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": rep.Data})
	}
	switch {
	case errors.Is(rep.Err, backend.ErrMissingAPIKey):
		l.Error("server_misconfigured", "status", 500, "error", rep.Err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Server configuration error")
	case errors.Is(rep.Err, health.ErrMaintenance):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "API is not responding")
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "API is unavailable")
	}
}

func (h *API) ListCodes(c echo.Context) error {
	resp, err := h.Codes.List(c.Request().Context(), backend.CodeFilter{
		Active:  c.QueryParam("active"),
		Reward:  c.QueryParam("reward"),
		Version: c.QueryParam("version"),
	})
	if err != nil {
		return upstream(c, err, "Failed to fetch codes")
	}
	return relay(c, resp)
}

func (h *API) CreateCode(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "create_code")

	tok, err := authmw.MustToken(c)
	if err != nil {
		return err
	}
	var in service.NewCode
	if err := bindValid(c, &in); err != nil {
		l.Warn("create_code_failed", "status", 400, "error", err)
		return err
	}

	resp, err := h.Codes.Create(c.Request().Context(), tok, in)
	switch {
	case errors.Is(err, service.ErrCreateDisabled):
		l.Warn("create_code_refused", "status", 403, "account_status", tok.Status)
		return echo.NewHTTPError(http.StatusForbidden, "Account is "+string(tok.Status))
	case err != nil:
		return upstream(c, err, "Failed to create code")
	}
	if resp.OK() {
		l.Info("code_created", "discord_id", tok.ExternalID, "code", in.Code)
	}
	return relay(c, resp)
}

func (h *API) ListRewards(c echo.Context) error {
	resp, err := h.Rewards.ListRewards(c.Request().Context())
	if err != nil {
		return upstream(c, err, "Failed to fetch rewards")
	}
	return relay(c, resp)
}

type statusUpdate struct {
	Status models.Status `json:"status" validate:"required,oneof=active suspended banned"`
}

func (h *API) UpdateUploaderStatus(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "uploader_status")

	var in statusUpdate
	if err := bindValid(c, &in); err != nil {
		l.Warn("uploader_status_failed", "status", 400, "error", err)
		return err
	}
	id := c.Param("id")
	resp, err := h.Uploaders.SetStatus(c.Request().Context(), id, in.Status)
	if err != nil {
		return upstream(c, err, "Failed to update uploader status")
	}
	if resp.OK() {
		l.Info("uploader_status_changed", "uploader_id", id, "new_status", in.Status)
	}
	return relay(c, resp)
}

func (h *API) CreateKey(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "create_key")

	tok, err := authmw.MustToken(c)
	if err != nil {
		return err
	}
	var in service.NewKey
	if c.Request().ContentLength != 0 {
		if err := bindValid(c, &in); err != nil {
			l.Warn("create_key_failed", "status", 400, "error", err)
			return err
		}
	}
	resp, err := h.Keys.Create(c.Request().Context(), tok, in)
	if err != nil {
		return upstream(c, err, "Failed to create API key")
	}
	return relay(c, resp)
}
