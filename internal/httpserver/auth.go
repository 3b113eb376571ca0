package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/events"
	authmw "github.com/Skotchmaster/tachyon_hub/internal/middleware/auth"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/oauth"
	"github.com/Skotchmaster/tachyon_hub/internal/session"
	"github.com/Skotchmaster/tachyon_hub/internal/status"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
	loggingmw "github.com/Skotchmaster/tachyon_hub/pkg/middleware/logging"
	"github.com/Skotchmaster/tachyon_hub/pkg/tokens"
)

const (
	stateCookie = "hub_oauth_state"
	stateTTL    = 10 * time.Minute
)

type OAuthProvider interface {
	AuthCodeURL(state string) string
	Login(ctx context.Context, code string) (*models.DiscordProfile, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, jti, discordUID string, expiresAt time.Time) error
	RevokeSession(ctx context.Context, jti, reason string) error
	SessionActive(ctx context.Context, jti string) (bool, error)
}

type AuthHTTP struct {
	Discord     OAuthProvider
	Codec       session.Codec
	Refresher   *session.Refresher
	Store       SessionStore
	Checker     *status.Checker
	Events      events.Publisher
	FrontendURL string
}

// Login starts the Discord flow. The state nonce is bound to the browser with a signed cookie.
func (h *AuthHTTP) Login(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth_login")

	nonce := uuid.NewString()
	now := time.Now()
	raw, err := tokens.SignState(tokens.StateClaims{
		Next: safeNext(c.QueryParam("next"), h.FrontendURL),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}, h.Codec.Secret)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start login")
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    raw,
		Path:     "/api/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.Codec.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, h.Discord.AuthCodeURL(nonce))
}

func (h *AuthHTTP) clearState(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Codec.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Callback finishes the Discord flow: identity bridge, enrichment, one status check, cookie.
func (h *AuthHTTP) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_callback")

	ck, err := c.Cookie(stateCookie)
	if err != nil || ck.Value == "" {
		l.Warn("callback_failed", "status", 400, "reason", "missing state cookie")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid OAuth state")
	}
	h.clearState(c)

	st, err := tokens.StateClaimsFromToken(ck.Value, h.Codec.Secret)
	if err != nil || st.ID == "" || st.ID != c.QueryParam("state") {
		l.Warn("callback_failed", "status", 400, "reason", "state mismatch", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid OAuth state")
	}
	if e := c.QueryParam("error"); e != "" {
		l.Info("callback_denied", "reason", e)
		return c.Redirect(http.StatusFound, withQuery(h.FrontendURL, "error", "AccessDenied"))
	}
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing code")
	}

	profile, err := h.Discord.Login(ctx, code)
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, oauth.ErrExchange) {
			code = http.StatusUnauthorized
		}
		l.Warn("callback_failed", "status", code, "error", err)
		return echo.NewHTTPError(code, "Discord login failed")
	}
	l = l.With("discord_id", profile.ID)

	tok, err := h.Refresher.Refresh(ctx, session.Token{}, session.AuthEvent{Login: profile})
	if err != nil {
		// login proceeds with whatever enrichment succeeded
		l.Warn("login_enrichment_failed", "error", err)
	}

	if err := h.Store.CreateSession(ctx, tok.JTI, tok.ExternalID, tok.ExpiresAt); err != nil {
		l.Error("callback_failed", "status", 500, "reason", "cannot store session", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	res := h.Checker.Check(ctx, tok)
	if res.Decision.ForceLogout {
		l.Warn("login_refused", "status", 403, "reason", "banned")
		c.SetCookie(h.Codec.ClearCookie())
		return c.Redirect(http.StatusFound, withQuery(h.FrontendURL, "error", "AccountBanned"))
	}
	tok.Status = res.Status

	raw, err := h.Codec.Encode(tok)
	if err != nil {
		l.Error("callback_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	c.SetCookie(h.Codec.Cookie(raw, tok.ExpiresAt))
	c.Set(loggingmw.UserKey, tok.ExternalID)

	l.Info("login_successful", "role", tok.Role, "account_status", tok.Status)
	return c.Redirect(http.StatusFound, safeNext(st.Next, h.FrontendURL))
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if tok, ok := authmw.TokenFrom(c); ok {
		if err := h.Store.RevokeSession(ctx, tok.JTI, "logout"); err != nil {
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke session", "error", err)
		}
		if err := events.Emit(ctx, h.Events, events.Event{
			Type:       events.SessionRevoked,
			DiscordUID: tok.ExternalID,
			UploaderID: tok.UploaderID,
			Reason:     "logout",
		}); err != nil {
			l.Warn("event_publish_failed", "event", events.SessionRevoked, "error", err)
		}
	}
	c.SetCookie(h.Codec.ClearCookie())

	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

type sessionUser struct {
	ID         string        `json:"id"`
	UploaderID string        `json:"uploaderId,omitempty"`
	Name       string        `json:"name,omitempty"`
	Image      string        `json:"image,omitempty"`
	Type       models.Role   `json:"type"`
	Status     models.Status `json:"status,omitempty"`
}

// Session mirrors the client session shape; an anonymous caller gets {}.
func (h *AuthHTTP) Session(c echo.Context) error {
	tok, ok := authmw.TokenFrom(c)
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user": sessionUser{
			ID:         tok.ExternalID,
			UploaderID: tok.UploaderID,
			Name:       tok.Name,
			Image:      tok.Avatar,
			Type:       tok.Role,
			Status:     tok.Status,
		},
		"expires": tok.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// statusBody flattens the decision next to the status.
type statusBody struct {
	Status models.Status `json:"status"`
	status.Decision
	Stale bool `json:"stale,omitempty"`
}

// Status runs the status gate for the current session. A banned result ends the session.
func (h *AuthHTTP) Status(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_status")

	tok, err := authmw.MustToken(c)
	if err != nil {
		return err
	}

	res := h.Checker.Check(ctx, tok)
	switch {
	case res.Decision.ForceLogout:
		l.Warn("session_terminated", "reason", "banned")
		c.SetCookie(h.Codec.ClearCookie())
	case res.Status != tok.Status && !res.Stale:
		tok.Status = res.Status
		if raw, err := h.Codec.Encode(tok); err == nil {
			c.SetCookie(h.Codec.Cookie(raw, tok.ExpiresAt))
		} else {
			l.Error("session_encode_failed", "error", err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": statusBody{
		Status:   res.Status,
		Decision: res.Decision,
		Stale:    res.Stale,
	}})
}

// safeNext keeps redirects on this origin.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	return next
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
