package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/session"
	"github.com/Skotchmaster/tachyon_hub/internal/status"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

type SessionStore interface {
	SessionActive(ctx context.Context, jti string) (bool, error)
}

type Refresher interface {
	Refresh(ctx context.Context, old session.Token, ev session.AuthEvent) (session.Token, error)
}

type Banner interface {
	Ban(ctx context.Context, discordID, uploaderID string)
}

// Sessions loads the session cookie and re-enriches it once it is older than Interval.
type Sessions struct {
	Codec     session.Codec
	Refresher Refresher
	Store     SessionStore
	// Bans enforces a ban found on a token, usually right after a refresh.
	Bans      Banner
	Interval  time.Duration
	Now       func() time.Time
}

func (m *Sessions) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Load never rejects a request; it only attaches the session when one is valid.
func (m *Sessions) Load(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("mw", "session")

		ck, err := c.Cookie(session.CookieName)
		if err != nil || ck.Value == "" {
			return next(c)
		}

		tok, err := m.Codec.Decode(ck.Value)
		if err != nil {
			l.Debug("session_invalid", "error", err)
			c.SetCookie(m.Codec.ClearCookie())
			return next(c)
		}

		if m.Store != nil {
			active, err := m.Store.SessionActive(ctx, tok.JTI)
			switch {
			case err != nil:
				l.Error("session_store_failed", "error", err)
			case !active:
				l.Info("session_revoked", "discord_id", tok.ExternalID)
				c.SetCookie(m.Codec.ClearCookie())
				return next(c)
			}
		}

		now := m.now()
		if m.Refresher != nil && session.Due(tok, m.Interval, now) {
			fresh, err := m.Refresher.Refresh(ctx, tok, session.AuthEvent{Now: now})
			if err != nil {
				l.Warn("session_enrichment_failed", "discord_id", tok.ExternalID, "error", err)
			}
			if status.Evaluate(fresh.Status).ForceLogout {
				tok = fresh
			} else if raw, err := m.Codec.Encode(fresh); err != nil {
				l.Error("session_encode_failed", "error", err)
			} else {
				c.SetCookie(m.Codec.Cookie(raw, fresh.ExpiresAt))
				tok = fresh
			}
		}

		if status.Evaluate(tok.Status).ForceLogout {
			l.Warn("session_terminated", "discord_id", tok.ExternalID, "reason", "banned")
			if m.Bans != nil {
				m.Bans.Ban(ctx, tok.ExternalID, tok.UploaderID)
			}
			c.SetCookie(m.Codec.ClearCookie())
			return next(c)
		}

		setUserContext(c, tok)
		return next(c)
	}
}

func (m *Sessions) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return m.Load(func(c echo.Context) error {
		if _, ok := TokenFrom(c); !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		return next(c)
	})
}
