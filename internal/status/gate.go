package status

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/events"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/session"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

type Decision struct {
	CanCreateCodes bool `json:"canCreateCodes"`
	CanView        bool `json:"canView"`
	ForceLogout    bool `json:"forceLogout"`
}

// Evaluate maps an account status to what the session may do. Unknown values behave as active.
func Evaluate(s models.Status) Decision {
	switch s {
	case models.StatusSuspended:
		return Decision{CanView: true}
	case models.StatusBanned:
		return Decision{ForceLogout: true}
	default:
		return Decision{CanCreateCodes: true, CanView: true}
	}
}

type Backend interface {
	GetUploaderByDiscord(ctx context.Context, discordID string) (*models.Uploader, error)
	GetKeyByDiscord(ctx context.Context, discordID string) (*backend.Response, error)
	DeleteKeyByDiscord(ctx context.Context, discordID string) (*backend.Response, error)
}

type Revoker interface {
	RevokeAllForDiscord(ctx context.Context, discordUID, reason string) (int64, error)
}

type Result struct {
	Status   models.Status `json:"status"`
	Decision Decision      `json:"decision"`
	// Stale is set when the backend could not be asked and the token's status was used.
	Stale bool `json:"stale,omitempty"`
}

type Checker struct {
	Backend  Backend
	Sessions Revoker
	Events   events.Publisher

	bans singleflight.Group
}

// Check reads the current status of tok's owner. It never fails closed: when the backend is
// unreachable the status carried by the token is evaluated instead. A banned result deletes the
// user's API key and revokes every session before returning.
func (c *Checker) Check(ctx context.Context, tok session.Token) Result {
	l := logging.FromContext(ctx).With("svc", "status.check", "discord_id", tok.ExternalID)

	st := tok.Status
	stale := false
	u, err := c.Backend.GetUploaderByDiscord(ctx, tok.ExternalID)
	if err != nil {
		l.Warn("status_fetch_failed", "error", err)
		stale = true
	} else {
		st = u.Status
	}

	res := Result{Status: st, Decision: Evaluate(st), Stale: stale}
	if res.Decision.ForceLogout {
		uploaderID := tok.UploaderID
		if u != nil {
			uploaderID = u.ID
		}
		c.Ban(ctx, tok.ExternalID, uploaderID)
	}
	return res
}

// Ban enforces a ban for discordID: every session is revoked and the API key is deleted if the
// backend still holds one. Concurrent calls for one user share a single run, and later calls find
// nothing left to do, so the key DELETE is sent once per ban.
func (c *Checker) Ban(ctx context.Context, discordID, uploaderID string) {
	_, _, _ = c.bans.Do(discordID, func() (any, error) {
		c.handleBan(ctx, discordID, uploaderID)
		return nil, nil
	})
}

func (c *Checker) handleBan(ctx context.Context, discordID, uploaderID string) {
	l := logging.FromContext(ctx).With("svc", "status.ban", "discord_id", discordID)

	var revoked int64
	if c.Sessions != nil {
		n, err := c.Sessions.RevokeAllForDiscord(ctx, discordID, string(models.StatusBanned))
		if err != nil {
			l.Error("session_revoke_failed", "error", err)
		} else if n > 0 {
			revoked = n
			l.Info("sessions_revoked", "count", n)
		}
	}

	deleted, err := c.deleteKey(ctx, discordID)
	if err != nil {
		l.Error("api_key_delete_failed", "error", err)
	} else if deleted {
		l.Info("api_key_deleted")
	}

	if revoked == 0 && !deleted {
		return
	}
	if err := events.Emit(ctx, c.Events, events.Event{
		Type:       events.UploaderBanned,
		DiscordUID: discordID,
		UploaderID: uploaderID,
		Reason:     string(models.StatusBanned),
	}); err != nil {
		l.Warn("event_publish_failed", "event", events.UploaderBanned, "error", err)
	}
}

// deleteKey reports whether a key was deleted. A user without a key is not an error.
func (c *Checker) deleteKey(ctx context.Context, discordID string) (bool, error) {
	if resp, err := c.Backend.GetKeyByDiscord(ctx, discordID); err == nil && resp.Status == http.StatusNotFound {
		return false, nil
	}
	resp, err := c.Backend.DeleteKeyByDiscord(ctx, discordID)
	if err != nil {
		return false, err
	}
	if resp.Status == http.StatusNotFound {
		return false, nil
	}
	if !resp.OK() {
		return false, fmt.Errorf("delete key: %w", &backend.StatusError{Code: resp.Status, Message: resp.ErrorMessage()})
	}
	return true, nil
}
