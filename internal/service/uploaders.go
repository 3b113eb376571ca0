package service

import (
	"context"
	"encoding/json"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/cache"
	"github.com/Skotchmaster/tachyon_hub/internal/events"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

type UploadersBackend interface {
	UpdateUploaderStatus(ctx context.Context, id string, st models.Status) (*backend.Response, error)
}

// Banner enforces a ban: sessions revoked, API key deleted.
type Banner interface {
	Ban(ctx context.Context, discordID, uploaderID string)
}

type Uploaders struct {
	Backend UploadersBackend
	Bans    Banner
	Cache   *cache.Cache[models.Uploader]
	Events  events.Publisher
}

// SetStatus changes an uploader's status. When the backend accepts a ban, it is enforced at once
// instead of waiting for the user's next status check, which a revoked session never reaches.
func (s *Uploaders) SetStatus(ctx context.Context, id string, st models.Status) (*backend.Response, error) {
	l := logging.FromContext(ctx).With("svc", "uploaders.status", "uploader_id", id, "new_status", st)

	resp, err := s.Backend.UpdateUploaderStatus(ctx, id, st)
	if err != nil || !resp.OK() {
		return resp, err
	}

	if err := s.Cache.Delete(ctx, id); err != nil {
		l.Warn("uploader_cache_delete_failed", "error", err)
	}

	var env models.Envelope[models.Uploader]
	_ = json.Unmarshal(resp.Body, &env)
	discordID := env.Data.DiscordUID

	if st == models.StatusBanned && s.Bans != nil {
		if discordID == "" {
			l.Error("ban_not_enforced", "reason", "backend response carries no discord_uid")
		} else {
			s.Bans.Ban(ctx, discordID, id)
		}
	}

	if err := events.Emit(ctx, s.Events, events.Event{
		Type:       events.StatusChanged,
		DiscordUID: discordID,
		UploaderID: id,
		Reason:     string(st),
	}); err != nil {
		l.Warn("event_publish_failed", "event", events.StatusChanged, "error", err)
	}
	return resp, nil
}
