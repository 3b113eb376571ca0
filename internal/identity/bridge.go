package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/events"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

const (
	StageLookup = "lookup"
	StageCreate = "create"
	StageFetch  = "fetch"
)

// EnrichmentError reports a failed step of login enrichment. Callers log it and carry on.
type EnrichmentError struct {
	Stage      string
	DiscordUID string
	Err        error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment %s for %s: %v", e.Stage, e.DiscordUID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

type Backend interface {
	GetUploaderByDiscord(ctx context.Context, discordID string) (*models.Uploader, error)
	CreateUploader(ctx context.Context, in backend.CreateUploaderInput) (*backend.Response, error)
}

type Bridge struct {
	Backend Backend
	Events  events.Publisher
}

// Ensure makes sure an uploader exists for discordID. The backend's unique discord_uid makes
// this safe under concurrent logins: a failed create is followed by a second lookup.
// A non-nil error is always an *EnrichmentError.
func (b *Bridge) Ensure(ctx context.Context, discordID, name string) error {
	l := logging.FromContext(ctx).With("svc", "identity.ensure", "discord_id", discordID)

	_, err := b.Backend.GetUploaderByDiscord(ctx, discordID)
	if err == nil {
		return nil
	}
	var se *backend.StatusError
	if !errors.Is(err, backend.ErrNotFound) && !errors.As(err, &se) {
		l.Warn("uploader_lookup_failed", "error", err)
		return &EnrichmentError{Stage: StageLookup, DiscordUID: discordID, Err: err}
	}

	resp, err := b.Backend.CreateUploader(ctx, backend.CreateUploaderInput{
		Name:       name,
		DiscordUID: discordID,
		Status:     models.StatusActive,
	})
	if err != nil {
		l.Warn("uploader_create_failed", "error", err)
		return &EnrichmentError{Stage: StageCreate, DiscordUID: discordID, Err: err}
	}
	if !resp.OK() {
		if u, lerr := b.Backend.GetUploaderByDiscord(ctx, discordID); lerr == nil && u != nil {
			l.Info("uploader_create_raced", "status", resp.Status)
			return nil
		}
		cerr := &backend.StatusError{Code: resp.Status, Message: resp.ErrorMessage()}
		l.Warn("uploader_create_failed", "status", resp.Status, "error", cerr)
		return &EnrichmentError{Stage: StageCreate, DiscordUID: discordID, Err: cerr}
	}

	l.Info("uploader_created")
	if err := events.Emit(ctx, b.Events, events.Event{Type: events.UploaderCreated, DiscordUID: discordID}); err != nil {
		l.Warn("event_publish_failed", "event", events.UploaderCreated, "error", err)
	}
	return nil
}
