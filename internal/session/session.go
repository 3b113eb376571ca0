package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/tachyon_hub/internal/identity"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
)

// Token is the dashboard session. Values are never mutated in place; Refresh returns a new one.
type Token struct {
	ExternalID  string
	UploaderID  string
	Role        models.Role
	Status      models.Status
	Name        string
	Avatar      string
	JTI         string
	IssuedAt    time.Time
	RefreshedAt time.Time
	ExpiresAt   time.Time
}

func (t Token) Valid(now time.Time) bool {
	return t.ExternalID != "" && now.Before(t.ExpiresAt)
}

// AuthEvent says why a refresh happens. Login is set only on the OAuth callback.
type AuthEvent struct {
	Login *models.DiscordProfile
	Now   time.Time
}

type Lookup interface {
	GetUploaderByDiscord(ctx context.Context, discordID string) (*models.Uploader, error)
}

type Enrichment struct {
	UploaderID string
	Role       models.Role
	Status     models.Status
}

// Enrich reads the authorization attributes for externalID from the backend.
// A missing role becomes RoleDefault.
func Enrich(ctx context.Context, externalID string, lookup Lookup) (Enrichment, error) {
	u, err := lookup.GetUploaderByDiscord(ctx, externalID)
	if err != nil {
		return Enrichment{}, &identity.EnrichmentError{Stage: identity.StageFetch, DiscordUID: externalID, Err: err}
	}
	role := u.Type
	if role == "" {
		role = models.RoleDefault
	}
	return Enrichment{UploaderID: u.ID, Role: role, Status: u.Status}, nil
}

type Ensurer interface {
	Ensure(ctx context.Context, discordID, name string) error
}

type Refresher struct {
	Bridge Ensurer
	Lookup Lookup
	TTL    time.Duration
}

// Refresh derives the next token from old. On login the identity is taken from the Discord
// profile and the uploader record is ensured first. If the backend cannot be read the previous
// uploader_id, role and status are kept and the error is returned alongside the new token.
func (r *Refresher) Refresh(ctx context.Context, old Token, ev AuthEvent) (Token, error) {
	now := ev.Now
	if now.IsZero() {
		now = time.Now()
	}
	next := old
	var errs []error

	if p := ev.Login; p != nil {
		next = Token{
			ExternalID: p.ID,
			Name:       p.Name(),
			Avatar:     p.Image,
			JTI:        uuid.NewString(),
			IssuedAt:   now,
			ExpiresAt:  now.Add(r.TTL),
		}
		if r.Bridge != nil {
			if err := r.Bridge.Ensure(ctx, p.ID, p.Username); err != nil {
				errs = append(errs, err)
			}
		}
	}

	e, err := Enrich(ctx, next.ExternalID, r.Lookup)
	if err != nil {
		errs = append(errs, err)
	} else {
		next.UploaderID = e.UploaderID
		next.Role = e.Role
		next.Status = e.Status
	}
	if next.Role == "" {
		next.Role = models.RoleDefault
	}
	next.RefreshedAt = now

	return next, errors.Join(errs...)
}

// Due reports whether t should be re-enriched. An interval of zero means every request.
func Due(t Token, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return true
	}
	return now.Sub(t.RefreshedAt) >= interval
}
