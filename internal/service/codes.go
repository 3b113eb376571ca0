package service

import (
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/cache"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/session"
	"github.com/Skotchmaster/tachyon_hub/internal/status"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

var ErrCreateDisabled = errors.New("code creation is disabled for this account")

const defaultJoinLimit = 8

type CodesBackend interface {
	ListCodes(ctx context.Context, f backend.CodeFilter) (*backend.Response, error)
	CreateCode(ctx context.Context, in backend.CreateCodeInput) (*backend.Response, error)
	GetUploader(ctx context.Context, id string) (*models.Uploader, error)
}

// NewCode is a create request. Members it does not declare are kept in Extra and forwarded,
// except the ownership fields, which always come from the session.
type NewCode struct {
	Code      string              `json:"code" validate:"required,max=64"`
	Version   string              `json:"version,omitempty" validate:"omitempty,oneof=global cn mobile"`
	ExpiredAt *string             `json:"expired_at,omitempty"`
	Rewards   []models.CodeReward `json:"rewards" validate:"dive"`

	Extra map[string]json.RawMessage `json:"-"`
}

var newCodeFields = []string{"code", "version", "expired_at", "rewards", "discord_uid", "uploader_id", "uploader_name", "uploader_discord_uid"}

func (n *NewCode) UnmarshalJSON(b []byte) error {
	type plain NewCode
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := models.SplitExtra(b, newCodeFields...)
	if err != nil {
		return err
	}
	p.Extra = extra
	*n = NewCode(p)
	return nil
}

type Codes struct {
	Backend   CodesBackend
	Uploaders *cache.Cache[models.Uploader]
	// JoinLimit bounds concurrent uploader lookups during a listing.
	JoinLimit int
}

// List returns the backend listing with uploader_name and uploader_discord_uid filled in.
// Anything that is not a successful array envelope is returned untouched.
func (s *Codes) List(ctx context.Context, f backend.CodeFilter) (*backend.Response, error) {
	l := logging.FromContext(ctx).With("svc", "codes.list")

	resp, err := s.Backend.ListCodes(ctx, f)
	if err != nil || !resp.OK() {
		return resp, err
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return resp, nil
	}
	var ok bool
	if err := json.Unmarshal(env["success"], &ok); err != nil || !ok {
		return resp, nil
	}
	var codes []models.RedeemCode
	if err := json.Unmarshal(env["data"], &codes); err != nil || codes == nil {
		return resp, nil
	}

	names := s.lookupUploaders(ctx, codes)
	for i := range codes {
		if u, found := names[codes[i].UploaderID]; found {
			codes[i].UploaderName = u.Name
			codes[i].UploaderDiscordUID = u.DiscordUID
		}
	}

	data, err := json.Marshal(codes)
	if err != nil {
		l.Error("codes_join_failed", "error", err)
		return resp, nil
	}
	env["data"] = data
	body, err := json.Marshal(env)
	if err != nil {
		l.Error("codes_join_failed", "error", err)
		return resp, nil
	}
	return &backend.Response{Status: resp.Status, Header: resp.Header, Body: body}, nil
}

// lookupUploaders resolves each distinct uploader once. Failed lookups are left out.
func (s *Codes) lookupUploaders(ctx context.Context, codes []models.RedeemCode) map[string]models.Uploader {
	l := logging.FromContext(ctx).With("svc", "codes.join")

	ids := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c.UploaderID == "" {
			continue
		}
		if _, dup := seen[c.UploaderID]; dup {
			continue
		}
		seen[c.UploaderID] = struct{}{}
		ids = append(ids, c.UploaderID)
	}

	found := make([]*models.Uploader, len(ids))
	limit := s.JoinLimit
	if limit <= 0 {
		limit = defaultJoinLimit
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			if u, err := s.Uploaders.Get(gctx, id); err == nil {
				found[i] = u
				return nil
			}
			u, err := s.Backend.GetUploader(gctx, id)
			if err != nil {
				l.Debug("uploader_lookup_failed", "uploader_id", id, "error", err)
				return nil
			}
			found[i] = u
			if err := s.Uploaders.Set(gctx, id, u); err != nil {
				l.Debug("uploader_cache_set_failed", "uploader_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]models.Uploader, len(ids))
	for i, u := range found {
		if u != nil {
			out[ids[i]] = *u
		}
	}
	return out
}

// Create submits a code on behalf of tok's owner. Suspended and banned accounts are refused
// before the backend is called.
func (s *Codes) Create(ctx context.Context, tok session.Token, in NewCode) (*backend.Response, error) {
	if !status.Evaluate(tok.Status).CanCreateCodes {
		return nil, ErrCreateDisabled
	}
	rewards := in.Rewards
	if rewards == nil {
		rewards = []models.CodeReward{}
	}
	return s.Backend.CreateCode(ctx, backend.CreateCodeInput{
		DiscordUID: tok.ExternalID,
		Code:       in.Code,
		Version:    in.Version,
		ExpiredAt:  in.ExpiredAt,
		Rewards:    rewards,
		Extra:      in.Extra,
	})
}
