package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/Skotchmaster/tachyon_hub/internal/models"
)

type CodeFilter struct {
	Active  string
	Reward  string
	Version string
}

func (f CodeFilter) query() string {
	q := url.Values{}
	if f.Active != "" {
		q.Set("active", f.Active)
	}
	if f.Reward != "" {
		q.Set("reward", f.Reward)
	}
	if f.Version != "" {
		q.Set("version", f.Version)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// CreateCodeInput is the create body. Extra members are sent as well but never replace a
// declared field.
type CreateCodeInput struct {
	DiscordUID string              `json:"discord_uid"`
	Code       string              `json:"code"`
	Version    string              `json:"version,omitempty"`
	ExpiredAt  *string             `json:"expired_at,omitempty"`
	Rewards    []models.CodeReward `json:"rewards"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (in CreateCodeInput) MarshalJSON() ([]byte, error) {
	type plain CreateCodeInput
	b, err := json.Marshal(plain(in))
	if err != nil {
		return nil, err
	}
	return models.MergeExtra(b, in.Extra)
}

func (c *Client) ListCodes(ctx context.Context, f CodeFilter) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/strinova/code"+f.query(), APIKey, nil, "")
}

func (c *Client) CreateCode(ctx context.Context, in CreateCodeInput) (*Response, error) {
	return c.DoJSON(ctx, http.MethodPost, "/strinova/code", APIKey, in)
}
