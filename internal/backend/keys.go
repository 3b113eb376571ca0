package backend

import (
	"context"
	"net/http"
	"net/url"
)

type CreateKeyInput struct {
	Name        string `json:"name"`
	DiscordUID  string `json:"discord_uid"`
	Description string `json:"description"`
}

func (c *Client) GetKeyByDiscord(ctx context.Context, discordID string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/admin/keys/discord/"+url.PathEscape(discordID), AdminKey, nil, "")
}

func (c *Client) CreateKey(ctx context.Context, in CreateKeyInput) (*Response, error) {
	return c.DoJSON(ctx, http.MethodPost, "/admin/keys", AdminKey, in)
}

func (c *Client) DeleteKeyByDiscord(ctx context.Context, discordID string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, "/admin/keys/discord/"+url.PathEscape(discordID), AdminKey, nil, "")
}
