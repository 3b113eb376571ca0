package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Skotchmaster/tachyon_hub/internal/models"
)

type CreateUploaderInput struct {
	Name       string        `json:"name"`
	DiscordUID string        `json:"discord_uid"`
	Status     models.Status `json:"status"`
}

func (c *Client) GetUploaderByDiscord(ctx context.Context, discordID string) (*models.Uploader, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/uploaders/discord/"+url.PathEscape(discordID), AdminKey, nil, "")
	if err != nil {
		return nil, err
	}
	u, err := decodeData[models.Uploader](resp)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUploader is the public lookup used to join uploader names onto codes.
func (c *Client) GetUploader(ctx context.Context, id string) (*models.Uploader, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/uploaders/"+url.PathEscape(id), APIKey, nil, "")
	if err != nil {
		return nil, err
	}
	u, err := decodeData[models.Uploader](resp)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) CreateUploader(ctx context.Context, in CreateUploaderInput) (*Response, error) {
	return c.DoJSON(ctx, http.MethodPost, "/uploaders", AdminKey, in)
}

func (c *Client) ListUploaders(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/uploaders", AdminKey, nil, "")
}

func (c *Client) UpdateUploaderStatus(ctx context.Context, id string, status models.Status) (*Response, error) {
	return c.DoJSON(ctx, http.MethodPatch, "/uploaders/"+url.PathEscape(id)+"/status", AdminKey, map[string]models.Status{"status": status})
}
