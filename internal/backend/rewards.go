package backend

import (
	"context"
	"net/http"
)

// ListRewards is public; reward mutations carry multipart bodies and go through the reverse proxy.
func (c *Client) ListRewards(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/rewards", APIKey, nil, "")
}
