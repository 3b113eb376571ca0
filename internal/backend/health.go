package backend

import (
	"context"
	"net/http"
)

// Health probes the backend root. It bypasses the circuit breaker so a recovering backend is
// noticed, and is bounded by Options.HealthTimeout.
func (c *Client) Health(ctx context.Context) (*Response, error) {
	name, value, err := c.CredentialHeader(APIKey)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, c.healthHTTP, http.MethodGet, "/", name, value, nil, "")
}
