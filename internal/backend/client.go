package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	UserAgent  = "Tachyon-Hub/1.0"
	APIPrefix  = "/api/v1"
	maxBodyLen = 8 << 20
)

var (
	ErrUnavailable    = errors.New("backend unavailable")
	ErrCircuitOpen    = errors.New("circuit open")
	ErrNotFound       = errors.New("not found")
	ErrMissingAuthKey = errors.New("AUTH_KEY is not configured")
	ErrMissingAPIKey  = errors.New("DEFAULT_API_KEY is not configured")
)

// Credential selects which server-held secret is attached to an outbound call.
type Credential int

const (
	// AdminKey sends AUTH_KEY in the Authorization header.
	AdminKey Credential = iota
	// APIKey sends DEFAULT_API_KEY in the x-api-key header.
	APIKey
)

type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend status %d", e.Code)
	}
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Message)
}

// Response is a buffered backend answer, relayed to the browser as is.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// ErrorMessage extracts the backend's {"error": "..."} text, if any.
func (r *Response) ErrorMessage() string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return ""
	}
	if env.Error != "" {
		return env.Error
	}
	return env.Message
}

type Options struct {
	BaseURL string
	AuthKey string
	APIKey  string
	Timeout time.Duration
	// HealthTimeout bounds the health probe, which bypasses the breaker.
	HealthTimeout time.Duration
	Breaker       *gobreaker.CircuitBreaker
	// Transport overrides the pooled transport, mostly for tests.
	Transport http.RoundTripper
}

type Client struct {
	baseURL    string
	authKey    string
	apiKey     string
	httpClient *http.Client
	healthHTTP *http.Client
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	rt := opts.Transport
	if rt == nil {
		rt = BaseTransport(opts.Timeout)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		authKey: opts.AuthKey,
		apiKey:  opts.APIKey,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: WithBreaker(rt, opts.Breaker),
		},
		healthHTTP: &http.Client{
			Timeout:   opts.HealthTimeout,
			Transport: rt,
		},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// CredentialHeader returns the header to attach for cred, or a configuration error when the secret is unset.
func (c *Client) CredentialHeader(cred Credential) (name, value string, err error) {
	switch cred {
	case AdminKey:
		if c.authKey == "" {
			return "", "", ErrMissingAuthKey
		}
		return "Authorization", c.authKey, nil
	case APIKey:
		if c.apiKey == "" {
			return "", "", ErrMissingAPIKey
		}
		return "x-api-key", c.apiKey, nil
	}
	return "", "", fmt.Errorf("unknown credential %d", cred)
}

// Do calls the backend at APIPrefix+path. Non-2xx answers are not errors; callers inspect Response.Status.
func (c *Client) Do(ctx context.Context, method, path string, cred Credential, body io.Reader, contentType string) (*Response, error) {
	name, value, err := c.CredentialHeader(cred)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, c.httpClient, method, APIPrefix+path, name, value, body, contentType)
}

func (c *Client) DoJSON(ctx context.Context, method, path string, cred Credential, payload any) (*Response, error) {
	var body io.Reader
	ct := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
		ct = "application/json"
	}
	return c.Do(ctx, method, path, cred, body, ct)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, fullPath, hName, hValue string, body io.Reader, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+fullPath, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if hName != "" {
		req.Header.Set(hName, hValue)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLen))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: data}, nil
}

// decodeData unwraps {"success":true,"data":...} from a 2xx response.
func decodeData[T any](resp *Response) (T, error) {
	var zero T
	if resp.Status == http.StatusNotFound {
		return zero, ErrNotFound
	}
	if !resp.OK() {
		return zero, &StatusError{Code: resp.Status, Message: resp.ErrorMessage()}
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success || len(env.Data) == 0 || string(env.Data) == "null" {
		return zero, ErrNotFound
	}
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return zero, fmt.Errorf("decode data: %w", err)
	}
	return out, nil
}
