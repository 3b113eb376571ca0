package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Skotchmaster/tachyon_hub/internal/models"
)

const (
	DefaultAuthURL  = "https://discord.com/oauth2/authorize"
	DefaultTokenURL = "https://discord.com/api/oauth2/token"
	DefaultAPIBase  = "https://discord.com/api"
	cdnBase         = "https://cdn.discordapp.com"
)

var (
	ErrExchange = errors.New("oauth code exchange failed")
	ErrProfile  = errors.New("discord profile fetch failed")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides, empty means discord.com.
	AuthURL  string
	TokenURL string
	APIBase  string
	Timeout  time.Duration
}

type Discord struct {
	cfg     *oauth2.Config
	apiBase string
	client  *http.Client
}

func NewDiscord(c Config) *Discord {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return &Discord{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Scopes:       []string{"identify", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBase: strings.TrimRight(c.APIBase, "/"),
		client:  &http.Client{Timeout: c.Timeout},
	}
}

func (d *Discord) AuthCodeURL(state string) string {
	return d.cfg.AuthCodeURL(state)
}

// Login exchanges the authorization code and returns the caller's Discord profile.
func (d *Discord) Login(ctx context.Context, code string) (*models.DiscordProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.client)
	tok, err := d.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	return d.Profile(ctx, tok)
}

func (d *Discord) Profile(ctx context.Context, tok *oauth2.Token) (*models.DiscordProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.client)
	hc := d.cfg.Client(ctx, tok)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiBase+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfile, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfile, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrProfile, resp.StatusCode)
	}

	var raw struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		GlobalName    string `json:"global_name"`
		Avatar        string `json:"avatar"`
		Discriminator string `json:"discriminator"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrProfile, err)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrProfile)
	}

	return &models.DiscordProfile{
		ID:          raw.ID,
		Username:    raw.Username,
		DisplayName: raw.GlobalName,
		Avatar:      raw.Avatar,
		Image:       AvatarURL(raw.ID, raw.Avatar, raw.Discriminator),
	}, nil
}

// AvatarURL resolves the CDN image for a user, falling back to the default embed avatars.
func AvatarURL(id, avatar, discriminator string) string {
	if avatar != "" {
		ext := "png"
		if strings.HasPrefix(avatar, "a_") {
			ext = "gif"
		}
		return fmt.Sprintf("%s/avatars/%s/%s.%s", cdnBase, id, avatar, ext)
	}
	var idx uint64
	if discriminator == "" || discriminator == "0" {
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			idx = (n >> 22) % 6
		}
	} else if n, err := strconv.ParseUint(discriminator, 10, 64); err == nil {
		idx = n % 5
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnBase, idx)
}
