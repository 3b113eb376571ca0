package service

import (
	"context"
	"strings"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/session"
)

const (
	defaultKeyName        = "User API Key"
	defaultKeyDescription = "Auto-generated API key"
)

type KeysBackend interface {
	CreateKey(ctx context.Context, in backend.CreateKeyInput) (*backend.Response, error)
}

type NewKey struct {
	Name        string `json:"name" validate:"max=100"`
	Description string `json:"description" validate:"max=500"`
}

type Keys struct {
	Backend KeysBackend
}

// Create issues a key bound to the session owner. Name falls back to the session name.
func (s *Keys) Create(ctx context.Context, tok session.Token, in NewKey) (*backend.Response, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = tok.Name
	}
	if name == "" {
		name = defaultKeyName
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		desc = defaultKeyDescription
	}
	return s.Backend.CreateKey(ctx, backend.CreateKeyInput{
		Name:        name,
		DiscordUID:  tok.ExternalID,
		Description: desc,
	})
}
