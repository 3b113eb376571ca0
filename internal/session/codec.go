package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/pkg/tokens"
)

const CookieName = "hub_session"

type Codec struct {
	Secret []byte
	Secure bool
}

func (c Codec) Encode(t Token) (string, error) {
	return tokens.SignSession(tokens.SessionClaims{
		UploaderID:  t.UploaderID,
		Role:        string(t.Role),
		Status:      string(t.Status),
		Name:        t.Name,
		Avatar:      t.Avatar,
		RefreshedAt: t.RefreshedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   t.ExternalID,
			ID:        t.JTI,
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
		},
	}, c.Secret)
}

func (c Codec) Decode(raw string) (Token, error) {
	claims, err := tokens.SessionClaimsFromToken(raw, c.Secret)
	if err != nil {
		return Token{}, err
	}
	t := Token{
		ExternalID:  claims.Subject,
		UploaderID:  claims.UploaderID,
		Role:        models.Role(claims.Role),
		Status:      models.Status(claims.Status),
		Name:        claims.Name,
		Avatar:      claims.Avatar,
		JTI:         claims.ID,
		RefreshedAt: time.Unix(claims.RefreshedAt, 0),
	}
	if claims.IssuedAt != nil {
		t.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		t.ExpiresAt = claims.ExpiresAt.Time
	}
	return t, nil
}

// Cookie wraps the encoded token; it lives as long as the token.
func (c Codec) Cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c Codec) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
