package tokens

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the signed form of a dashboard session. Subject holds the Discord user id and
// ID the session jti.
type SessionClaims struct {
	UploaderID  string `json:"uploader_id,omitempty"`
	Role        string `json:"role,omitempty"`
	Status      string `json:"status,omitempty"`
	Name        string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	RefreshedAt int64  `json:"rat"`
	jwt.RegisteredClaims
}

func SignSession(claims SessionClaims, secret []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return s, nil
}

func SessionClaimsFromToken(tokenStr string, secret []byte) (*SessionClaims, error) {
	var claims SessionClaims
	if err := parse(tokenStr, &claims, secret); err != nil {
		return nil, err
	}
	return &claims, nil
}

func parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tkn.Valid {
		return ErrInvalidToken
	}
	return nil
}
