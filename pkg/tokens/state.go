package tokens

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// StateClaims binds an OAuth state nonce (ID) to the browser that started the login.
type StateClaims struct {
	Next string `json:"next,omitempty"`
	jwt.RegisteredClaims
}

func SignState(claims StateClaims, secret []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return s, nil
}

func StateClaimsFromToken(tokenStr string, secret []byte) (*StateClaims, error) {
	var claims StateClaims
	if err := parse(tokenStr, &claims, secret); err != nil {
		return nil, err
	}
	return &claims, nil
}
