// Package auth issues and verifies the signed identity tokens clients may
// present in the login handshake. Full session management and third-party
// login flows live outside this process.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDisabled is returned when token login is attempted without a
// configured signing secret.
var ErrDisabled = errors.New("token login disabled")

// Tokens signs and verifies identity tokens with an HMAC secret. A zero
// secret disables token login; clients then log in with a raw identity.
type Tokens struct {
	secret []byte
	expiry time.Duration
}

// NewTokens builds a token helper. expiry <= 0 issues non-expiring tokens.
func NewTokens(secret string, expiry time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a signing secret is configured.
func (t *Tokens) Enabled() bool {
	return len(t.secret) > 0
}

// Issue creates a signed token with "sub" = playerID.
func (t *Tokens) Issue(playerID string) (string, error) {
	if !t.Enabled() {
		return "", ErrDisabled
	}
	claims := jwt.MapClaims{"sub": playerID}
	if t.expiry > 0 {
		claims["exp"] = time.Now().Add(t.expiry).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify parses a token string and returns the "sub" identity.
func (t *Tokens) Verify(tokenString string) (string, error) {
	if !t.Enabled() {
		return "", ErrDisabled
	}
	tok, err := jwt.Parse(tokenString, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !tok.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
