package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NathanYKo/RAG-Document-System/config"
	"github.com/NathanYKo/RAG-Document-System/services"
)

// TokenIssuer signs and verifies HS256 access tokens. The subject claim
// carries the username; everything else about the account is loaded fresh
// on each request so deactivation takes effect immediately.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

func NewTokenIssuer(cfg config.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(cfg.TokenSecret()),
		expiry: cfg.TokenExpiry,
	}
}

// Issue creates a signed access token for the username
func (i *TokenIssuer) Issue(username string) (token string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(i.expiry)

	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, services.WrapInternal("failed to sign access token", err)
	}
	return signed, expiresAt, nil
}

// ExpirySeconds returns the configured token lifetime in whole seconds
func (i *TokenIssuer) ExpirySeconds() int {
	return int(i.expiry.Seconds())
}

// Verify validates a token and returns its subject username
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", services.ErrTokenExpired
		}
		return "", services.ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return "", services.ErrInvalidToken
	}
	return claims.Subject, nil
}
