package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"

	"github.com/lox/vrfjack/internal/ledger"
)

// MinSecretLength is the shortest HMAC secret accepted for signing tokens
const MinSecretLength = 16

// NewTokenAuth creates an HS256 signer and verifier for caller tokens
func NewTokenAuth(secret string) (*jwtauth.JWTAuth, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	return jwtauth.New("HS256", []byte(secret), nil), nil
}

// IssueToken signs a token whose subject is account
func IssueToken(auth *jwtauth.JWTAuth, account ledger.AccountID, ttl time.Duration, now time.Time) (string, error) {
	if account == "" {
		return "", errors.New("account is required")
	}
	claims := map[string]interface{}{"sub": string(account)}
	jwtauth.SetIssuedAt(claims, now)
	if ttl > 0 {
		jwtauth.SetExpiry(claims, now.Add(ttl))
	}
	_, token, err := auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// caller returns the account named by the verified token's subject
func caller(r *http.Request) (ledger.AccountID, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errUnauthorized
	}
	return ledger.AccountID(sub), nil
}
