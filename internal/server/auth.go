package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is the iss claim of every token fleetscope issues.
const tokenIssuer = "fleetscope"

// minSecretLen is the shortest accepted HMAC secret, in bytes.
const minSecretLen = 32

// ErrWeakSecret is returned for an auth secret shorter than minSecretLen.
var ErrWeakSecret = fmt.Errorf("auth secret must be at least %d bytes", minSecretLen)

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator keyed by secret.
func NewAuthenticator(secret string) (*Authenticator, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for subject that expires after ttl.
func (a *Authenticator) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks signature, issuer and expiry and returns the claims.
func (a *Authenticator) Verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// requireToken wraps next so it only runs with a valid bearer token. A nil
// Authenticator refuses every request.
func requireToken(a *Authenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			Unavailable(w, "authentication is not configured; set server.auth_secret", r.URL.Path)
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			Unauthorized(w, "bearer token required", r.URL.Path)
			return
		}
		if _, err := a.Verify(strings.TrimSpace(raw)); err != nil {
			Unauthorized(w, "invalid token", r.URL.Path)
			return
		}
		next(w, r)
	}
}
