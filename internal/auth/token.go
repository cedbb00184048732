// Package auth supplies the bearer token the signaling relay expects. The
// relay performs the real verification; this side only refuses to dial with
// a token it already knows is unusable.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when no usable auth token is available.
var ErrNoToken = errors.New("no auth token available")

// TokenProvider yields the current bearer token for the signaling relay.
type TokenProvider interface {
	Token() (string, error)
}

// Static wraps a fixed token string (CLI flag or env var).
type Static string

// Token returns the wrapped token, or ErrNoToken when empty.
func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// JWT is a TokenProvider that inspects the token's registered claims before
// handing it out, so an expired token fails fast instead of costing a dial.
// The signature is not verified here; only the relay holds the secret.
type JWT struct {
	Raw string

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Token returns the raw token if it parses and has not expired.
func (j *JWT) Token() (string, error) {
	if j.Raw == "" {
		return "", ErrNoToken
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(j.Raw, &claims); err != nil {
		return "", fmt.Errorf("malformed auth token: %w", err)
	}

	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now()) {
		return "", fmt.Errorf("%w: token expired at %s", ErrNoToken, claims.ExpiresAt)
	}

	return j.Raw, nil
}
