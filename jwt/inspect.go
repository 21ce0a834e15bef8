package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a token is not a decodable JWT. Opaque tokens
// are legal bearer credentials; callers treat this as "no claims".
var ErrNotJWT = errors.New("token is not a jwt")

// Claims is the subset of token claims the client displays.
type Claims struct {
	Subject   string
	Role      string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	UID  string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Inspect decodes token claims without verifying the signature.
func Inspect(token string) (Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	c := Claims{
		Subject: tc.Subject,
		Role:    tc.Role,
		ID:      tc.RegisteredClaims.ID,
	}
	if c.Subject == "" {
		c.Subject = tc.UID
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c, nil
}

// Expired reports whether the token carries an expiry at or before now.
// Tokens without exp never expire client-side.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ExpiresIn returns the time left before expiry, zero when expired or when
// the token has no exp claim.
func (c Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() || c.Expired(now) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Fingerprint returns a short, non-reversible identifier for logging.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
