// Package invite implements the invite-only onboarding flow. Each
// invite targets one email and one role, carries a random token handed
// to the invitee exactly once, and is consumed at most once. Only a
// SHA-256 hash of the token is stored.
package invite

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is applied when an invite is issued without an explicit
// expiry.
const DefaultTTL = 7 * 24 * time.Hour

const tokenBytes = 32

var (
	// ErrNotFound indicates no invite matches the presented token.
	ErrNotFound = errors.New("invite not found")
	// ErrExpired indicates the invite exists but its deadline passed.
	ErrExpired = errors.New("invite expired")
	// ErrAlreadyUsed indicates the invite was already consumed.
	ErrAlreadyUsed = errors.New("invite already used")
)

// Invite is a stored invitation. TokenHash is the hex SHA-256 of the
// raw token; the raw token itself is never persisted.
type Invite struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	RoleID     string     `json:"role_id"`
	RoleName   string     `json:"role_name"`
	TokenHash  string     `json:"-"`
	IssuedBy   string     `json:"issued_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Consumed reports whether the invite was redeemed.
func (inv Invite) Consumed() bool { return inv.ConsumedAt != nil }

// Expired reports whether the invite deadline passed at the given time.
func (inv Invite) Expired(at time.Time) bool { return at.After(inv.ExpiresAt) }

func newToken() (raw, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate invite token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken returns the stored form of a raw invite token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
