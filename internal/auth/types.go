package auth

import "time"

const (
	// AdminRole passes every role gate regardless of the required set.
	AdminRole = "admin"
)

// Identity represents a person who can authenticate against the system.
// Identities are deactivated rather than deleted so audit rows keep a
// valid actor reference.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	Superuser    bool      `json:"superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named permission bucket. Names compare case-insensitively.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleBinding associates one identity with one role. At most one binding
// exists per (identity, role) pair; the persistence layer enforces this.
type RoleBinding struct {
	IdentityID string    `json:"identity_id"`
	RoleID     string    `json:"role_id"`
	RoleName   string    `json:"role_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdentityUpdate carries optional identity mutations.
type IdentityUpdate struct {
	DisplayName  *string
	PasswordHash *string
	Active       *bool
}
