package auth

import "context"

// Store describes persistence operations required by the identity and
// role subsystems. Implementations must enforce uniqueness of usernames,
// emails, case-insensitive role names, and (identity, role) pairs at the
// storage layer so the invariants hold under concurrent writes.
type Store interface {
	CreateIdentity(ctx context.Context, ident Identity) (Identity, error)
	GetIdentity(ctx context.Context, id string) (Identity, error)
	FindIdentityByLogin(ctx context.Context, usernameOrEmail string) (Identity, error)
	UpdateIdentity(ctx context.Context, id string, upd IdentityUpdate) (Identity, error)

	CreateRole(ctx context.Context, role Role) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)

	BindRole(ctx context.Context, identityID, roleID string) (RoleBinding, error)
	RevokeBinding(ctx context.Context, identityID, roleID string) error
	RoleNamesFor(ctx context.Context, identityID string) ([]string, error)
}
