package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Registry manages roles and role bindings. It is an explicit component
// injected where needed; there is no process-wide role state.
type Registry struct {
	store Store
}

// NewRegistry constructs a Registry over the given store.
func NewRegistry(store Store) (*Registry, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	return &Registry{store: store}, nil
}

// CreateRole registers a new named role. Names are unique
// case-insensitively; the store enforces the constraint.
func (r *Registry) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return r.store.CreateRole(ctx, Role{Name: name, Description: strings.TrimSpace(description)})
}

// ListRoles returns all registered roles.
func (r *Registry) ListRoles(ctx context.Context) ([]Role, error) {
	return r.store.ListRoles(ctx)
}

// FindRole resolves a role by name, case-insensitively.
func (r *Registry) FindRole(ctx context.Context, name string) (Role, error) {
	name = NormalizeRole(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return r.store.FindRoleByName(ctx, name)
}

// Bind associates an identity with a role. A duplicate pair surfaces as
// ErrConflict from the store's uniqueness constraint.
func (r *Registry) Bind(ctx context.Context, identityID, roleID string) (RoleBinding, error) {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return RoleBinding{}, fmt.Errorf("%w: identity_id and role_id are required", ErrInvalidInput)
	}
	return r.store.BindRole(ctx, identityID, roleID)
}

// Revoke removes a binding.
func (r *Registry) Revoke(ctx context.Context, identityID, roleID string) error {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return fmt.Errorf("%w: identity_id and role_id are required", ErrInvalidInput)
	}
	return r.store.RevokeBinding(ctx, identityID, roleID)
}

// RoleNamesFor returns the normalized role names bound to an identity,
// always read from current state.
func (r *Registry) RoleNamesFor(ctx context.Context, identityID string) ([]string, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	names, err := r.store.RoleNamesFor(ctx, identityID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = NormalizeRole(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
