package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clinicore.org/internal/ids"
)

// MemoryStore is an in-memory Store implementation. It backs tests and
// DSN-less development runs and enforces the same uniqueness rules as
// the Postgres schema.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[string]Identity
	roles      map[string]Role
	bindings   map[string]map[string]RoleBinding // identityID -> roleID
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]Identity),
		roles:      make(map[string]Role),
		bindings:   make(map[string]map[string]RoleBinding),
	}
}

func (m *MemoryStore) CreateIdentity(_ context.Context, ident Identity) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if strings.EqualFold(existing.Username, ident.Username) {
			return Identity{}, fmt.Errorf("%w: username already taken", ErrConflict)
		}
		if strings.EqualFold(existing.Email, ident.Email) {
			return Identity{}, fmt.Errorf("%w: email already registered", ErrConflict)
		}
	}
	now := time.Now().UTC()
	ident.ID = ids.New()
	ident.CreatedAt = now
	ident.UpdatedAt = now
	m.identities[ident.ID] = ident
	return ident, nil
}

func (m *MemoryStore) GetIdentity(_ context.Context, id string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.identities[id]
	if !ok {
		return Identity{}, fmt.Errorf("%w: identity %s", ErrNotFound, id)
	}
	return ident, nil
}

func (m *MemoryStore) FindIdentityByLogin(_ context.Context, login string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.identities {
		if strings.EqualFold(ident.Username, login) || strings.EqualFold(ident.Email, login) {
			return ident, nil
		}
	}
	return Identity{}, fmt.Errorf("%w: no identity for login", ErrNotFound)
}

func (m *MemoryStore) UpdateIdentity(_ context.Context, id string, upd IdentityUpdate) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.identities[id]
	if !ok {
		return Identity{}, fmt.Errorf("%w: identity %s", ErrNotFound, id)
	}
	if upd.DisplayName != nil {
		ident.DisplayName = *upd.DisplayName
	}
	if upd.PasswordHash != nil {
		ident.PasswordHash = *upd.PasswordHash
	}
	if upd.Active != nil {
		ident.Active = *upd.Active
	}
	ident.UpdatedAt = time.Now().UTC()
	m.identities[id] = ident
	return ident, nil
}

func (m *MemoryStore) CreateRole(_ context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return Role{}, fmt.Errorf("%w: role %q already exists", ErrConflict, role.Name)
		}
	}
	role.ID = ids.New()
	role.CreatedAt = time.Now().UTC()
	m.roles[role.ID] = role
	return role, nil
}

func (m *MemoryStore) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) FindRoleByName(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if strings.EqualFold(role.Name, name) {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("%w: role %q", ErrNotFound, name)
}

func (m *MemoryStore) BindRole(_ context.Context, identityID, roleID string) (RoleBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[identityID]; !ok {
		return RoleBinding{}, fmt.Errorf("%w: identity %s", ErrNotFound, identityID)
	}
	role, ok := m.roles[roleID]
	if !ok {
		return RoleBinding{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	byRole := m.bindings[identityID]
	if byRole == nil {
		byRole = make(map[string]RoleBinding)
		m.bindings[identityID] = byRole
	}
	if _, ok := byRole[roleID]; ok {
		return RoleBinding{}, fmt.Errorf("%w: role already bound", ErrConflict)
	}
	binding := RoleBinding{
		IdentityID: identityID,
		RoleID:     roleID,
		RoleName:   role.Name,
		CreatedAt:  time.Now().UTC(),
	}
	byRole[roleID] = binding
	return binding, nil
}

func (m *MemoryStore) RevokeBinding(_ context.Context, identityID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byRole := m.bindings[identityID]
	if _, ok := byRole[roleID]; !ok {
		return fmt.Errorf("%w: no such binding", ErrNotFound)
	}
	delete(byRole, roleID)
	return nil
}

func (m *MemoryStore) RoleNamesFor(_ context.Context, identityID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byRole := m.bindings[identityID]
	names := make([]string, 0, len(byRole))
	for _, binding := range byRole {
		names = append(names, binding.RoleName)
	}
	sort.Strings(names)
	return names, nil
}

var _ Store = (*MemoryStore)(nil)
