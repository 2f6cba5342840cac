package invite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
	"clinicore.org/internal/ids"
)

// MemoryStore is an in-memory invite Store for tests and DSN-less
// runs. Redemption takes the same lock as the invite table so that
// concurrent redemptions of one token succeed at most once.
type MemoryStore struct {
	mu      sync.Mutex
	invites map[string]Invite // keyed by token hash
	auth    *auth.MemoryStore
	events  audit.Appender
}

// NewMemoryStore wires a MemoryStore to the in-memory auth and audit
// stores so RedeemInvite can mutate all three together.
func NewMemoryStore(authStore *auth.MemoryStore, events audit.Appender) *MemoryStore {
	return &MemoryStore{
		invites: make(map[string]Invite),
		auth:    authStore,
		events:  events,
	}
}

func (m *MemoryStore) CreateInvite(_ context.Context, inv Invite) (Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[inv.TokenHash]; ok {
		return Invite{}, fmt.Errorf("%w: duplicate invite token", auth.ErrConflict)
	}
	inv.ID = ids.New()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	m.invites[inv.TokenHash] = inv
	return inv, nil
}

func (m *MemoryStore) FindInviteByHash(_ context.Context, tokenHash string) (Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[tokenHash]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

func (m *MemoryStore) ListInvites(_ context.Context, limit int) ([]Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	out := make([]Invite, 0, len(m.invites))
	for _, inv := range m.invites {
		out = append(out, inv)
	}
	// Newest first, matching the pg store's ordering.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) RedeemInvite(ctx context.Context, p RedeemParams) (auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[p.TokenHash]
	if !ok {
		return auth.Identity{}, ErrNotFound
	}
	if inv.ConsumedAt != nil {
		return auth.Identity{}, ErrAlreadyUsed
	}

	// A deactivated identity on the invite's email is reactivated with
	// the new credential; an active one is a conflict.
	var ident auth.Identity
	existing, err := m.auth.FindIdentityByLogin(ctx, p.Identity.Email)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		if ident, err = m.auth.CreateIdentity(ctx, p.Identity); err != nil {
			return auth.Identity{}, err
		}
	case err != nil:
		return auth.Identity{}, err
	case existing.Active:
		return auth.Identity{}, fmt.Errorf("%w: email already registered", auth.ErrConflict)
	default:
		active := true
		if ident, err = m.auth.UpdateIdentity(ctx, existing.ID, auth.IdentityUpdate{
			PasswordHash: &p.Identity.PasswordHash,
			Active:       &active,
		}); err != nil {
			return auth.Identity{}, err
		}
	}
	if _, err := m.auth.BindRole(ctx, ident.ID, p.RoleID); err != nil && !errors.Is(err, auth.ErrConflict) {
		return auth.Identity{}, err
	}

	ev := p.Event
	ev.ActorID = ident.ID
	if _, err := m.events.AppendEvent(ctx, ev); err != nil {
		return auth.Identity{}, err
	}

	now := time.Now().UTC()
	inv.ConsumedAt = &now
	m.invites[p.TokenHash] = inv
	return ident, nil
}

var _ Store = (*MemoryStore)(nil)
