package invite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

// Service issues and redeems invites. Issue is restricted to admins by
// the HTTP layer; redemption is the only unauthenticated write path in
// the system.
type Service struct {
	store    Store
	roles    auth.Store
	recorder *audit.Recorder
	now      func() time.Time
	ttl      time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides the default invite lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs an invite Service.
func NewService(store Store, roles auth.Store, recorder *audit.Recorder, opts ...Option) (*Service, error) {
	if store == nil || roles == nil || recorder == nil {
		return nil, errors.New("invite service requires store, role store and recorder")
	}
	svc := &Service{store: store, roles: roles, recorder: recorder, now: time.Now, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IssueParams carries the fields for a new invite.
type IssueParams struct {
	Email    string
	RoleName string
	IssuedBy string
}

// Issue creates an invite and returns it with the raw token. The raw
// token is shown to the caller exactly once and never stored.
func (s *Service) Issue(ctx context.Context, p IssueParams) (Invite, string, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" || !strings.Contains(email, "@") {
		return Invite{}, "", fmt.Errorf("%w: valid email is required", auth.ErrInvalidInput)
	}
	role, err := s.roles.FindRoleByName(ctx, p.RoleName)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return Invite{}, "", fmt.Errorf("%w: unknown role %q", auth.ErrInvalidInput, p.RoleName)
		}
		return Invite{}, "", err
	}
	raw, hash, err := newToken()
	if err != nil {
		return Invite{}, "", err
	}
	now := s.now().UTC()
	inv, err := s.store.CreateInvite(ctx, Invite{
		Email:     email,
		RoleID:    role.ID,
		RoleName:  role.Name,
		TokenHash: hash,
		IssuedBy:  p.IssuedBy,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return Invite{}, "", err
	}
	if _, err := s.recorder.Record(ctx, audit.Event{
		ActorID:    p.IssuedBy,
		Action:     audit.ActionInviteIssued,
		ObjectType: "invite",
		ObjectID:   inv.ID,
	}); err != nil {
		return Invite{}, "", err
	}
	return inv, raw, nil
}

// Registration carries the invitee's chosen credentials.
type Registration struct {
	Username    string
	DisplayName string
	Password    string
}

// Redeem consumes an invite and creates the invited identity, or
// reactivates a deactivated one holding the invite's email, with the
// invited role bound. The consume, identity write, role binding and
// acceptance event are committed atomically by the store.
func (s *Service) Redeem(ctx context.Context, token string, reg Registration) (auth.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Identity{}, ErrNotFound
	}
	username := strings.TrimSpace(reg.Username)
	if username == "" {
		return auth.Identity{}, fmt.Errorf("%w: username is required", auth.ErrInvalidInput)
	}
	password := strings.TrimSpace(reg.Password)
	if password == "" {
		return auth.Identity{}, fmt.Errorf("%w: password is required", auth.ErrInvalidInput)
	}

	hash := HashToken(token)
	inv, err := s.store.FindInviteByHash(ctx, hash)
	if err != nil {
		return auth.Identity{}, err
	}
	if inv.Consumed() {
		return auth.Identity{}, ErrAlreadyUsed
	}
	if inv.Expired(s.now().UTC()) {
		return auth.Identity{}, ErrExpired
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return auth.Identity{}, err
	}
	// The acceptance event is inserted by the store inside the
	// redemption transaction, bypassing the Recorder, so request
	// attribution is stamped here.
	ev := audit.Event{
		Action:     audit.ActionInviteAccepted,
		ObjectType: "invite",
		ObjectID:   inv.ID,
		CreatedAt:  s.now().UTC(),
	}
	if meta, ok := audit.MetaFromContext(ctx); ok {
		ev.IP = meta.IP
		ev.UserAgent = meta.UserAgent
		ev.UASummary = audit.SummarizeUserAgent(meta.UserAgent)
		ev.RequestID = meta.RequestID
	}
	ident, err := s.store.RedeemInvite(ctx, RedeemParams{
		TokenHash: hash,
		Identity: auth.Identity{
			Username:     username,
			Email:        inv.Email,
			DisplayName:  strings.TrimSpace(reg.DisplayName),
			PasswordHash: passwordHash,
			Active:       true,
		},
		RoleID: inv.RoleID,
		Event:  ev,
	})
	if err != nil {
		return auth.Identity{}, err
	}
	return ident, nil
}

// List returns recent invites for administrative review.
func (s *Service) List(ctx context.Context, limit int) ([]Invite, error) {
	return s.store.ListInvites(ctx, limit)
}
