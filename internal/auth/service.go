package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service provides identity lifecycle and authentication on top of a
// Store. It never deletes identities; deactivation preserves audit
// referential integrity.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// NewIdentity carries the fields needed to create an identity.
type NewIdentity struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	Superuser   bool
}

// CreateIdentity registers a new active identity with a hashed credential.
func (s *Service) CreateIdentity(ctx context.Context, in NewIdentity) (Identity, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return Identity{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password := strings.TrimSpace(in.Password)
	if password == "" {
		return Identity{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Identity{}, err
	}
	return s.store.CreateIdentity(ctx, Identity{
		Username:     username,
		Email:        email,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: hash,
		Active:       true,
		Superuser:    in.Superuser,
	})
}

// Authenticate resolves a username-or-email login and verifies the
// credential. Unknown logins, wrong passwords and inactive identities
// all surface as ErrAuthentication so callers cannot distinguish them.
func (s *Service) Authenticate(ctx context.Context, login, password string) (Identity, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return Identity{}, ErrAuthentication
	}
	ident, err := s.store.FindIdentityByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrAuthentication
		}
		return Identity{}, err
	}
	if !ident.Active {
		return Identity{}, ErrAuthentication
	}
	if err := VerifyPassword(ident.PasswordHash, password); err != nil {
		return Identity{}, ErrAuthentication
	}
	return ident, nil
}

// Get loads an identity by id.
func (s *Service) Get(ctx context.Context, id string) (Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	return s.store.GetIdentity(ctx, id)
}

// SetPassword replaces the stored credential.
func (s *Service) SetPassword(ctx context.Context, id, password string) error {
	password = strings.TrimSpace(password)
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.store.UpdateIdentity(ctx, id, IdentityUpdate{PasswordHash: &hash})
	return err
}

// SetActive toggles the active flag. Deactivation is the only supported
// removal path.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (Identity, error) {
	return s.store.UpdateIdentity(ctx, id, IdentityUpdate{Active: &active})
}
