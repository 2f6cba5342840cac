package auth

import (
	"context"
	"errors"
	"testing"
)

func seedIdentity(t *testing.T, store *MemoryStore, username string, superuser bool) Identity {
	t.Helper()
	ident, err := store.CreateIdentity(context.Background(), Identity{
		Username:     username,
		Email:        username + "@clinic.test",
		PasswordHash: "x",
		Active:       true,
		Superuser:    superuser,
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return ident
}

func seedRole(t *testing.T, store *MemoryStore, name string) Role {
	t.Helper()
	role, err := store.CreateRole(context.Background(), Role{Name: name})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	return role
}

func bind(t *testing.T, store *MemoryStore, ident Identity, role Role) {
	t.Helper()
	if _, err := store.BindRole(context.Background(), ident.ID, role.ID); err != nil {
		t.Fatalf("bind role: %v", err)
	}
}

func TestAuthorizeSuperuserAllowsAnything(t *testing.T) {
	store := NewMemoryStore()
	root := seedIdentity(t, store, "root", true)
	eval, err := NewEvaluator(store)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	decision, err := eval.Authorize(context.Background(), root, "clinician", "billing")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected superuser allow, got deny: %s", decision.Reason)
	}
}

func TestAuthorizeEmptyRequirementAllows(t *testing.T) {
	store := NewMemoryStore()
	ident := seedIdentity(t, store, "nobody", false)
	eval, err := NewEvaluator(store)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	decision, err := eval.Authorize(context.Background(), ident)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow for empty requirement, got deny: %s", decision.Reason)
	}
}

func TestAuthorizeAdminRoleOverrides(t *testing.T) {
	store := NewMemoryStore()
	ident := seedIdentity(t, store, "ops", false)
	admin := seedRole(t, store, "admin")
	bind(t, store, ident, admin)
	eval, err := NewEvaluator(store)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	decision, err := eval.Authorize(context.Background(), ident, "clinician")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected admin override allow, got deny: %s", decision.Reason)
	}
}

func TestAuthorizeCaseInsensitiveMatch(t *testing.T) {
	store := NewMemoryStore()
	ident := seedIdentity(t, store, "drjones", false)
	role := seedRole(t, store, "Clinician")
	bind(t, store, ident, role)
	eval, err := NewEvaluator(store)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	decision, err := eval.Authorize(context.Background(), ident, "clinician")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected case-folded match allow, got deny: %s", decision.Reason)
	}
}

func TestAuthorizeNoBindingsDenies(t *testing.T) {
	store := NewMemoryStore()
	ident := seedIdentity(t, store, "intern", false)
	eval, err := NewEvaluator(store)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	decision, err := eval.Authorize(context.Background(), ident, "clinician")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected deny for identity without bindings")
	}
}

func TestAuthorizeUnrelatedRoleDenies(t *testing.T) {
	store := NewMemoryStore()
	ident := seedIdentity(t, store, "clerk", false)
	role := seedRole(t, store, "billing")
	bind(t, store, ident, role)
	eval, err := NewEvaluator(store)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	decision, err := eval.Authorize(context.Background(), ident, "clinician", "staff")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected deny when no required role is bound")
	}
}

func TestServiceAuthenticate(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	created, err := svc.CreateIdentity(context.Background(), NewIdentity{
		Username: "drsmith",
		Email:    "drsmith@clinic.test",
		Password: "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "drsmith", "s3cret-pass"); err != nil {
		t.Fatalf("authenticate by username: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "DRSMITH@clinic.test", "s3cret-pass"); err != nil {
		t.Fatalf("authenticate by email: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "drsmith", "wrong"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication for bad password, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "ghost", "s3cret-pass"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication for unknown login, got %v", err)
	}

	if _, err := svc.SetActive(context.Background(), created.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "drsmith", "s3cret-pass"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication for inactive identity, got %v", err)
	}
}

func TestServiceSetPassword(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	created, err := svc.CreateIdentity(context.Background(), NewIdentity{
		Username: "nursejo",
		Email:    "jo@clinic.test",
		Password: "old-pass-123",
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}

	if err := svc.SetPassword(context.Background(), created.ID, "new-pass-456"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nursejo", "old-pass-123"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nursejo", "new-pass-456"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
}

func TestRegistryBindDuplicateConflicts(t *testing.T) {
	store := NewMemoryStore()
	reg, err := NewRegistry(store)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ident := seedIdentity(t, store, "drlee", false)
	role, err := reg.CreateRole(context.Background(), "clinician", "treats patients")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	if _, err := reg.Bind(context.Background(), ident.ID, role.ID); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if _, err := reg.Bind(context.Background(), ident.ID, role.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate bind, got %v", err)
	}
}

func TestRegistryCreateRoleValidation(t *testing.T) {
	store := NewMemoryStore()
	reg, err := NewRegistry(store)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, err := reg.CreateRole(context.Background(), "   ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank role name, got %v", err)
	}
	if _, err := reg.CreateRole(context.Background(), "Admin", ""); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := reg.CreateRole(context.Background(), "admin", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for case-folded duplicate, got %v", err)
	}
}
