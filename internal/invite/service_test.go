package invite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

type inviteFixture struct {
	svc    *Service
	store  *MemoryStore
	auth   *auth.MemoryStore
	events *audit.MemoryStore
	role   auth.Role
	admin  auth.Identity
}

func newFixture(t *testing.T, opts ...Option) *inviteFixture {
	t.Helper()
	authStore := auth.NewMemoryStore()
	events := audit.NewMemoryStore()
	store := NewMemoryStore(authStore, events)

	role, err := authStore.CreateRole(context.Background(), auth.Role{Name: "clinician"})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	admin, err := authStore.CreateIdentity(context.Background(), auth.Identity{
		Username: "admin", Email: "admin@clinic.test", PasswordHash: "x", Active: true,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	svc, err := NewService(store, authStore, audit.NewRecorder(events), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &inviteFixture{svc: svc, store: store, auth: authStore, events: events, role: role, admin: admin}
}

func TestIssueAndRedeem(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	inv, token, err := fx.svc.Issue(ctx, IssueParams{
		Email: "Nurse@Clinic.Test", RoleName: "Clinician", IssuedBy: fx.admin.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected raw token")
	}
	if inv.Email != "nurse@clinic.test" {
		t.Fatalf("email not normalized: %q", inv.Email)
	}
	if inv.TokenHash == token {
		t.Fatal("raw token must not be stored")
	}

	ident, err := fx.svc.Redeem(ctx, token, Registration{
		Username: "nurse1", Password: "pw-123456", DisplayName: "Nurse One",
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if ident.Email != "nurse@clinic.test" {
		t.Fatalf("identity email mismatch: %q", ident.Email)
	}

	names, err := fx.auth.RoleNamesFor(ctx, ident.ID)
	if err != nil {
		t.Fatalf("role names: %v", err)
	}
	if len(names) != 1 || names[0] != "clinician" {
		t.Fatalf("expected invited role bound, got %v", names)
	}

	accepted, err := fx.events.QueryEvents(ctx, audit.Filter{Action: audit.ActionInviteAccepted})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected one acceptance event, got %d", len(accepted))
	}
	if accepted[0].ActorID != ident.ID {
		t.Fatalf("acceptance actor mismatch: %q", accepted[0].ActorID)
	}
	issued, err := fx.events.QueryEvents(ctx, audit.Filter{Action: audit.ActionInviteIssued})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(issued) != 1 || issued[0].ActorID != fx.admin.ID {
		t.Fatalf("expected issuance event by admin, got %v", issued)
	}
}

func TestIssueUnknownRole(t *testing.T) {
	fx := newFixture(t)
	_, _, err := fx.svc.Issue(context.Background(), IssueParams{
		Email: "x@clinic.test", RoleName: "wizard", IssuedBy: fx.admin.ID,
	})
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}
}

func TestRedeemTwiceFailsSecondTime(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, token, err := fx.svc.Issue(ctx, IssueParams{
		Email: "x@clinic.test", RoleName: "clinician", IssuedBy: fx.admin.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := fx.svc.Redeem(ctx, token, Registration{Username: "u1", Password: "pw-123456"}); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if _, err := fx.svc.Redeem(ctx, token, Registration{Username: "u2", Password: "pw-123456"}); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("expected ErrAlreadyUsed, got %v", err)
	}
}

func TestListInvitesNewestFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if _, err := fx.store.CreateInvite(ctx, Invite{
			Email:     fmt.Sprintf("u%d@clinic.test", i),
			RoleID:    fx.role.ID,
			TokenHash: fmt.Sprintf("hash-%d", i),
			ExpiresAt: base.Add(DefaultTTL),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("create invite: %v", err)
		}
	}

	got, err := fx.store.ListInvites(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 invites, got %d", len(got))
	}
	for i, want := range []string{"u2@clinic.test", "u1@clinic.test", "u0@clinic.test"} {
		if got[i].Email != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].Email)
		}
	}
}

func TestRedeemReactivatesDeactivatedIdentity(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	old, err := fx.auth.CreateIdentity(ctx, auth.Identity{
		Username: "nurse1", Email: "nurse@clinic.test", PasswordHash: "old-hash", Active: false,
	})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	_, token, err := fx.svc.Issue(ctx, IssueParams{
		Email: "nurse@clinic.test", RoleName: "clinician", IssuedBy: fx.admin.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ident, err := fx.svc.Redeem(ctx, token, Registration{Username: "nurse-new", Password: "pw-123456"})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if ident.ID != old.ID {
		t.Fatalf("expected reactivation of %s, got new identity %s", old.ID, ident.ID)
	}
	if !ident.Active {
		t.Fatal("identity not reactivated")
	}
	if ident.PasswordHash == "old-hash" {
		t.Fatal("credential not replaced")
	}
}

func TestRedeemEmailAlreadyActive(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.auth.CreateIdentity(ctx, auth.Identity{
		Username: "nurse1", Email: "nurse@clinic.test", PasswordHash: "h", Active: true,
	}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	_, token, err := fx.svc.Issue(ctx, IssueParams{
		Email: "nurse@clinic.test", RoleName: "clinician", IssuedBy: fx.admin.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := fx.svc.Redeem(ctx, token, Registration{Username: "other", Password: "pw-123456"}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict for active email, got %v", err)
	}
}

func TestRedeemExpired(t *testing.T) {
	clock := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	fx := newFixture(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, token, err := fx.svc.Issue(ctx, IssueParams{
		Email: "x@clinic.test", RoleName: "clinician", IssuedBy: fx.admin.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock = clock.Add(8 * 24 * time.Hour)
	if _, err := fx.svc.Redeem(ctx, token, Registration{Username: "u1", Password: "pw-123456"}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// Expired redemption must mutate nothing.
	if _, err := fx.auth.FindIdentityByLogin(ctx, "u1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected no identity created, got %v", err)
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.Redeem(context.Background(), "not-a-token", Registration{Username: "u", Password: "pw-123456"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, token, err := fx.svc.Issue(ctx, IssueParams{
		Email: "x@clinic.test", RoleName: "clinician", IssuedBy: fx.admin.ID,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.Redeem(ctx, token, Registration{
				Username: "worker" + string(rune('a'+i)), Password: "pw-123456",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", wins)
	}

	accepted, err := fx.events.QueryEvents(ctx, audit.Filter{Action: audit.ActionInviteAccepted})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected one acceptance event, got %d", len(accepted))
	}
}
