package invite

import (
	"context"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
)

// RedeemParams describes the atomic redemption: consume the invite,
// create (or reactivate) the identity, bind the invited role, and
// append the acceptance event, all in one transaction. The store
// fills the event's ActorID with the resulting identity id.
type RedeemParams struct {
	TokenHash string
	Identity  auth.Identity
	RoleID    string
	Event     audit.Event
}

// Store persists invites. RedeemInvite must consume the invite
// conditionally on it being unconsumed, so concurrent redemptions of
// the same token yield exactly one identity.
type Store interface {
	CreateInvite(ctx context.Context, inv Invite) (Invite, error)
	FindInviteByHash(ctx context.Context, tokenHash string) (Invite, error)
	ListInvites(ctx context.Context, limit int) ([]Invite, error)
	RedeemInvite(ctx context.Context, p RedeemParams) (auth.Identity, error)
}
