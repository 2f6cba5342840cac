package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicore.org/internal/auth"
	"clinicore.org/internal/ids"
	"clinicore.org/internal/invite"
)

var _ invite.Store = (*Store)(nil)

func (s *Store) CreateInvite(ctx context.Context, inv invite.Invite) (invite.Invite, error) {
	if s.db == nil {
		return invite.Invite{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into invites (id, email, role_id, token_hash, issued_by, expires_at)
		values ($1, $2, $3, $4, $5, $6)
		returning id, created_at, (select name from roles where id = $3)
	`, ids.New(), inv.Email, inv.RoleID, inv.TokenHash, nullIfEmpty(inv.IssuedBy), inv.ExpiresAt)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.RoleName); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return invite.Invite{}, fmt.Errorf("%w: duplicate invite token", auth.ErrConflict)
			case pgErrForeignKeyViolation:
				return invite.Invite{}, fmt.Errorf("%w: role %s", auth.ErrNotFound, inv.RoleID)
			}
		}
		return invite.Invite{}, err
	}
	return inv, nil
}

func (s *Store) FindInviteByHash(ctx context.Context, tokenHash string) (invite.Invite, error) {
	if s.db == nil {
		return invite.Invite{}, errors.New("database connection unavailable")
	}
	var (
		inv      invite.Invite
		issuedBy sql.NullString
		consumed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select i.id, i.email, i.role_id, r.name, i.token_hash, i.issued_by, i.expires_at, i.consumed_at, i.created_at
		from invites i
		join roles r on r.id = i.role_id
		where i.token_hash = $1
	`, tokenHash).Scan(&inv.ID, &inv.Email, &inv.RoleID, &inv.RoleName, &inv.TokenHash,
		&issuedBy, &inv.ExpiresAt, &consumed, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Invite{}, invite.ErrNotFound
	}
	if err != nil {
		return invite.Invite{}, err
	}
	if issuedBy.Valid {
		inv.IssuedBy = issuedBy.String
	}
	if consumed.Valid {
		t := consumed.Time
		inv.ConsumedAt = &t
	}
	return inv, nil
}

func (s *Store) ListInvites(ctx context.Context, limit int) ([]invite.Invite, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select i.id, i.email, i.role_id, r.name, i.issued_by, i.expires_at, i.consumed_at, i.created_at
		from invites i
		join roles r on r.id = i.role_id
		order by i.created_at desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invite.Invite
	for rows.Next() {
		var (
			inv      invite.Invite
			issuedBy sql.NullString
			consumed sql.NullTime
		)
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.RoleID, &inv.RoleName,
			&issuedBy, &inv.ExpiresAt, &consumed, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if issuedBy.Valid {
			inv.IssuedBy = issuedBy.String
		}
		if consumed.Valid {
			t := consumed.Time
			inv.ConsumedAt = &t
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RedeemInvite consumes the invite, creates or reactivates the identity, binds the
// invited role and appends the acceptance event in one transaction.
// The conditional update on consumed_at guarantees a single winner
// under concurrent redemption.
func (s *Store) RedeemInvite(ctx context.Context, p invite.RedeemParams) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Identity{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update invites set consumed_at = now()
		where token_hash = $1 and consumed_at is null
	`, p.TokenHash)
	if err != nil {
		return auth.Identity{}, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return auth.Identity{}, err
	}
	if aff == 0 {
		return auth.Identity{}, invite.ErrAlreadyUsed
	}

	// A deactivated identity holding the invite's email is reactivated
	// with the new credential instead of creating a second record.
	var (
		ident          auth.Identity
		existingID     string
		existingActive bool
	)
	err = tx.QueryRowContext(ctx, `
		select id, active from identities where lower(email) = lower($1) for update
	`, p.Identity.Email).Scan(&existingID, &existingActive)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		row := tx.QueryRowContext(ctx, `
			insert into identities (id, username, email, display_name, password_hash, active, superuser)
			values ($1, $2, $3, $4, $5, true, false)
			returning id, username, email, display_name, password_hash, active, superuser, created_at, updated_at
		`, ids.New(), p.Identity.Username, p.Identity.Email, p.Identity.DisplayName, p.Identity.PasswordHash)
		if ident, err = scanIdentity(row); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.Identity{}, fmt.Errorf("%w: username or email already registered", auth.ErrConflict)
			}
			return auth.Identity{}, err
		}
	case err != nil:
		return auth.Identity{}, err
	case existingActive:
		return auth.Identity{}, fmt.Errorf("%w: email already registered", auth.ErrConflict)
	default:
		row := tx.QueryRowContext(ctx, `
			update identities
			set password_hash = $2, active = true, updated_at = now()
			where id = $1
			returning id, username, email, display_name, password_hash, active, superuser, created_at, updated_at
		`, existingID, p.Identity.PasswordHash)
		if ident, err = scanIdentity(row); err != nil {
			return auth.Identity{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		insert into role_bindings (identity_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, ident.ID, p.RoleID); err != nil {
		return auth.Identity{}, err
	}

	ev := p.Event
	ev.ActorID = ident.ID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		insert into audit_events (id, actor_id, action, object_type, object_id, ip, user_agent, ua_summary, request_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ids.New(), nullIfEmpty(ev.ActorID), ev.Action, nullIfEmpty(ev.ObjectType), nullIfEmpty(ev.ObjectID),
		nullIfEmpty(ev.IP), nullIfEmpty(ev.UserAgent), nullIfEmpty(ev.UASummary), nullIfEmpty(ev.RequestID), ev.CreatedAt); err != nil {
		return auth.Identity{}, err
	}

	if err := tx.Commit(); err != nil {
		return auth.Identity{}, err
	}
	return ident, nil
}
