package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clinicore.org/internal/auth"
	"clinicore.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

func (s *Store) CreateIdentity(ctx context.Context, ident auth.Identity) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into identities (id, username, email, display_name, password_hash, active, superuser)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, username, email, display_name, password_hash, active, superuser, created_at, updated_at
	`, ids.New(), ident.Username, ident.Email, ident.DisplayName, ident.PasswordHash, ident.Active, ident.Superuser)
	out, err := scanIdentity(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Identity{}, fmt.Errorf("%w: username or email already registered", auth.ErrConflict)
		}
		return auth.Identity{}, err
	}
	return out, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, username, email, display_name, password_hash, active, superuser, created_at, updated_at
		from identities
		where id = $1
	`, id)
	out, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	return out, err
}

func (s *Store) FindIdentityByLogin(ctx context.Context, login string) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, username, email, display_name, password_hash, active, superuser, created_at, updated_at
		from identities
		where lower(username) = lower($1) or lower(email) = lower($1)
	`, login)
	out, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	return out, err
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, upd auth.IdentityUpdate) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.DisplayName != nil {
		sets = append(sets, fmt.Sprintf("display_name = $%d", idx))
		args = append(args, *upd.DisplayName)
		idx++
	}
	if upd.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.PasswordHash)
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update identities set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return auth.Identity{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.Identity{}, err
		}
		if aff == 0 {
			return auth.Identity{}, auth.ErrNotFound
		}
	}
	return s.GetIdentity(ctx, id)
}

func (s *Store) CreateRole(ctx context.Context, role auth.Role) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errors.New("database connection unavailable")
	}
	var (
		out  auth.Role
		desc sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, description, created_at
	`, ids.New(), role.Name, nullIfEmpty(role.Description))
	if err := row.Scan(&out.ID, &out.Name, &desc, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Role{}, fmt.Errorf("%w: role %q already exists", auth.ErrConflict, role.Name)
		}
		return auth.Role{}, err
	}
	if desc.Valid {
		out.Description = desc.String
	}
	return out, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var (
			role auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errors.New("database connection unavailable")
	}
	var (
		role auth.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from roles
		where lower(name) = lower($1)
	`, name).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, fmt.Errorf("%w: role %q", auth.ErrNotFound, name)
	}
	if err != nil {
		return auth.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) BindRole(ctx context.Context, identityID, roleID string) (auth.RoleBinding, error) {
	if s.db == nil {
		return auth.RoleBinding{}, errors.New("database connection unavailable")
	}
	var binding auth.RoleBinding
	err := s.db.QueryRowContext(ctx, `
		insert into role_bindings (identity_id, role_id)
		values ($1, $2)
		returning identity_id, role_id,
			(select name from roles where id = $2),
			created_at
	`, identityID, roleID).Scan(&binding.IdentityID, &binding.RoleID, &binding.RoleName, &binding.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.RoleBinding{}, fmt.Errorf("%w: role already bound", auth.ErrConflict)
			case pgErrForeignKeyViolation:
				return auth.RoleBinding{}, auth.ErrNotFound
			}
		}
		return auth.RoleBinding{}, err
	}
	return binding, nil
}

func (s *Store) RevokeBinding(ctx context.Context, identityID, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from role_bindings
		where identity_id = $1 and role_id = $2
	`, identityID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) RoleNamesFor(ctx context.Context, identityID string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from role_bindings rb
		join roles r on r.id = rb.role_id
		where rb.identity_id = $1
		order by r.name
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (auth.Identity, error) {
	var (
		ident   auth.Identity
		display sql.NullString
	)
	err := row.Scan(&ident.ID, &ident.Username, &ident.Email, &display,
		&ident.PasswordHash, &ident.Active, &ident.Superuser, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		return auth.Identity{}, err
	}
	if display.Valid {
		ident.DisplayName = display.String
	}
	return ident, nil
}
