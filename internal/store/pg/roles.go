package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ongsolidaria/backoffice/internal/auth"
)

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	row := s.db.QueryRowContext(ctx, `
		insert into roles (name, status)
		values ($1, $2)
		returning id, created_at, updated_at
	`, role.Name, role.Status)
	if err := row.Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *roleStore) Find(ctx context.Context, id int64) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, status, created_at, updated_at
		from roles
		where id = $1
	`, id)
	return scanRole(row)
}

// FindByName is an exact, case-sensitive match across roles of any status.
func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, status, created_at, updated_at
		from roles
		where name = $1
	`, name)
	return scanRole(row)
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, status, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Status, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, role *auth.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update roles
		set name = $1, status = $2, updated_at = now()
		where id = $3
	`, role.Name, role.Status, role.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
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

func scanRole(row *sql.Row) (*auth.Role, error) {
	var role auth.Role
	err := row.Scan(&role.ID, &role.Name, &role.Status, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}
