package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ongsolidaria/backoffice/internal/auth"
)

type grantStore struct{ db *sql.DB }

// Set upserts the per-window rights for a role. A role/window pair holds at
// most one grant row.
func (s *grantStore) Set(ctx context.Context, grant auth.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into grants (role_id, window_id, can_create, can_read, can_update, can_delete)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (role_id, window_id) do update
		set can_create = excluded.can_create,
		    can_read   = excluded.can_read,
		    can_update = excluded.can_update,
		    can_delete = excluded.can_delete
	`, grant.RoleID, grant.WindowID, grant.CanCreate, grant.CanRead, grant.CanUpdate, grant.CanDelete)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

// MatrixForRoles loads the grant rows for the named roles. Grants of
// inactive roles are excluded so a deactivated role stops authorizing
// immediately.
func (s *grantStore) MatrixForRoles(ctx context.Context, roles []string) ([]auth.MatrixRow, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roles))
	args := make([]any, len(roles))
	for i, role := range roles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = role
	}

	query := fmt.Sprintf(`
		select r.name, w.name, g.can_create, g.can_read, g.can_update, g.can_delete
		from grants g
		join roles r on r.id = g.role_id
		join windows w on w.id = g.window_id
		where r.status = 'active' and r.name in (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matrix []auth.MatrixRow
	for rows.Next() {
		var row auth.MatrixRow
		err := rows.Scan(&row.Role, &row.Window,
			&row.Rights.Create, &row.Rights.Read, &row.Rights.Update, &row.Rights.Delete)
		if err != nil {
			return nil, err
		}
		matrix = append(matrix, row)
	}
	return matrix, rows.Err()
}
