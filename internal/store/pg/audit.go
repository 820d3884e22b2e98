package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/ongsolidaria/backoffice/internal/auth"
)

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *auth.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, email, occurred_at, action, detail, resource)
		values ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Email, entry.OccurredAt, entry.Action, entry.Detail, entry.Resource)
	return err
}

// List returns entries strictly older than before, newest first.
func (s *auditStore) List(ctx context.Context, limit int, before time.Time) ([]*auth.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, occurred_at, action, detail, resource
		from audit_log
		where occurred_at < $1
		order by occurred_at desc
		limit $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*auth.AuditEntry
	for rows.Next() {
		var e auth.AuditEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.OccurredAt, &e.Action, &e.Detail, &e.Resource); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
