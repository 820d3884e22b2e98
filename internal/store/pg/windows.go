package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ongsolidaria/backoffice/internal/auth"
)

type windowStore struct{ db *sql.DB }

func (s *windowStore) List(ctx context.Context) ([]*auth.Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name
		from windows
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []*auth.Window
	for rows.Next() {
		var w auth.Window
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			return nil, err
		}
		windows = append(windows, &w)
	}
	return windows, rows.Err()
}

func (s *windowStore) Find(ctx context.Context, id int64) (*auth.Window, error) {
	var w auth.Window
	err := s.db.QueryRowContext(ctx, `
		select id, name
		from windows
		where id = $1
	`, id).Scan(&w.ID, &w.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
