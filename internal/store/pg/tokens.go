package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ongsolidaria/backoffice/internal/auth"
)

type resetTokenStore struct{ db *sql.DB }

// Replace marks every live token for the email as used and inserts the new
// one in a single transaction, so at most one token per account can be
// redeemed at any time.
func (s *resetTokenStore) Replace(ctx context.Context, token *auth.ResetToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		update reset_tokens
		set used = true
		where lower(email) = lower($1) and used = false
	`, token.Email)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		insert into reset_tokens (id, email, token_hash, expires_at, used, created_at)
		values ($1, $2, $3, $4, false, $5)
	`, token.ID, token.Email, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}

	return tx.Commit()
}

func (s *resetTokenStore) FindByHash(ctx context.Context, hash string) (*auth.ResetToken, error) {
	var t auth.ResetToken
	err := s.db.QueryRowContext(ctx, `
		select id, email, token_hash, expires_at, used, created_at
		from reset_tokens
		where token_hash = $1
	`, hash).Scan(&t.ID, &t.Email, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Consume flips the token to used and writes the new password hash in one
// transaction. The conditional update on used = false makes concurrent
// redemptions lose cleanly with ErrTokenUsed.
func (s *resetTokenStore) Consume(ctx context.Context, tokenID, passwordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var email string
	err = tx.QueryRowContext(ctx, `
		update reset_tokens
		set used = true
		where id = $1 and used = false
		returning email
	`, tokenID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrTokenUsed
	}
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		update users
		set password_hash = $1, updated_at = now()
		where lower(email) = lower($2)
	`, passwordHash, email)
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

	return tx.Commit()
}

func (s *resetTokenStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from reset_tokens
		where expires_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
