package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Windows(ctx context.Context) WindowStore
	Grants(ctx context.Context) GrantStore
	Audit(ctx context.Context) AuditStore
	ResetTokens(ctx context.Context) ResetTokenStore
}

// UserStore manages accounts and their role assignments.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// RoleNames returns the names of the user's active roles, resolved at
	// call time. Authorization depends on this being fresh per request.
	RoleNames(ctx context.Context, userID string) ([]string, error)
}

// RoleStore manages roles. Roles are never hard-deleted.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id int64) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
}

// WindowStore reads the bootstrap window catalog.
type WindowStore interface {
	List(ctx context.Context) ([]*Window, error)
	Find(ctx context.Context, id int64) (*Window, error)
}

// GrantStore manages the role×window rights matrix.
type GrantStore interface {
	// Set upserts the single grant row for a (role, window) pair.
	Set(ctx context.Context, grant Grant) error
	// MatrixForRoles resolves grant rows for the given role names in one
	// query, suitable for building an immutable per-request snapshot.
	MatrixForRoles(ctx context.Context, roleNames []string) ([]MatrixRow, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, limit int, before time.Time) ([]*AuditEntry, error)
}

// ResetTokenStore manages the reset-token lifecycle. Implementations must
// make Replace and Consume atomic: Replace supersedes prior tokens and
// inserts the new one in one transaction, and Consume must be a conditional
// update keyed on used=false so that concurrent consumers see exactly one
// success.
type ResetTokenStore interface {
	Replace(ctx context.Context, token *ResetToken) error
	FindByHash(ctx context.Context, tokenHash string) (*ResetToken, error)
	// Consume marks the token used and rewrites the owner's credential in
	// a single transaction. Returns ErrTokenUsed when the token was already
	// consumed by a concurrent request.
	Consume(ctx context.Context, tokenID, passwordHash string) error
	// PurgeExpired removes tokens past their expiry. Maintenance only;
	// expired tokens are rejected at verification regardless.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
