package auth

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// AdminRoleID identifies the bootstrap administrator role. It is seeded by
// the migrations and can never be renamed, deactivated or deleted.
const AdminRoleID int64 = 1

// User is a back-office account. Emails are stored lowercase.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role groups window grants. Names are unique across all statuses.
type Role struct {
	ID        int64
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window is a named protected resource (e.g. "Usuarios", "Roles") created
// at bootstrap and not mutated afterwards.
type Window struct {
	ID   int64
	Name string
}

// Grant binds CRUD rights for one (role, window) pair. At most one row
// exists per pair; the schema enforces it.
type Grant struct {
	RoleID    int64
	WindowID  int64
	CanCreate bool
	CanRead   bool
	CanUpdate bool
	CanDelete bool
}

// ResetToken is a persisted password-reset token. Only the sha256 digest of
// the raw token is ever stored.
type ResetToken struct {
	ID        string
	Email     string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// AuditAction enumerates the security-relevant actions recorded in the
// append-only audit log.
type AuditAction string

const (
	AuditLogin         AuditAction = "LOGIN"
	AuditCreate        AuditAction = "CREATE"
	AuditUpdate        AuditAction = "UPDATE"
	AuditDelete        AuditAction = "DELETE"
	AuditReactivate    AuditAction = "REACTIVATE"
	AuditDeactivate    AuditAction = "DEACTIVATE"
	AuditPasswordReset AuditAction = "PASSWORD_RESET"
)

// AuditEntry is an append-only record of a security-relevant action.
// Entries are never edited or deleted.
type AuditEntry struct {
	ID         string
	Email      string
	OccurredAt time.Time
	Action     AuditAction
	Detail     string
	Resource   string
}

// Caller is the verified identity of the current request, resolved from the
// session assertion plus a fresh role lookup. It is never built from
// unverified request input.
type Caller struct {
	UserID string
	Email  string
	Roles  []string
}

// HoldsRole reports whether the caller's resolved role set contains the
// given role name, compared case-insensitively.
func (c Caller) HoldsRole(name string) bool {
	for _, r := range c.Roles {
		if equalFold(r, name) {
			return true
		}
	}
	return false
}
