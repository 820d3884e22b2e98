package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: already exists")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")

	// Reset-token lifecycle failures. All three are client errors in the
	// recovery flow, distinct so callers can report the exact state.
	ErrTokenInvalid = errors.New("auth: reset token invalid")
	ErrTokenExpired = errors.New("auth: reset token expired")
	ErrTokenUsed    = errors.New("auth: reset token already used")
)

// Typed rejections produced by the role-mutation guard chain. Both unwrap
// to ErrForbidden so the HTTP layer maps them uniformly.
var (
	ErrRootRoleImmutable = fmt.Errorf("%w: el rol administrador no puede modificarse", ErrForbidden)
	ErrOwnRoleEdit       = fmt.Errorf("%w: no puede modificar un rol asignado a su propio usuario", ErrForbidden)
)

// ErrDuplicateRoleName is returned when a role name collides with an
// existing role of any status.
var ErrDuplicateRoleName = fmt.Errorf("%w: ya existe un rol con ese nombre", ErrConflict)
