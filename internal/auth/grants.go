package auth

import "strings"

// Action is one of the four CRUD rights a grant can carry.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction maps a string to an Action. Unknown values return false.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionCreate:
		return ActionCreate, true
	case ActionRead:
		return ActionRead, true
	case ActionUpdate:
		return ActionUpdate, true
	case ActionDelete:
		return ActionDelete, true
	default:
		return "", false
	}
}

// Rights is the CRUD tuple bound to one (role, window) pair.
type Rights struct {
	Create bool
	Read   bool
	Update bool
	Delete bool
}

// Allows reports whether the tuple carries the requested right. Unknown
// actions are denied.
func (r Rights) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return r.Create
	case ActionRead:
		return r.Read
	case ActionUpdate:
		return r.Update
	case ActionDelete:
		return r.Delete
	default:
		return false
	}
}

// MatrixRow is one resolved grant: role name, window name and rights.
type MatrixRow struct {
	Role   string
	Window string
	Rights Rights
}

// Matrix is an immutable snapshot of the grant matrix for a role set,
// keyed by role name then window name. It is loaded once per check and
// never mutated in place.
type Matrix map[string]map[string]Rights

// BuildMatrix folds resolved grant rows into a snapshot. Duplicate rows for
// the same (role, window) pair union their rights; the schema prevents them
// from existing, but the fold stays safe if they do.
func BuildMatrix(rows []MatrixRow) Matrix {
	m := make(Matrix, len(rows))
	for _, row := range rows {
		windows, ok := m[row.Role]
		if !ok {
			windows = make(map[string]Rights)
			m[row.Role] = windows
		}
		prev := windows[row.Window]
		windows[row.Window] = Rights{
			Create: prev.Create || row.Rights.Create,
			Read:   prev.Read || row.Rights.Read,
			Update: prev.Update || row.Rights.Update,
			Delete: prev.Delete || row.Rights.Delete,
		}
	}
	return m
}

// Allows reports whether any role in the set holds the requested right on
// the window. Rights are the union across all roles, never the
// intersection. Unknown roles or windows contribute nothing: the check
// fails closed instead of erroring.
func (m Matrix) Allows(roles []string, window string, action Action) bool {
	if len(m) == 0 || len(roles) == 0 || window == "" {
		return false
	}
	for _, role := range roles {
		windows, ok := m[role]
		if !ok {
			continue
		}
		if windows[window].Allows(action) {
			return true
		}
	}
	return false
}
