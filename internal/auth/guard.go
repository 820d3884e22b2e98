package auth

// roleGuard is one predicate in the role-mutation guard chain. A non-nil
// result is the typed rejection reason.
type roleGuard func(caller Caller, target *Role) error

// guardRootRole rejects any mutation of the bootstrap administrator role,
// for every caller, before any other check runs.
func guardRootRole(_ Caller, target *Role) error {
	if target.ID == AdminRoleID {
		return ErrRootRoleImmutable
	}
	return nil
}

// guardOwnRole rejects mutations of a role present in the caller's own
// resolved role set (case-insensitive name comparison). A coordinator must
// not be able to revoke the grant that authorized the action.
func guardOwnRole(caller Caller, target *Role) error {
	if caller.HoldsRole(target.Name) {
		return ErrOwnRoleEdit
	}
	return nil
}

// roleMutationGuards is the ordered chain applied to update and delete.
// Order matters: the root check wins over the self check so the audit trail
// and error messages stay stable regardless of the caller's roles.
var roleMutationGuards = []roleGuard{
	guardRootRole,
	guardOwnRole,
}

// GuardRoleMutation runs the guard chain against a target role and returns
// the first rejection, or nil when the mutation may proceed. It is checked
// before any persistence write.
func GuardRoleMutation(caller Caller, target *Role) error {
	for _, guard := range roleMutationGuards {
		if err := guard(caller, target); err != nil {
			return err
		}
	}
	return nil
}
