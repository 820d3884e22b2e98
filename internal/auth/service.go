package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ongsolidaria/backoffice/internal/ids"
	"github.com/ongsolidaria/backoffice/internal/obs"
)

const defaultSessionTTL = 15 * time.Minute

// Service provides login, authorization and role administration on top of
// a Store.
type Service struct {
	store      Store
	now        func() time.Time
	sessionTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionTTL configures session assertion lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Session is an issued assertion plus its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Caller    Caller
}

// Login verifies credentials and issues a session assertion. Every failure
// path returns the same ErrUnauthenticated so responses cannot distinguish
// an unknown account from a wrong password or a disabled account.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, err
	}
	if user.Status != StatusActive {
		return Session{}, ErrUnauthenticated
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthenticated
	}
	roles, err := s.store.Users(ctx).RoleNames(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	token, err := GenerateToken(user.ID, roles, s.sessionTTL)
	if err != nil {
		return Session{}, err
	}
	caller := Caller{UserID: user.ID, Email: user.Email, Roles: roles}
	s.appendAudit(ctx, user.Email, AuditLogin, "inicio de sesión", "sesion")
	return Session{
		Token:     token,
		ExpiresAt: s.now().UTC().Add(s.sessionTTL),
		Caller:    caller,
	}, nil
}

// ResolveCaller rebuilds the caller identity for a verified subject. The
// role set is read from the store at request time, not taken from the
// assertion, so role changes apply on the next request.
func (s *Service) ResolveCaller(ctx context.Context, userID string) (Caller, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Caller{}, ErrUnauthenticated
		}
		return Caller{}, err
	}
	if user.Status != StatusActive {
		return Caller{}, ErrUnauthenticated
	}
	roles, err := s.store.Users(ctx).RoleNames(ctx, user.ID)
	if err != nil {
		return Caller{}, err
	}
	return Caller{UserID: user.ID, Email: user.Email, Roles: roles}, nil
}

// Authorize checks the caller's rights on a window. The grant matrix is
// loaded as an immutable snapshot for the caller's current roles; a missing
// role or window denies without erroring.
func (s *Service) Authorize(ctx context.Context, caller Caller, window string, action Action) error {
	if len(caller.Roles) == 0 {
		return ErrForbidden
	}
	rows, err := s.store.Grants(ctx).MatrixForRoles(ctx, caller.Roles)
	if err != nil {
		return err
	}
	if !BuildMatrix(rows).Allows(caller.Roles, window, action) {
		return ErrForbidden
	}
	return nil
}

// RoleUpdate carries the mutable role fields.
type RoleUpdate struct {
	Name   *string
	Status *string
}

// CreateRole creates a role after the duplicate-name guard. The collision
// check is exact and spans roles of every status, and runs before any
// persistence write.
func (s *Service) CreateRole(ctx context.Context, caller Caller, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: el nombre del rol es obligatorio", ErrInvalidInput)
	}
	existing, err := s.store.Roles(ctx).FindByName(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateRoleName
	}
	role := &Role{Name: name, Status: StatusActive}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrDuplicateRoleName
		}
		return nil, err
	}
	s.appendAudit(ctx, caller.Email, AuditCreate, fmt.Sprintf("rol %q creado", role.Name), "roles")
	return role, nil
}

// ListRoles returns every role except the ones the caller already holds.
// This is response shaping for the admin UI, not a security boundary; the
// mutation guards stand on their own.
func (s *Service) ListRoles(ctx context.Context, caller Caller) ([]*Role, error) {
	roles, err := s.store.Roles(ctx).List(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]*Role, 0, len(roles))
	for _, role := range roles {
		if caller.HoldsRole(role.Name) {
			continue
		}
		filtered = append(filtered, role)
	}
	return filtered, nil
}

// GetRole loads a single role.
func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: identificador de rol inválido", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Find(ctx, id)
}

// UpdateRole mutates a role after the guard chain. A pure status flip is
// audited as REACTIVATE or DEACTIVATE; any change touching the name is
// audited as UPDATE.
func (s *Service) UpdateRole(ctx context.Context, caller Caller, id int64, upd RoleUpdate) (*Role, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: identificador de rol inválido", ErrInvalidInput)
	}
	// The root guard is a fixed-identity check and must reject before any
	// persistence lookup.
	if id == AdminRoleID {
		return nil, ErrRootRoleImmutable
	}
	role, err := s.store.Roles(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := GuardRoleMutation(caller, role); err != nil {
		return nil, err
	}

	newName := role.Name
	if upd.Name != nil {
		newName = strings.TrimSpace(*upd.Name)
		if newName == "" {
			return nil, fmt.Errorf("%w: el nombre del rol es obligatorio", ErrInvalidInput)
		}
	}
	newStatus := role.Status
	if upd.Status != nil {
		newStatus = strings.TrimSpace(strings.ToLower(*upd.Status))
		if newStatus != StatusActive && newStatus != StatusInactive {
			return nil, fmt.Errorf("%w: estado %q no soportado", ErrInvalidInput, newStatus)
		}
	}
	nameChanged := newName != role.Name
	statusChanged := newStatus != role.Status
	if !nameChanged && !statusChanged {
		return role, nil
	}
	if nameChanged {
		other, err := s.store.Roles(ctx).FindByName(ctx, newName)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if other != nil && other.ID != role.ID {
			return nil, ErrDuplicateRoleName
		}
	}

	role.Name = newName
	role.Status = newStatus
	if err := s.store.Roles(ctx).Update(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrDuplicateRoleName
		}
		return nil, err
	}

	action := AuditUpdate
	detail := fmt.Sprintf("rol %q actualizado", role.Name)
	if statusChanged && !nameChanged {
		if newStatus == StatusActive {
			action = AuditReactivate
			detail = fmt.Sprintf("rol %q reactivado", role.Name)
		} else {
			action = AuditDeactivate
			detail = fmt.Sprintf("rol %q desactivado", role.Name)
		}
	}
	s.appendAudit(ctx, caller.Email, action, detail, "roles")
	return role, nil
}

// DeleteRole soft-deletes a role: the row transitions to inactive and is
// never removed.
func (s *Service) DeleteRole(ctx context.Context, caller Caller, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: identificador de rol inválido", ErrInvalidInput)
	}
	if id == AdminRoleID {
		return ErrRootRoleImmutable
	}
	role, err := s.store.Roles(ctx).Find(ctx, id)
	if err != nil {
		return err
	}
	if err := GuardRoleMutation(caller, role); err != nil {
		return err
	}
	if role.Status == StatusInactive {
		return nil
	}
	role.Status = StatusInactive
	if err := s.store.Roles(ctx).Update(ctx, role); err != nil {
		return err
	}
	s.appendAudit(ctx, caller.Email, AuditDelete, fmt.Sprintf("rol %q eliminado", role.Name), "roles")
	return nil
}

// ListWindows returns the bootstrap window catalog.
func (s *Service) ListWindows(ctx context.Context) ([]*Window, error) {
	return s.store.Windows(ctx).List(ctx)
}

// SetGrant upserts the rights tuple for one (role, window) pair.
func (s *Service) SetGrant(ctx context.Context, caller Caller, grant Grant) error {
	if grant.RoleID <= 0 || grant.WindowID <= 0 {
		return fmt.Errorf("%w: rol y ventana son obligatorios", ErrInvalidInput)
	}
	role, err := s.store.Roles(ctx).Find(ctx, grant.RoleID)
	if err != nil {
		return err
	}
	// Grants shape the permission substrate, so the same self-protection
	// rules apply as for role mutation.
	if err := GuardRoleMutation(caller, role); err != nil {
		return err
	}
	if _, err := s.store.Windows(ctx).Find(ctx, grant.WindowID); err != nil {
		return err
	}
	if err := s.store.Grants(ctx).Set(ctx, grant); err != nil {
		return err
	}
	s.appendAudit(ctx, caller.Email, AuditUpdate, fmt.Sprintf("permisos del rol %q actualizados", role.Name), "roles")
	return nil
}

// ListAudit returns audit entries older than the cursor, newest first.
func (s *Service) ListAudit(ctx context.Context, limit int, before time.Time) ([]*AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if before.IsZero() {
		before = s.now().UTC()
	}
	return s.store.Audit(ctx).List(ctx, limit, before)
}

// appendAudit records a state change after it succeeded. An append failure
// does not roll the change back; it is logged and surfaced in the logs only.
func (s *Service) appendAudit(ctx context.Context, email string, action AuditAction, detail, resource string) {
	entry := &AuditEntry{
		ID:         ids.New(),
		Email:      email,
		OccurredAt: s.now().UTC(),
		Action:     action,
		Detail:     detail,
		Resource:   resource,
	}
	if err := s.store.Audit(ctx).Append(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"level":  "error",
			"msg":    "audit append failed",
			"action": string(action),
			"error":  err.Error(),
		})
	}
}
