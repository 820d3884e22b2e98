package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store for service and recovery tests.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*User
	roles     map[int64]*Role
	windows   map[int64]*Window
	userRoles map[string][]int64
	grants    map[[2]int64]Grant
	tokens    map[string]*ResetToken
	audit     []*AuditEntry
	nextRole  int64

	failAppend bool
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*User),
		roles:     make(map[int64]*Role),
		windows:   make(map[int64]*Window),
		userRoles: make(map[string][]int64),
		grants:    make(map[[2]int64]Grant),
		tokens:    make(map[string]*ResetToken),
		nextRole:  1,
	}
}

func (m *memStore) addUser(u *User) {
	m.users[u.ID] = u
}

func (m *memStore) addRole(r *Role) {
	m.roles[r.ID] = r
	if r.ID >= m.nextRole {
		m.nextRole = r.ID + 1
	}
}

func (m *memStore) addWindow(w *Window) {
	m.windows[w.ID] = w
}

func (m *memStore) assign(userID string, roleID int64) {
	m.userRoles[userID] = append(m.userRoles[userID], roleID)
}

func (m *memStore) grant(roleID, windowID int64, rights Rights) {
	m.grants[[2]int64{roleID, windowID}] = Grant{
		RoleID:    roleID,
		WindowID:  windowID,
		CanCreate: rights.Create,
		CanRead:   rights.Read,
		CanUpdate: rights.Update,
		CanDelete: rights.Delete,
	}
}

func (m *memStore) auditActions() []AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]AuditAction, 0, len(m.audit))
	for _, e := range m.audit {
		actions = append(actions, e.Action)
	}
	return actions
}

func (m *memStore) Users(context.Context) UserStore             { return memUsers{m} }
func (m *memStore) Roles(context.Context) RoleStore             { return memRoles{m} }
func (m *memStore) Windows(context.Context) WindowStore         { return memWindows{m} }
func (m *memStore) Grants(context.Context) GrantStore           { return memGrants{m} }
func (m *memStore) Audit(context.Context) AuditStore            { return memAudit{m} }
func (m *memStore) ResetTokens(context.Context) ResetTokenStore { return memTokens{m} }

type memUsers struct{ m *memStore }

func (s memUsers) Find(_ context.Context, id string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if u, ok := s.m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s memUsers) RoleNames(_ context.Context, userID string) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var names []string
	for _, roleID := range s.m.userRoles[userID] {
		if role, ok := s.m.roles[roleID]; ok && role.Status == StatusActive {
			names = append(names, role.Name)
		}
	}
	return names, nil
}

type memRoles struct{ m *memStore }

func (s memRoles) Create(_ context.Context, role *Role) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.roles {
		if existing.Name == role.Name {
			return ErrConflict
		}
	}
	role.ID = s.m.nextRole
	s.m.nextRole++
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	cp := *role
	s.m.roles[role.ID] = &cp
	return nil
}

func (s memRoles) Find(_ context.Context, id int64) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if role, ok := s.m.roles[id]; ok {
		cp := *role
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s memRoles) FindByName(_ context.Context, name string) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, role := range s.m.roles {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s memRoles) List(_ context.Context) ([]*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var roles []*Role
	for _, role := range s.m.roles {
		cp := *role
		roles = append(roles, &cp)
	}
	return roles, nil
}

func (s memRoles) Update(_ context.Context, role *Role) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	existing, ok := s.m.roles[role.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range s.m.roles {
		if other.ID != role.ID && other.Name == role.Name {
			return ErrConflict
		}
	}
	existing.Name = role.Name
	existing.Status = role.Status
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

type memWindows struct{ m *memStore }

func (s memWindows) List(_ context.Context) ([]*Window, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var windows []*Window
	for _, w := range s.m.windows {
		cp := *w
		windows = append(windows, &cp)
	}
	return windows, nil
}

func (s memWindows) Find(_ context.Context, id int64) (*Window, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if w, ok := s.m.windows[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, ErrNotFound
}

type memGrants struct{ m *memStore }

func (s memGrants) Set(_ context.Context, grant Grant) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[grant.RoleID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.m.windows[grant.WindowID]; !ok {
		return ErrNotFound
	}
	s.m.grants[[2]int64{grant.RoleID, grant.WindowID}] = grant
	return nil
}

func (s memGrants) MatrixForRoles(_ context.Context, roleNames []string) ([]MatrixRow, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	wanted := make(map[string]bool, len(roleNames))
	for _, name := range roleNames {
		wanted[name] = true
	}
	var rows []MatrixRow
	for key, grant := range s.m.grants {
		role, ok := s.m.roles[key[0]]
		if !ok || role.Status != StatusActive || !wanted[role.Name] {
			continue
		}
		window, ok := s.m.windows[key[1]]
		if !ok {
			continue
		}
		rows = append(rows, MatrixRow{
			Role:   role.Name,
			Window: window.Name,
			Rights: Rights{
				Create: grant.CanCreate,
				Read:   grant.CanRead,
				Update: grant.CanUpdate,
				Delete: grant.CanDelete,
			},
		})
	}
	return rows, nil
}

type memAudit struct{ m *memStore }

func (s memAudit) Append(_ context.Context, entry *AuditEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.failAppend {
		return errors.New("audit append failed")
	}
	cp := *entry
	s.m.audit = append(s.m.audit, &cp)
	return nil
}

func (s memAudit) List(_ context.Context, limit int, before time.Time) ([]*AuditEntry, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var entries []*AuditEntry
	for i := len(s.m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.m.audit[i].OccurredAt.Before(before) {
			cp := *s.m.audit[i]
			entries = append(entries, &cp)
		}
	}
	return entries, nil
}

type memTokens struct{ m *memStore }

func (s memTokens) Replace(_ context.Context, token *ResetToken) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.tokens {
		if strings.EqualFold(t.Email, token.Email) && !t.Used {
			t.Used = true
		}
	}
	cp := *token
	s.m.tokens[token.TokenHash] = &cp
	return nil
}

func (s memTokens) FindByHash(_ context.Context, hash string) (*ResetToken, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if t, ok := s.m.tokens[hash]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s memTokens) Consume(_ context.Context, tokenID, passwordHash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.tokens {
		if t.ID != tokenID {
			continue
		}
		if t.Used {
			return ErrTokenUsed
		}
		t.Used = true
		for _, u := range s.m.users {
			if strings.EqualFold(u.Email, t.Email) {
				u.PasswordHash = passwordHash
				return nil
			}
		}
		return ErrNotFound
	}
	return ErrTokenUsed
}

func (s memTokens) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var purged int64
	for hash, t := range s.m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(s.m.tokens, hash)
			purged++
		}
	}
	return purged, nil
}

// captureMailer records the raw tokens handed to it and can be set to fail.
type captureMailer struct {
	mu     sync.Mutex
	tokens []string
	fail   bool
}

func (c *captureMailer) SendResetToken(_, _, rawToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("smtp unreachable")
	}
	c.tokens = append(c.tokens, rawToken)
	return nil
}

func (c *captureMailer) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tokens) == 0 {
		return ""
	}
	return c.tokens[len(c.tokens)-1]
}
