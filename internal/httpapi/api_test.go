package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ongsolidaria/backoffice/internal/auth"
)

// stubStore is an in-memory auth.Store for handler tests.
type stubStore struct {
	mu        sync.Mutex
	users     map[string]*auth.User
	roles     map[int64]*auth.Role
	windows   map[int64]*auth.Window
	userRoles map[string][]int64
	grants    map[[2]int64]auth.Grant
	tokens    map[string]*auth.ResetToken
	audit     []*auth.AuditEntry
	nextRole  int64
}

func newStubStore() *stubStore {
	return &stubStore{
		users:     make(map[string]*auth.User),
		roles:     make(map[int64]*auth.Role),
		windows:   make(map[int64]*auth.Window),
		userRoles: make(map[string][]int64),
		grants:    make(map[[2]int64]auth.Grant),
		tokens:    make(map[string]*auth.ResetToken),
		nextRole:  1,
	}
}

func (s *stubStore) Users(context.Context) auth.UserStore             { return stubUsers{s} }
func (s *stubStore) Roles(context.Context) auth.RoleStore             { return stubRoles{s} }
func (s *stubStore) Windows(context.Context) auth.WindowStore         { return stubWindows{s} }
func (s *stubStore) Grants(context.Context) auth.GrantStore           { return stubGrants{s} }
func (s *stubStore) Audit(context.Context) auth.AuditStore            { return stubAudit{s} }
func (s *stubStore) ResetTokens(context.Context) auth.ResetTokenStore { return stubTokens{s} }

type stubUsers struct{ s *stubStore }

func (u stubUsers) Find(_ context.Context, id string) (*auth.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user, ok := u.s.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (u stubUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (u stubUsers) RoleNames(_ context.Context, userID string) ([]string, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var names []string
	for _, roleID := range u.s.userRoles[userID] {
		if role, ok := u.s.roles[roleID]; ok && role.Status == auth.StatusActive {
			names = append(names, role.Name)
		}
	}
	return names, nil
}

type stubRoles struct{ s *stubStore }

func (r stubRoles) Create(_ context.Context, role *auth.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if existing.Name == role.Name {
			return auth.ErrConflict
		}
	}
	role.ID = r.s.nextRole
	r.s.nextRole++
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	cp := *role
	r.s.roles[role.ID] = &cp
	return nil
}

func (r stubRoles) Find(_ context.Context, id int64) (*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if role, ok := r.s.roles[id]; ok {
		cp := *role
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (r stubRoles) FindByName(_ context.Context, name string) (*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r stubRoles) List(_ context.Context) ([]*auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var roles []*auth.Role
	for _, role := range r.s.roles {
		cp := *role
		roles = append(roles, &cp)
	}
	return roles, nil
}

func (r stubRoles) Update(_ context.Context, role *auth.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.roles[role.ID]
	if !ok {
		return auth.ErrNotFound
	}
	for _, other := range r.s.roles {
		if other.ID != role.ID && other.Name == role.Name {
			return auth.ErrConflict
		}
	}
	existing.Name = role.Name
	existing.Status = role.Status
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

type stubWindows struct{ s *stubStore }

func (w stubWindows) List(_ context.Context) ([]*auth.Window, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	var windows []*auth.Window
	for _, win := range w.s.windows {
		cp := *win
		windows = append(windows, &cp)
	}
	return windows, nil
}

func (w stubWindows) Find(_ context.Context, id int64) (*auth.Window, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if win, ok := w.s.windows[id]; ok {
		cp := *win
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

type stubGrants struct{ s *stubStore }

func (g stubGrants) Set(_ context.Context, grant auth.Grant) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if _, ok := g.s.roles[grant.RoleID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := g.s.windows[grant.WindowID]; !ok {
		return auth.ErrNotFound
	}
	g.s.grants[[2]int64{grant.RoleID, grant.WindowID}] = grant
	return nil
}

func (g stubGrants) MatrixForRoles(_ context.Context, roleNames []string) ([]auth.MatrixRow, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	wanted := make(map[string]bool, len(roleNames))
	for _, name := range roleNames {
		wanted[name] = true
	}
	var rows []auth.MatrixRow
	for key, grant := range g.s.grants {
		role, ok := g.s.roles[key[0]]
		if !ok || role.Status != auth.StatusActive || !wanted[role.Name] {
			continue
		}
		window, ok := g.s.windows[key[1]]
		if !ok {
			continue
		}
		rows = append(rows, auth.MatrixRow{
			Role:   role.Name,
			Window: window.Name,
			Rights: auth.Rights{
				Create: grant.CanCreate,
				Read:   grant.CanRead,
				Update: grant.CanUpdate,
				Delete: grant.CanDelete,
			},
		})
	}
	return rows, nil
}

type stubAudit struct{ s *stubStore }

func (a stubAudit) Append(_ context.Context, entry *auth.AuditEntry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	cp := *entry
	a.s.audit = append(a.s.audit, &cp)
	return nil
}

func (a stubAudit) List(_ context.Context, limit int, before time.Time) ([]*auth.AuditEntry, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var entries []*auth.AuditEntry
	for i := len(a.s.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if a.s.audit[i].OccurredAt.Before(before) {
			cp := *a.s.audit[i]
			entries = append(entries, &cp)
		}
	}
	return entries, nil
}

type stubTokens struct{ s *stubStore }

func (t stubTokens) Replace(_ context.Context, token *auth.ResetToken) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.tokens {
		if strings.EqualFold(existing.Email, token.Email) && !existing.Used {
			existing.Used = true
		}
	}
	cp := *token
	t.s.tokens[token.TokenHash] = &cp
	return nil
}

func (t stubTokens) FindByHash(_ context.Context, hash string) (*auth.ResetToken, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if token, ok := t.s.tokens[hash]; ok {
		cp := *token
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (t stubTokens) Consume(_ context.Context, tokenID, passwordHash string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, token := range t.s.tokens {
		if token.ID != tokenID {
			continue
		}
		if token.Used {
			return auth.ErrTokenUsed
		}
		token.Used = true
		for _, user := range t.s.users {
			if strings.EqualFold(user.Email, token.Email) {
				user.PasswordHash = passwordHash
				return nil
			}
		}
		return auth.ErrNotFound
	}
	return auth.ErrTokenUsed
}

func (t stubTokens) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var purged int64
	for hash, token := range t.s.tokens {
		if token.ExpiresAt.Before(before) {
			delete(t.s.tokens, hash)
			purged++
		}
	}
	return purged, nil
}

// stubMailer records delivered raw tokens.
type stubMailer struct {
	mu     sync.Mutex
	tokens []string
	fail   bool
}

func (m *stubMailer) SendResetToken(_, _, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.tokens = append(m.tokens, rawToken)
	return nil
}

func (m *stubMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		return ""
	}
	return m.tokens[len(m.tokens)-1]
}

// newTestAPI seeds an admin holding full rights on every window and a
// coordinator holding read-only rights on Roles.
func newTestAPI(t *testing.T) (*API, *stubStore, *stubMailer) {
	t.Helper()
	t.Setenv("BACKOFFICE_AUTH_SECRET", "httpapi-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := newStubStore()
	store.roles[auth.AdminRoleID] = &auth.Role{ID: auth.AdminRoleID, Name: "ADMIN", Status: auth.StatusActive}
	store.roles[2] = &auth.Role{ID: 2, Name: "COORDINADOR", Status: auth.StatusActive}
	store.nextRole = 3
	for i, name := range []string{"Usuarios", "Roles", "Ventanas", "Auditoria"} {
		id := int64(i + 1)
		store.windows[id] = &auth.Window{ID: id, Name: name}
		store.grants[[2]int64{auth.AdminRoleID, id}] = auth.Grant{
			RoleID: auth.AdminRoleID, WindowID: id,
			CanCreate: true, CanRead: true, CanUpdate: true, CanDelete: true,
		}
	}
	store.grants[[2]int64{2, 2}] = auth.Grant{RoleID: 2, WindowID: 2, CanRead: true}

	adminHash, err := auth.HashPassword("Segura123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store.users["user-admin"] = &auth.User{
		ID: "user-admin", Email: "admin@ong.example", FullName: "Administración",
		PasswordHash: adminHash, Status: auth.StatusActive,
	}
	store.userRoles["user-admin"] = []int64{auth.AdminRoleID}

	coordHash, err := auth.HashPassword("Segura123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store.users["user-coord"] = &auth.User{
		ID: "user-coord", Email: "coord@ong.example", FullName: "Coordinación",
		PasswordHash: coordHash, Status: auth.StatusActive,
	}
	store.userRoles["user-coord"] = []int64{2}

	svc, err := auth.NewService(store)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	mailer := &stubMailer{}
	recovery, err := auth.NewRecovery(store, mailer)
	if err != nil {
		t.Fatalf("recovery: %v", err)
	}
	return New(svc, recovery, ReadyProbe{}, "test"), store, mailer
}

func bearerFor(t *testing.T, userID string, roles []string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, roles, time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}
