package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/ongsolidaria/backoffice/internal/ids"
	"github.com/ongsolidaria/backoffice/internal/obs"
)

const (
	// resetTokenBytes gives 256 bits of entropy per raw token.
	resetTokenBytes = 32
	resetTokenTTL   = 30 * time.Minute
)

// Mailer delivers the raw reset token out-of-band. Delivery failures must
// never change the caller-visible outcome of a reset request.
type Mailer interface {
	SendResetToken(to, name, rawToken string) error
}

// Recovery owns the reset-token lifecycle: request, verify, consume.
type Recovery struct {
	store  Store
	mailer Mailer
	now    func() time.Time
	ttl    time.Duration
}

// RecoveryOption configures Recovery behavior.
type RecoveryOption func(*Recovery)

// WithRecoveryClock overrides the time source (useful for tests).
func WithRecoveryClock(fn func() time.Time) RecoveryOption {
	return func(r *Recovery) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) RecoveryOption {
	return func(r *Recovery) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewRecovery constructs a Recovery.
func NewRecovery(store Store, mailer Mailer, opts ...RecoveryOption) (*Recovery, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	rec := &Recovery{
		store:  store,
		mailer: mailer,
		now:    time.Now,
		ttl:    resetTokenTTL,
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec, nil
}

// RequestReset starts the recovery flow. The caller always receives the
// same generic outcome whether the account exists or not; an absent or
// inactive account surfaces in the logs only, never in the response. This
// is the single documented place where a failure is deliberately swallowed.
func (r *Recovery) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}
	user, err := r.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LogRequest(map[string]any{
				"level": "info",
				"msg":   "reset requested for unknown account",
			})
			return nil
		}
		return err
	}
	if user.Status != StatusActive {
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "reset requested for inactive account",
		})
		return nil
	}

	raw, err := generateResetToken()
	if err != nil {
		return err
	}
	now := r.now().UTC()
	token := &ResetToken{
		ID:        ids.New(),
		Email:     user.Email,
		TokenHash: HashResetToken(raw),
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}
	// Replace supersedes every prior unused token in the same transaction
	// that inserts the new one, so a concurrent request cannot leave an
	// older token usable past the newest issue.
	if err := r.store.ResetTokens(ctx).Replace(ctx, token); err != nil {
		return err
	}

	if r.mailer != nil {
		if err := r.mailer.SendResetToken(user.Email, user.FullName, raw); err != nil {
			obs.CountResetMailFailure()
			obs.LogRequest(map[string]any{
				"level": "error",
				"msg":   "reset token delivery failed",
				"error": err.Error(),
			})
		}
	}
	return nil
}

// VerifyToken checks a raw token without consuming it. A token is expired
// strictly after its expiry instant (now > expiresAt); a token presented at
// the exact instant is still valid. ResetPassword uses the same comparison.
func (r *Recovery) VerifyToken(ctx context.Context, rawToken string) (string, error) {
	token, err := r.lookup(ctx, rawToken)
	if err != nil {
		return "", err
	}
	return token.Email, nil
}

// ResetPassword consumes a token and rewrites the owner's credential. The
// verification is re-run here so a token invalidated between a verify call
// and the reset still fails, and the store performs the password write and
// the used flag flip in one transaction.
func (r *Recovery) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	token, err := r.lookup(ctx, rawToken)
	if err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	// Consume is a conditional update on used=false; the loser of a
	// concurrent race observes ErrTokenUsed.
	if err := r.store.ResetTokens(ctx).Consume(ctx, token.ID, hash); err != nil {
		return err
	}

	entry := &AuditEntry{
		ID:         ids.New(),
		Email:      token.Email,
		OccurredAt: r.now().UTC(),
		Action:     AuditPasswordReset,
		Detail:     "contraseña restablecida mediante token",
		Resource:   "usuarios",
	}
	if err := r.store.Audit(ctx).Append(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "audit append failed",
			"error": err.Error(),
		})
	}
	return nil
}

// PurgeExpired removes tokens past their expiry. It is a maintenance task;
// correctness never depends on it running.
func (r *Recovery) PurgeExpired(ctx context.Context) (int64, error) {
	return r.store.ResetTokens(ctx).PurgeExpired(ctx, r.now().UTC())
}

func (r *Recovery) lookup(ctx context.Context, rawToken string) (*ResetToken, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrTokenInvalid
	}
	token, err := r.store.ResetTokens(ctx).FindByHash(ctx, HashResetToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if token.Used {
		return nil, ErrTokenUsed
	}
	if r.now().UTC().After(token.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

func generateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashResetToken returns the sha256 digest of a raw token, base64url
// encoded. Only this digest is ever persisted.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
