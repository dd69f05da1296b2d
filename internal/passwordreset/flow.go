// Package passwordreset runs the emailed-token password recovery flow. Completing a
// reset revokes every refresh token of the user.
package passwordreset

import (
	"context"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tenant-identity/backend/internal/audit"
	identitydomain "tenant-identity/backend/internal/identity/domain"
	"tenant-identity/backend/internal/notification"
	"tenant-identity/backend/internal/passwordreset/domain"
	resetrepo "tenant-identity/backend/internal/passwordreset/repository"
	"tenant-identity/backend/internal/security"
	userdomain "tenant-identity/backend/internal/user/domain"
)

// MinPasswordLength is the shortest accepted new password, in characters.
const MinPasswordLength = 8

// UserRepo is the minimal user repository needed by the flow.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) (bool, error)
}

// PasswordHasher produces the stored form of a new password.
type PasswordHasher interface {
	Hash(password []byte) (string, error)
}

// SessionRevoker revokes every refresh token of a user.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// Flow implements RequestReset and CompleteReset.
type Flow struct {
	users    UserRepo
	requests resetrepo.Repository
	hasher   PasswordHasher
	sessions SessionRevoker
	notifier notification.Notifier
	ttl      time.Duration
	resetURL string
	now      func() time.Time
	audit    audit.AuditLogger
}

// NewFlow returns a Flow. resetURL is the page the emailed link points at; the token is appended as ?token=.
func NewFlow(users UserRepo, requests resetrepo.Repository, hasher PasswordHasher, sessions SessionRevoker, notifier notification.Notifier, ttl time.Duration, resetURL string) *Flow {
	return &Flow{
		users:    users,
		requests: requests,
		hasher:   hasher,
		sessions: sessions,
		notifier: notifier,
		ttl:      ttl,
		resetURL: resetURL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (f *Flow) WithClock(now func() time.Time) *Flow {
	f.now = now
	return f
}

// WithAuditLogger records reset requests and completions.
func (f *Flow) WithAuditLogger(l audit.AuditLogger) *Flow {
	f.audit = l
	return f
}

// RequestReset starts a reset for email. It returns nil whether or not the email belongs to an active
// user; only storage failures surface, as ErrUnavailable. Any earlier outstanding request of the user is revoked.
func (f *Flow) RequestReset(ctx context.Context, email string) error {
	email = userdomain.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	user, err := f.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: lookup user: %v", identitydomain.ErrUnavailable, err)
	}
	if !user.Active() {
		return nil
	}
	token, err := security.NewSecret()
	if err != nil {
		return fmt.Errorf("passwordreset: generate token: %w", err)
	}
	now := f.now()
	req := &domain.Request{
		ID:          uuid.New().String(),
		UserID:      user.ID,
		TokenHash:   security.HashSecret(token),
		Status:      domain.StatusRequested,
		RequestedAt: now,
		ExpiresAt:   now.Add(f.ttl),
	}
	if _, err := f.requests.ReplaceOutstanding(ctx, req); err != nil {
		return fmt.Errorf("%w: replace reset request: %v", identitydomain.ErrUnavailable, err)
	}
	notification.SendAsync(f.notifier, f.message(user.Email, token))
	f.log(ctx, user.ID, "password_reset_requested")
	return nil
}

// CompleteReset sets newPassword for the owner of resetToken and revokes all of the owner's refresh tokens.
// It succeeds at most once per token.
func (f *Flow) CompleteReset(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return identitydomain.ErrInvalidResetToken
	}
	req, err := f.requests.GetByHash(ctx, security.HashSecret(resetToken))
	if err != nil {
		return fmt.Errorf("%w: lookup reset request: %v", identitydomain.ErrUnavailable, err)
	}
	if req == nil {
		return identitydomain.ErrInvalidResetToken
	}
	switch req.Status {
	case domain.StatusUsed, domain.StatusRevoked:
		return identitydomain.ErrTokenAlreadyUsed
	case domain.StatusExpired:
		return identitydomain.ErrTokenExpired
	}
	now := f.now()
	if req.Expired(now) {
		if _, err := f.requests.MarkExpired(ctx, req.ID, now); err != nil {
			return fmt.Errorf("%w: expire reset request: %v", identitydomain.ErrUnavailable, err)
		}
		return identitydomain.ErrTokenExpired
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return identitydomain.ErrWeakPassword
	}
	hash, err := f.hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("passwordreset: hash password: %w", err)
	}

	won, err := f.requests.MarkUsed(ctx, req.ID, now)
	if err != nil {
		return fmt.Errorf("%w: consume reset request: %v", identitydomain.ErrUnavailable, err)
	}
	if !won {
		return identitydomain.ErrTokenAlreadyUsed
	}

	// The request is consumed from here on; a failure below leaves the old password
	// in place and the user must request a new reset.
	updated, err := f.users.UpdatePassword(ctx, req.UserID, hash, now)
	if err != nil {
		return fmt.Errorf("%w: update password: %v", identitydomain.ErrUnavailable, err)
	}
	if !updated {
		return identitydomain.ErrInvalidResetToken
	}
	if _, err := f.sessions.RevokeAllForUser(ctx, req.UserID); err != nil {
		return err
	}
	f.log(ctx, req.UserID, "password_reset_completed")
	return nil
}

// SweepExpired moves every outstanding request past its expiry to EXPIRED.
func (f *Flow) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return f.requests.ExpireStale(ctx, now)
}

func (f *Flow) message(to, token string) notification.Message {
	link := f.resetURL + "?token=" + url.QueryEscape(token)
	return notification.Message{
		To:      to,
		Subject: "Reset your password",
		Body: "A password reset was requested for this account.\n\n" +
			"Open the link below within " + f.ttl.String() + " to choose a new password:\n" + link + "\n\n" +
			"If you did not request this, ignore this email.",
	}
}

func (f *Flow) log(ctx context.Context, userID, action string) {
	if f.audit != nil {
		f.audit.LogEvent(ctx, "", userID, action, "user", "")
	}
}
