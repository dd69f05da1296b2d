// Package ticket issues and redeems the single-use login tickets that bridge
// the credential check and company selection.
package ticket

import (
	"context"
	"fmt"
	"time"

	"tenant-identity/backend/internal/audit"
	companydomain "tenant-identity/backend/internal/company/domain"
	identitydomain "tenant-identity/backend/internal/identity/domain"
	membershipdomain "tenant-identity/backend/internal/membership/domain"
	"tenant-identity/backend/internal/security"
	"tenant-identity/backend/internal/ticket/domain"
	ticketrepo "tenant-identity/backend/internal/ticket/repository"
	userdomain "tenant-identity/backend/internal/user/domain"
)

// UserRepo is the minimal user repository needed by the issuer.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// MembershipRepo is the minimal membership repository needed by the issuer.
type MembershipRepo interface {
	ListByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error)
}

// CompanyRepo is the minimal company repository needed by the issuer.
type CompanyRepo interface {
	GetByID(ctx context.Context, id string) (*companydomain.Company, error)
}

// Verifier checks a plaintext password against a stored hash.
type Verifier interface {
	Verify(password, hash string) bool
	// BurnCompare spends the same work as Verify for a user that does not exist.
	BurnCompare(password string)
}

// Issuer implements RequestTicket and Redeem.
type Issuer struct {
	users       UserRepo
	memberships MembershipRepo
	companies   CompanyRepo
	tickets     ticketrepo.Repository
	verifier    Verifier
	ttl         time.Duration
	now         func() time.Time
	audit       audit.AuditLogger
}

// NewIssuer returns an Issuer whose tickets live for ttl.
func NewIssuer(users UserRepo, memberships MembershipRepo, companies CompanyRepo, tickets ticketrepo.Repository, verifier Verifier, ttl time.Duration) *Issuer {
	return &Issuer{
		users:       users,
		memberships: memberships,
		companies:   companies,
		tickets:     tickets,
		verifier:    verifier,
		ttl:         ttl,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// WithAuditLogger records why credential checks were denied. The caller only ever sees ErrInvalidCredentials.
func (i *Issuer) WithAuditLogger(l audit.AuditLogger) *Issuer {
	i.audit = l
	return i
}

// RequestTicket verifies email and password and, on success, returns the user's selectable companies
// and a fresh ticket bound to the normalized email. An unknown email, a wrong password and a disabled
// user all yield ErrInvalidCredentials.
func (i *Issuer) RequestTicket(ctx context.Context, email, password string) ([]identitydomain.CompanySummary, string, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		i.deny(ctx, "", "missing_fields")
		return nil, "", identitydomain.ErrInvalidCredentials
	}
	user, err := i.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("%w: lookup user: %v", identitydomain.ErrUnavailable, err)
	}
	if user == nil {
		i.verifier.BurnCompare(password)
		i.deny(ctx, "", "unknown_email")
		return nil, "", identitydomain.ErrInvalidCredentials
	}
	if !i.verifier.Verify(password, user.PasswordHash) {
		i.deny(ctx, user.ID, "bad_password")
		return nil, "", identitydomain.ErrInvalidCredentials
	}
	if !user.Active() {
		i.deny(ctx, user.ID, "user_disabled")
		return nil, "", identitydomain.ErrInvalidCredentials
	}

	summaries, err := i.eligibleCompanies(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	id, err := security.NewSecret()
	if err != nil {
		return nil, "", fmt.Errorf("ticket: generate id: %w", err)
	}
	now := i.now()
	t := &domain.LoginTicket{
		ID:        id,
		Email:     email,
		ExpiresAt: now.Add(i.ttl),
		CreatedAt: now,
	}
	if err := i.tickets.Create(ctx, t); err != nil {
		return nil, "", fmt.Errorf("%w: create ticket: %v", identitydomain.ErrUnavailable, err)
	}
	if i.audit != nil {
		i.audit.LogEvent(ctx, "", user.ID, "ticket_issued", "auth", fmt.Sprintf("companies=%d", len(summaries)))
	}
	return summaries, id, nil
}

// eligibleCompanies returns summaries for memberships that are active in active companies.
func (i *Issuer) eligibleCompanies(ctx context.Context, userID string) ([]identitydomain.CompanySummary, error) {
	list, err := i.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list memberships: %v", identitydomain.ErrUnavailable, err)
	}
	out := make([]identitydomain.CompanySummary, 0, len(list))
	for _, m := range list {
		if !m.Active() {
			continue
		}
		c, err := i.companies.GetByID(ctx, m.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup company: %v", identitydomain.ErrUnavailable, err)
		}
		if !c.Active() {
			continue
		}
		out = append(out, identitydomain.CompanySummary{
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Role:        string(m.Role),
		})
	}
	return out, nil
}

// Redeem consumes the ticket in one conditional update. Unknown, used, expired and
// email-mismatched tickets are indistinguishable and yield ErrInvalidTicket.
func (i *Issuer) Redeem(ctx context.Context, ticketID, email string) (*domain.LoginTicket, error) {
	email = userdomain.NormalizeEmail(email)
	if ticketID == "" || email == "" {
		return nil, identitydomain.ErrInvalidTicket
	}
	t, err := i.tickets.Consume(ctx, ticketID, email, i.now())
	if err != nil {
		return nil, fmt.Errorf("%w: consume ticket: %v", identitydomain.ErrUnavailable, err)
	}
	if t == nil {
		return nil, identitydomain.ErrInvalidTicket
	}
	return t, nil
}

// SweepExpired deletes tickets that expired before the cutoff.
func (i *Issuer) SweepExpired(ctx context.Context, before time.Time) (int64, error) {
	return i.tickets.DeleteExpired(ctx, before)
}

func (i *Issuer) deny(ctx context.Context, userID, reason string) {
	if i.audit == nil {
		return
	}
	i.audit.LogEvent(ctx, "", userID, "ticket_denied", "auth", "reason="+reason)
}
