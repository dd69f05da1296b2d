// Package service composes tickets, access tokens, refresh tokens and password resets
// into the operations exposed by AuthService.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenant-identity/backend/internal/audit"
	companydomain "tenant-identity/backend/internal/company/domain"
	identitydomain "tenant-identity/backend/internal/identity/domain"
	membershipdomain "tenant-identity/backend/internal/membership/domain"
	"tenant-identity/backend/internal/passwordreset"
	"tenant-identity/backend/internal/security"
	"tenant-identity/backend/internal/session"
	sessiondomain "tenant-identity/backend/internal/session/domain"
	"tenant-identity/backend/internal/ticket"
	userdomain "tenant-identity/backend/internal/user/domain"
)

// AuthResult holds the outcome of LoginWithCompany or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       *security.AccessClaims
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// MembershipRepo is the minimal membership repository needed by the auth service.
type MembershipRepo interface {
	GetByUserAndCompany(ctx context.Context, userID, companyID string) (*membershipdomain.Membership, error)
	RevokeByUserAndCompany(ctx context.Context, userID, companyID string) (bool, error)
}

// CompanyRepo is the minimal company repository needed by the auth service.
type CompanyRepo interface {
	GetByID(ctx context.Context, id string) (*companydomain.Company, error)
}

// AuthService implements ticket login, refresh, logout, password reset and admin session revocation.
type AuthService struct {
	users       UserRepo
	memberships MembershipRepo
	companies   CompanyRepo
	tickets     *ticket.Issuer
	sessions    *session.TokenStore
	resets      *passwordreset.Flow
	tokens      *security.TokenProvider
	rotate      bool
	audit       audit.AuditLogger
}

// NewAuthService returns an AuthService with the given dependencies. Refresh does not rotate unless WithRotation is set.
func NewAuthService(
	users UserRepo,
	memberships MembershipRepo,
	companies CompanyRepo,
	tickets *ticket.Issuer,
	sessions *session.TokenStore,
	resets *passwordreset.Flow,
	tokens *security.TokenProvider,
) *AuthService {
	return &AuthService{
		users:       users,
		memberships: memberships,
		companies:   companies,
		tickets:     tickets,
		sessions:    sessions,
		resets:      resets,
		tokens:      tokens,
	}
}

// WithRotation makes Refresh exchange the presented refresh token for a new one.
func (s *AuthService) WithRotation(rotate bool) *AuthService {
	s.rotate = rotate
	return s
}

// WithAuditLogger records logins, refreshes, logouts and admin revocations.
func (s *AuthService) WithAuditLogger(l audit.AuditLogger) *AuthService {
	s.audit = l
	return s
}

// RequestTicket verifies credentials and returns the selectable companies and a login ticket.
func (s *AuthService) RequestTicket(ctx context.Context, email, password string) ([]identitydomain.CompanySummary, string, error) {
	return s.tickets.RequestTicket(ctx, email, password)
}

// LoginWithCompany redeems the ticket and opens a session in companyID. The ticket is consumed
// before the user and membership are re-checked, so a failure after redemption still burns it.
func (s *AuthService) LoginWithCompany(ctx context.Context, email, companyID, ticketID, clientInfo string) (*AuthResult, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return nil, identitydomain.ErrInvalidCredentials
	}
	t, err := s.tickets.Redeem(ctx, ticketID, email)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, t.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %v", identitydomain.ErrUnavailable, err)
	}
	if !user.Active() {
		return nil, identitydomain.ErrInvalidCredentials
	}
	m, err := s.activeMembership(ctx, user.ID, companyID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		s.log(ctx, companyID, user.ID, "login_denied", "reason=no_active_membership")
		return nil, identitydomain.ErrInvalidCredentials
	}

	access, claims, err := s.tokens.IssueAccess(security.AccessSubject{
		UserID:    user.ID,
		Email:     user.Email,
		CompanyID: companyID,
		Role:      string(m.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: issue access token: %w", err)
	}
	refresh, _, err := s.sessions.Issue(ctx, user.ID, companyID, clientInfo)
	if err != nil {
		return nil, err
	}
	s.log(ctx, companyID, user.ID, "login_succeeded", "")
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.Time,
		Claims:       claims,
	}, nil
}

// activeMembership returns the membership only if both it and its company are active.
func (s *AuthService) activeMembership(ctx context.Context, userID, companyID string) (*membershipdomain.Membership, error) {
	m, err := s.memberships.GetByUserAndCompany(ctx, userID, companyID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup membership: %v", identitydomain.ErrUnavailable, err)
	}
	if !m.Active() {
		return nil, nil
	}
	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup company: %v", identitydomain.ErrUnavailable, err)
	}
	if !c.Active() {
		return nil, nil
	}
	return m, nil
}

// Refresh mints a new access token for the company the refresh token was issued in.
// The user, membership and company are re-checked so a revoked membership ends the session.
// With rotation enabled the returned refresh token replaces the presented one.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientInfo string) (*AuthResult, error) {
	rt, err := s.sessions.Resolve(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if rt.Revoked && s.rotate {
		_, _, err := s.sessions.Rotate(ctx, refreshToken, clientInfo)
		s.log(ctx, rt.CompanyID, rt.UserID, "refresh_reuse_detected", "")
		return nil, err
	}
	if !rt.Active(s.sessionClock()) {
		return nil, identitydomain.ErrRevokedOrExpiredToken
	}
	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %v", identitydomain.ErrUnavailable, err)
	}
	m, err := s.activeMembership(ctx, rt.UserID, rt.CompanyID)
	if err != nil {
		return nil, err
	}
	if !user.Active() || m == nil {
		if _, err := s.sessions.Revoke(ctx, rt.ID); err != nil {
			return nil, err
		}
		return nil, identitydomain.ErrRevokedOrExpiredToken
	}

	next := refreshToken
	if s.rotate {
		next, _, err = s.sessions.Rotate(ctx, refreshToken, clientInfo)
		if err != nil {
			return nil, err
		}
	}
	access, claims, err := s.tokens.IssueAccess(security.AccessSubject{
		UserID:    user.ID,
		Email:     user.Email,
		CompanyID: rt.CompanyID,
		Role:      string(m.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: issue access token: %w", err)
	}
	s.log(ctx, rt.CompanyID, user.ID, "token_refreshed", fmt.Sprintf("rotated=%t", s.rotate))
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: next,
		ExpiresAt:    claims.ExpiresAt.Time,
		Claims:       claims,
	}, nil
}

// Logout revokes the presented refresh token. Unknown and already revoked tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	rt, err := s.sessions.Resolve(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, identitydomain.ErrInvalidRefreshToken) {
			s.log(ctx, "", "", "logout_unknown_token", "")
			return nil
		}
		return err
	}
	revoked, err := s.sessions.Revoke(ctx, rt.ID)
	if err != nil {
		return err
	}
	if revoked {
		s.log(ctx, rt.CompanyID, rt.UserID, "logout", "")
	}
	return nil
}

// RequestPasswordReset starts a reset. It reports success for unknown emails too.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.resets.RequestReset(ctx, email)
}

// CompletePasswordReset sets the new password and revokes every refresh token of the user.
func (s *AuthService) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	return s.resets.CompleteReset(ctx, resetToken, newPassword)
}

// RevokeUserSessions revokes targetUserID's refresh tokens in companyID. The caller must already be
// authorized as an admin of companyID. With revokeMembership the target also loses access to the company.
func (s *AuthService) RevokeUserSessions(ctx context.Context, companyID, actorUserID, targetUserID string, revokeMembership bool) (int64, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return 0, identitydomain.ErrNotCompanyMember
	}
	m, err := s.memberships.GetByUserAndCompany(ctx, targetUserID, companyID)
	if err != nil {
		return 0, fmt.Errorf("%w: lookup membership: %v", identitydomain.ErrUnavailable, err)
	}
	if m == nil {
		return 0, identitydomain.ErrNotCompanyMember
	}
	if revokeMembership {
		if _, err := s.memberships.RevokeByUserAndCompany(ctx, targetUserID, companyID); err != nil {
			return 0, fmt.Errorf("%w: revoke membership: %v", identitydomain.ErrUnavailable, err)
		}
	}
	n, err := s.sessions.RevokeAllForUserInCompany(ctx, targetUserID, companyID)
	if err != nil {
		return 0, err
	}
	s.log(ctx, companyID, actorUserID, "user_sessions_revoked",
		fmt.Sprintf("target=%s tokens=%d membership_revoked=%t", targetUserID, n, revokeMembership))
	return n, nil
}

// ResolveRefreshToken exposes the stored record behind a refresh token, revoked or not.
func (s *AuthService) ResolveRefreshToken(ctx context.Context, refreshToken string) (*sessiondomain.RefreshToken, error) {
	return s.sessions.Resolve(ctx, refreshToken)
}

func (s *AuthService) sessionClock() time.Time {
	return s.sessions.Now()
}

func (s *AuthService) log(ctx context.Context, companyID, userID, action, metadata string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, companyID, userID, action, "auth", metadata)
	}
}
