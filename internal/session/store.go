// Package session stores the refresh-token half of company-scoped sessions.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	identitydomain "tenant-identity/backend/internal/identity/domain"
	"tenant-identity/backend/internal/security"
	"tenant-identity/backend/internal/session/domain"
	sessionrepo "tenant-identity/backend/internal/session/repository"
)

// TokenStore issues, resolves and revokes refresh tokens.
type TokenStore struct {
	repo sessionrepo.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewTokenStore returns a TokenStore whose tokens expire ttl after issuance.
func NewTokenStore(repo sessionrepo.Repository, ttl time.Duration) *TokenStore {
	return &TokenStore{repo: repo, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source.
func (s *TokenStore) WithClock(now func() time.Time) *TokenStore {
	s.now = now
	return s
}

// Now returns the store's current time.
func (s *TokenStore) Now() time.Time {
	return s.now()
}

// Issue persists a new refresh token and returns its plaintext secret. The secret is not recoverable afterwards.
func (s *TokenStore) Issue(ctx context.Context, userID, companyID, clientInfo string) (string, *domain.RefreshToken, error) {
	secret, err := security.NewSecret()
	if err != nil {
		return "", nil, fmt.Errorf("session: generate secret: %w", err)
	}
	now := s.now()
	t := &domain.RefreshToken{
		ID:         uuid.New().String(),
		UserID:     userID,
		CompanyID:  companyID,
		TokenHash:  security.HashSecret(secret),
		ClientInfo: clientInfo,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return "", nil, fmt.Errorf("%w: create refresh token: %v", identitydomain.ErrUnavailable, err)
	}
	return secret, t, nil
}

// Resolve looks the plaintext up by its hash. A miss is ErrInvalidRefreshToken; revoked and expired
// rows are returned as found so the caller can tell the two apart.
func (s *TokenStore) Resolve(ctx context.Context, plaintext string) (*domain.RefreshToken, error) {
	if plaintext == "" {
		return nil, identitydomain.ErrInvalidRefreshToken
	}
	t, err := s.repo.GetByHash(ctx, security.HashSecret(plaintext))
	if err != nil {
		return nil, fmt.Errorf("%w: lookup refresh token: %v", identitydomain.ErrUnavailable, err)
	}
	if t == nil || !security.SecretHashEqual(plaintext, t.TokenHash) {
		return nil, identitydomain.ErrInvalidRefreshToken
	}
	return t, nil
}

// Revoke revokes a single token. Returns false if it was already revoked.
func (s *TokenStore) Revoke(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Revoke(ctx, id, s.now())
	if err != nil {
		return false, fmt.Errorf("%w: revoke refresh token: %v", identitydomain.ErrUnavailable, err)
	}
	return ok, nil
}

// RevokeAllForUser revokes every token of the user stored when the call runs, whatever its issued_at.
// Tokens stored after the call returns stay valid.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: revoke refresh tokens: %v", identitydomain.ErrUnavailable, err)
	}
	return n, nil
}

// RevokeAllForUserInCompany revokes the user's tokens in one company, with the same cut.
func (s *TokenStore) RevokeAllForUserInCompany(ctx context.Context, userID, companyID string) (int64, error) {
	n, err := s.repo.RevokeAllForUserInCompany(ctx, userID, companyID, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: revoke company refresh tokens: %v", identitydomain.ErrUnavailable, err)
	}
	return n, nil
}

// Rotate exchanges an active token for a new one in the same company. Presenting a revoked token,
// or losing the revoke race to a concurrent rotation, is treated as reuse: every token of the user
// is revoked and ErrRefreshTokenReuse is returned.
func (s *TokenStore) Rotate(ctx context.Context, plaintext, clientInfo string) (string, *domain.RefreshToken, error) {
	old, err := s.Resolve(ctx, plaintext)
	if err != nil {
		return "", nil, err
	}
	if old.Revoked {
		return "", nil, s.reuse(ctx, old.UserID)
	}
	if !old.Active(s.now()) {
		return "", nil, identitydomain.ErrRevokedOrExpiredToken
	}
	won, err := s.Revoke(ctx, old.ID)
	if err != nil {
		return "", nil, err
	}
	if !won {
		return "", nil, s.reuse(ctx, old.UserID)
	}
	if clientInfo == "" {
		clientInfo = old.ClientInfo
	}
	return s.Issue(ctx, old.UserID, old.CompanyID, clientInfo)
}

func (s *TokenStore) reuse(ctx context.Context, userID string) error {
	if _, err := s.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	return identitydomain.ErrRefreshTokenReuse
}

// SweepExpired deletes tokens that expired before the cutoff.
func (s *TokenStore) SweepExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, before)
}
