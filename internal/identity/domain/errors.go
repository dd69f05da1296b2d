// Package domain holds the outcomes and shared value types of the authentication flows.
package domain

import "errors"

// Sentinel errors for the auth flows; the gRPC handler maps them to status codes.
// Callers branch with errors.Is; storage failures wrap ErrUnavailable.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidTicket         = errors.New("invalid or expired login ticket")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrRevokedOrExpiredToken = errors.New("refresh token revoked or expired")
	ErrRefreshTokenReuse     = errors.New("refresh token reuse detected; all sessions revoked")
	ErrInvalidResetToken     = errors.New("invalid password reset token")
	ErrTokenAlreadyUsed      = errors.New("password reset token already used")
	ErrTokenExpired          = errors.New("password reset token expired")
	ErrWeakPassword          = errors.New("password does not meet requirements")
	ErrNotCompanyMember      = errors.New("user is not a member of the company")
	ErrUnavailable           = errors.New("identity store unavailable")
)

// CompanySummary is one selectable company returned with a login ticket.
type CompanySummary struct {
	CompanyID   string
	CompanyName string
	Role        string
}
