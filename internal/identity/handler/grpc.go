package handler

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	identitydomain "tenant-identity/backend/internal/identity/domain"
	"tenant-identity/backend/internal/identity/service"
	"tenant-identity/backend/internal/platform/rbac"
	telemetryotel "tenant-identity/backend/internal/telemetry/otel"
)

// AuthServer implements AuthService over the auth service.
type AuthServer struct {
	auth        *service.AuthService
	memberships rbac.CompanyMembershipGetter
	metrics     *telemetryotel.Metrics
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, every RPC returns Unimplemented.
// memberships backs the admin check of RevokeUserSessions. metrics may be nil.
func NewAuthServer(auth *service.AuthService, memberships rbac.CompanyMembershipGetter, metrics *telemetryotel.Metrics) *AuthServer {
	return &AuthServer{auth: auth, memberships: memberships, metrics: metrics}
}

var errNotConfigured = status.Error(codes.Unimplemented, "auth service not configured")

// RequestTicket verifies email and password and returns the selectable companies with a login ticket.
func (s *AuthServer) RequestTicket(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, errNotConfigured
	}
	companies, ticketID, err := s.auth.RequestTicket(ctx, field(req, "email"), field(req, "password"))
	if err != nil {
		s.metrics.LoginFailed(ctx, "ticket")
		return nil, grpcError(err)
	}
	s.metrics.TicketIssued(ctx)
	list := make([]interface{}, 0, len(companies))
	for _, c := range companies {
		list = append(list, map[string]interface{}{
			"companyId":   c.CompanyID,
			"companyName": c.CompanyName,
			"role":        c.Role,
		})
	}
	return response(map[string]interface{}{
		"ticketId":  ticketID,
		"companies": list,
	})
}

// LoginWithCompany redeems a ticket for an access token and refresh token scoped to one company.
func (s *AuthServer) LoginWithCompany(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, errNotConfigured
	}
	res, err := s.auth.LoginWithCompany(ctx, field(req, "email"), field(req, "companyId"), field(req, "ticketId"), clientInfo(ctx))
	if err != nil {
		s.metrics.LoginFailed(ctx, "login")
		return nil, grpcError(err)
	}
	s.metrics.LoginSucceeded(ctx)
	return authResponse(res)
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, errNotConfigured
	}
	res, err := s.auth.Refresh(ctx, field(req, "refreshToken"), clientInfo(ctx))
	s.metrics.Refreshed(ctx, err == nil)
	if err != nil {
		return nil, grpcError(err)
	}
	return authResponse(res)
}

// Logout revokes the presented refresh token. Unknown tokens succeed.
func (s *AuthServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, errNotConfigured
	}
	if err := s.auth.Logout(ctx, field(req, "refreshToken")); err != nil {
		return nil, grpcError(err)
	}
	return response(map[string]interface{}{})
}

// RequestPasswordReset always succeeds unless the store is unavailable.
func (s *AuthServer) RequestPasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, errNotConfigured
	}
	if err := s.auth.RequestPasswordReset(ctx, field(req, "email")); err != nil {
		return nil, grpcError(err)
	}
	return response(map[string]interface{}{})
}

// CompletePasswordReset sets a new password using an emailed reset token.
func (s *AuthServer) CompletePasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil {
		return nil, errNotConfigured
	}
	if err := s.auth.CompletePasswordReset(ctx, field(req, "resetToken"), field(req, "newPassword")); err != nil {
		return nil, grpcError(err)
	}
	s.metrics.PasswordResetCompleted(ctx)
	return response(map[string]interface{}{})
}

// RevokeUserSessions revokes a user's refresh tokens in the caller's company. Requires company admin.
func (s *AuthServer) RevokeUserSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auth == nil || s.memberships == nil {
		return nil, errNotConfigured
	}
	companyID, actorID, err := rbac.RequireCompanyAdmin(ctx, s.memberships)
	if err != nil {
		return nil, err
	}
	n, err := s.auth.RevokeUserSessions(ctx, companyID, actorID, field(req, "userId"), boolField(req, "revokeMembership"))
	if err != nil {
		return nil, grpcError(err)
	}
	return response(map[string]interface{}{"revoked": float64(n)})
}

func authResponse(res *service.AuthResult) (*structpb.Struct, error) {
	return response(map[string]interface{}{
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"expiresAt":    res.ExpiresAt.UTC().Format(time.RFC3339),
		"userId":       res.Claims.UserID(),
		"companyId":    res.Claims.CompanyID,
		"role":         res.Claims.Role,
	})
}

func response(m map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		log.Printf("auth: encode response: %v", err)
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func field(req *structpb.Struct, key string) string {
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

// clientInfo is the caller's user agent, recorded on refresh tokens.
func clientInfo(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("user-agent"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// grpcError maps auth outcomes to status codes. Credential failures share one message so callers cannot
// tell an unknown email from a wrong password.
func grpcError(err error) error {
	switch {
	case errors.Is(err, identitydomain.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, identitydomain.ErrInvalidTicket):
		return status.Error(codes.Unauthenticated, "invalid or expired login ticket")
	case errors.Is(err, identitydomain.ErrInvalidRefreshToken),
		errors.Is(err, identitydomain.ErrRevokedOrExpiredToken):
		return status.Error(codes.Unauthenticated, "invalid or expired refresh token")
	case errors.Is(err, identitydomain.ErrRefreshTokenReuse):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, identitydomain.ErrInvalidResetToken),
		errors.Is(err, identitydomain.ErrWeakPassword):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, identitydomain.ErrTokenAlreadyUsed),
		errors.Is(err, identitydomain.ErrTokenExpired):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, identitydomain.ErrNotCompanyMember):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, identitydomain.ErrUnavailable):
		log.Printf("auth: %v", err)
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	log.Printf("auth: internal error: %v", err)
	return status.Error(codes.Internal, "internal error")
}
