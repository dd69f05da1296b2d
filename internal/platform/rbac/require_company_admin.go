package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tenant-identity/backend/internal/membership/domain"
	"tenant-identity/backend/internal/server/interceptors"
)

// CompanyMembershipGetter returns a user's membership in a company. Used by RequireCompanyAdmin to resolve the caller's current role.
type CompanyMembershipGetter interface {
	GetByUserAndCompany(ctx context.Context, userID, companyID string) (*domain.Membership, error)
}

// RequireCompanyAdmin ensures the caller is authenticated and holds an active ADMIN membership in the company
// named by their access token. The role claim is not trusted on its own: a membership revoked or demoted
// since the token was minted is denied.
// Returns (companyID, userID, nil) on success; returns a gRPC error (Unauthenticated, PermissionDenied or Unavailable) on failure.
func RequireCompanyAdmin(ctx context.Context, getter CompanyMembershipGetter) (companyID, userID string, err error) {
	companyID, okCompany := interceptors.GetCompanyID(ctx)
	userID, okUser := interceptors.GetUserID(ctx)
	if !okCompany || companyID == "" || !okUser || userID == "" {
		return "", "", status.Error(codes.Unauthenticated, "company and user context required")
	}
	if role, _ := interceptors.GetRole(ctx); role != string(domain.RoleAdmin) {
		return "", "", status.Error(codes.PermissionDenied, "company admin required")
	}
	m, err := getter.GetByUserAndCompany(ctx, userID, companyID)
	if err != nil {
		return "", "", status.Error(codes.Unavailable, "failed to resolve membership")
	}
	if !m.Active() {
		return "", "", status.Error(codes.PermissionDenied, "not a member of this company")
	}
	if m.Role != domain.RoleAdmin {
		return "", "", status.Error(codes.PermissionDenied, "company admin required")
	}
	return companyID, userID, nil
}
