package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"tenant-identity/backend/internal/security"
)

const bearerPrefix = "bearer "

// AccessTokenParser validates an access token and returns its claims.
type AccessTokenParser interface {
	Parse(token string) (*security.AccessClaims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata and sets user_id, company_id, role in context.
// A missing or invalid token leaves the caller anonymous: public methods still run, every other
// method is rejected with Unauthenticated. publicMethods is the set of full method names that do
// not require a Bearer token (e.g. RequestTicket, LoginWithCompany, Refresh; health Check).
func AuthUnary(tokens AccessTokenParser, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		public := publicMethods[info.FullMethod]
		token := extractBearer(ctx)
		if token != "" {
			if claims, err := tokens.Parse(token); err == nil {
				return handler(WithIdentity(ctx, claims.UserID(), claims.CompanyID, claims.Role), req)
			}
		}
		if public {
			return handler(ctx, req)
		}
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
