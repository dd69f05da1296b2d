package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"tenant-identity/backend/internal/audit"
)

// AuditUnary returns a unary server interceptor that records an audit event after each authenticated RPC,
// including ones rejected by the handler. skipMethods is the set of full method names to not audit (e.g. health Check).
// Only writes when company_id is set (authenticated context).
func AuditUnary(logger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		companyID, _ := GetCompanyID(ctx)
		if companyID == "" {
			return resp, err
		}
		userID, _ := GetUserID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, companyID, userID, ar.Action, ar.Resource, "status="+status.Code(err).String())
		return resp, err
	}
}

// ClientIP returns the address resolved by ClientIPUnary, else the transport peer, else "unknown".
// Forwarding metadata is never read here: a caller can put anything in it.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	if a, ok := peerAddr(ctx); ok {
		return a.String()
	}
	return "unknown"
}
