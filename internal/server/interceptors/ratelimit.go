package interceptors

import (
	"context"
	"math"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"tenant-identity/backend/internal/ratelimit"
)

// RateLimiter decides whether a caller may run an operation.
type RateLimiter interface {
	Check(ctx context.Context, op string, c ratelimit.Caller) ratelimit.Decision
}

// DecisionRecorder counts rate-limit outcomes. *otel.Metrics implements it.
type DecisionRecorder interface {
	RateLimitDecision(ctx context.Context, op string, allowed bool)
}

// RateLimitUnary returns a unary server interceptor that spends one token per RPC. It must run after
// AuthUnary so authenticated callers are keyed by user id. A declined call fails with ResourceExhausted
// and a retry-after trailer in whole seconds. recorder may be nil.
func RateLimitUnary(limiter RateLimiter, recorder DecisionRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		op := MethodName(info.FullMethod)
		userID, _ := GetUserID(ctx)
		d := limiter.Check(ctx, op, ratelimit.Caller{IP: ClientIP(ctx), UserID: userID})
		if recorder != nil {
			recorder.RateLimitDecision(ctx, op, d.Allowed)
		}
		if !d.Allowed {
			secs := int64(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			_ = grpc.SetTrailer(ctx, metadata.Pairs("retry-after", strconv.FormatInt(secs, 10)))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// MethodName returns the last segment of a full gRPC method name ("/pkg.Service/Method" → "Method").
func MethodName(fullMethod string) string {
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}
