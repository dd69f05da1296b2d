package interceptors

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"tenant-identity/backend/internal/ratelimit"
)

type stubLimiter struct {
	decision ratelimit.Decision
	op       string
	caller   ratelimit.Caller
}

func (s *stubLimiter) Check(ctx context.Context, op string, c ratelimit.Caller) ratelimit.Decision {
	s.op, s.caller = op, c
	return s.decision
}

type countingRecorder struct {
	allowed, declined int
}

func (c *countingRecorder) RateLimitDecision(ctx context.Context, op string, allowed bool) {
	if allowed {
		c.allowed++
	} else {
		c.declined++
	}
}

// trailerStream captures trailers set through grpc.SetTrailer.
type trailerStream struct {
	trailer metadata.MD
}

func (s *trailerStream) Method() string                  { return "" }
func (s *trailerStream) SetHeader(md metadata.MD) error  { return nil }
func (s *trailerStream) SendHeader(md metadata.MD) error { return nil }
func (s *trailerStream) SetTrailer(md metadata.MD) error {
	s.trailer = metadata.Join(s.trailer, md)
	return nil
}

func TestRateLimitUnary_Allowed(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
	rec := &countingRecorder{}
	interceptor := RateLimitUnary(limiter, rec)
	ctx := WithIdentity(peerContext("198.51.100.4"), "user-1", "company-1", "ADMIN")
	resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/tenantidentity.auth.v1.AuthService/Logout"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil })
	if err != nil || resp != "ok" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if limiter.op != "Logout" || limiter.caller.UserID != "user-1" || limiter.caller.IP != "198.51.100.4" {
		t.Errorf("limiter saw op=%q caller=%+v", limiter.op, limiter.caller)
	}
	if rec.allowed != 1 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestRateLimitUnary_Declined(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}}
	rec := &countingRecorder{}
	interceptor := RateLimitUnary(limiter, rec)
	stream := &trailerStream{}
	ctx := grpc.NewContextWithServerTransportStream(context.Background(), stream)
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/tenantidentity.auth.v1.AuthService/RequestTicket"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("err = %v, want ResourceExhausted", err)
	}
	if got := stream.trailer.Get("retry-after"); len(got) != 1 || got[0] != "2" {
		t.Errorf("retry-after = %v, want [2]", got)
	}
	if rec.declined != 1 {
		t.Errorf("recorder = %+v", rec)
	}
}
