package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tenant-identity/backend/internal/audit"
	healthhandler "tenant-identity/backend/internal/health/handler"
	identityhandler "tenant-identity/backend/internal/identity/handler"
	identityservice "tenant-identity/backend/internal/identity/service"
	"tenant-identity/backend/internal/platform/rbac"
	"tenant-identity/backend/internal/server/interceptors"
	"tenant-identity/backend/internal/telemetry"
	telemetryotel "tenant-identity/backend/internal/telemetry/otel"
)

// Deps holds optional service dependencies for gRPC handlers and interceptors.
type Deps struct {
	// Auth is the auth service. If nil, auth RPCs return Unimplemented.
	Auth *identityservice.AuthService
	// Memberships resolves the caller's current membership for admin RPCs.
	Memberships rbac.CompanyMembershipGetter
	// Metrics records auth and rate-limit counters. May be nil.
	Metrics *telemetryotel.Metrics
	// Health serves grpc.health.v1. If nil, a server with no dependency checks is registered.
	Health *healthhandler.Server

	// Tokens validates Bearer access tokens. If nil, no auth interceptor is installed and every
	// caller is anonymous.
	Tokens interceptors.AccessTokenParser
	// Limiter gates every unary RPC. If nil, requests are not rate limited.
	Limiter interceptors.RateLimiter
	// AuditLogger records authenticated RPCs. If nil, RPCs are not audited.
	AuditLogger audit.AuditLogger
	// Emitter receives one grpc_request event per RPC. If nil, no request events are emitted.
	Emitter telemetry.EventEmitter
	// Proxies resolves client addresses forwarded by trusted proxies. If nil, the transport peer is the client.
	Proxies *interceptors.ProxyResolver
	// RequestTimeout bounds each RPC; zero disables the deadline.
	RequestTimeout time.Duration
}

// PublicMethods are the RPCs that run without a Bearer token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		identityhandler.FullMethod("RequestTicket"):         true,
		identityhandler.FullMethod("LoginWithCompany"):      true,
		identityhandler.FullMethod("Refresh"):               true,
		identityhandler.FullMethod("Logout"):                true,
		identityhandler.FullMethod("RequestPasswordReset"):  true,
		identityhandler.FullMethod("CompletePasswordReset"): true,
		healthpb.Health_Check_FullMethodName:                true,
		healthpb.Health_Watch_FullMethodName:                true,
	}
}

func healthMethods() map[string]bool {
	return map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
	}
}

// UnaryInterceptors returns the interceptor chain in order: timeout, auth, rate limit, audit, telemetry.
// Links whose dependency is nil are left out.
func UnaryInterceptors(deps Deps) []grpc.UnaryServerInterceptor {
	var chain []grpc.UnaryServerInterceptor
	if deps.Proxies != nil {
		chain = append(chain, interceptors.ClientIPUnary(deps.Proxies))
	}
	if deps.RequestTimeout > 0 {
		chain = append(chain, interceptors.TimeoutUnary(deps.RequestTimeout))
	}
	if deps.Tokens != nil {
		chain = append(chain, interceptors.AuthUnary(deps.Tokens, PublicMethods()))
	}
	if deps.Limiter != nil {
		var recorder interceptors.DecisionRecorder
		if deps.Metrics != nil {
			recorder = deps.Metrics
		}
		chain = append(chain, interceptors.RateLimitUnary(deps.Limiter, recorder))
	}
	if deps.AuditLogger != nil {
		chain = append(chain, interceptors.AuditUnary(deps.AuditLogger, healthMethods()))
	}
	if deps.Emitter != nil {
		chain = append(chain, interceptors.TelemetryUnary(deps.Emitter, healthMethods()))
	}
	return chain
}

// NewServer builds a gRPC server with the interceptor chain and OTel stats handler, and registers all services.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryInterceptors(deps)...),
	)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
//   - tenantidentity.auth.v1.AuthService → internal/identity/handler
//   - grpc.health.v1.Health              → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth, deps.Memberships, deps.Metrics))
	hs := deps.Health
	if hs == nil {
		hs = healthhandler.NewServer(nil, identityhandler.ServiceName)
		hs.Probe(context.Background())
	}
	healthpb.RegisterHealthServer(s, hs)
}
