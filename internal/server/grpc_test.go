package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	companydomain "tenant-identity/backend/internal/company/domain"
	identityhandler "tenant-identity/backend/internal/identity/handler"
	identityservice "tenant-identity/backend/internal/identity/service"
	"tenant-identity/backend/internal/memstore"
	membershipdomain "tenant-identity/backend/internal/membership/domain"
	"tenant-identity/backend/internal/notification"
	"tenant-identity/backend/internal/passwordreset"
	"tenant-identity/backend/internal/ratelimit"
	"tenant-identity/backend/internal/security"
	"tenant-identity/backend/internal/session"
	"tenant-identity/backend/internal/ticket"
	userdomain "tenant-identity/backend/internal/user/domain"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_AllServicesRegistered(t *testing.T) {
	mockReg := &mockServiceRegistrar{}
	RegisterServices(mockReg, Deps{})
	want := []string{identityhandler.ServiceName, healthpb.Health_ServiceDesc.ServiceName}
	if len(mockReg.services) != len(want) {
		t.Fatalf("registered %v, want %v", mockReg.services, want)
	}
	for i := range want {
		if mockReg.services[i] != want[i] {
			t.Errorf("service[%d] = %q, want %q", i, mockReg.services[i], want[i])
		}
	}
}

func TestUnaryInterceptors_SkipsNilDeps(t *testing.T) {
	if n := len(UnaryInterceptors(Deps{})); n != 0 {
		t.Errorf("interceptors with no deps = %d, want 0", n)
	}
	provider, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	n := len(UnaryInterceptors(Deps{Tokens: provider, RequestTimeout: time.Second}))
	if n != 2 {
		t.Errorf("interceptors = %d, want 2", n)
	}
}

func TestPublicMethods(t *testing.T) {
	public := PublicMethods()
	if !public["/tenantidentity.auth.v1.AuthService/RequestTicket"] {
		t.Error("RequestTicket should be public")
	}
	if public["/tenantidentity.auth.v1.AuthService/RevokeUserSessions"] {
		t.Error("RevokeUserSessions must require a token")
	}
}

// denyAfter allows the first n calls and declines the rest.
type denyAfter struct {
	n int
}

func (d *denyAfter) Check(ctx context.Context, op string, c ratelimit.Caller) ratelimit.Decision {
	if d.n <= 0 {
		return ratelimit.Decision{RetryAfter: 2 * time.Second}
	}
	d.n--
	return ratelimit.Decision{Allowed: true}
}

func startServer(t *testing.T, deps Deps) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewServer(deps)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newAuthDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte("pw123"))
	if err != nil {
		t.Fatal(err)
	}
	provider, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	users := memstore.NewUsers()
	companies := memstore.NewCompanies()
	memberships := memstore.NewMemberships()
	for _, err := range []error{
		users.Create(ctx, &userdomain.User{ID: "u1", Email: "a@x.com", PasswordHash: hash, Status: userdomain.UserStatusActive}),
		companies.Create(ctx, &companydomain.Company{ID: "C1", Name: "C1", Status: companydomain.CompanyStatusActive}),
		memberships.Create(ctx, &membershipdomain.Membership{ID: "m1", UserID: "u1", CompanyID: "C1", Role: membershipdomain.RoleAdmin, Status: membershipdomain.StatusActive}),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	issuer := ticket.NewIssuer(users, memberships, companies, memstore.NewTickets(), hasher, 5*time.Minute)
	store := session.NewTokenStore(memstore.NewRefreshTokens(), time.Hour)
	flow := passwordreset.NewFlow(users, memstore.NewResetRequests(), hasher, store, notification.LogNotifier{}, time.Hour, "http://localhost/reset")
	return Deps{
		Auth:           identityservice.NewAuthService(users, memberships, companies, issuer, store, flow, provider),
		Memberships:    memberships,
		Tokens:         provider,
		RequestTimeout: 5 * time.Second,
	}
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestServer_LoginOverTheWire(t *testing.T) {
	deps := newAuthDeps(t)
	conn := startServer(t, deps)
	ctx := context.Background()

	ticketResp := new(structpb.Struct)
	err := conn.Invoke(ctx, identityhandler.FullMethod("RequestTicket"),
		mustStruct(t, map[string]interface{}{"email": "a@x.com", "password": "pw123"}), ticketResp)
	if err != nil {
		t.Fatalf("RequestTicket: %v", err)
	}
	loginResp := new(structpb.Struct)
	err = conn.Invoke(ctx, identityhandler.FullMethod("LoginWithCompany"), mustStruct(t, map[string]interface{}{
		"email":     "a@x.com",
		"companyId": "C1",
		"ticketId":  ticketResp.GetFields()["ticketId"].GetStringValue(),
	}), loginResp)
	if err != nil {
		t.Fatalf("LoginWithCompany: %v", err)
	}
	access := loginResp.GetFields()["accessToken"].GetStringValue()

	revoke := mustStruct(t, map[string]interface{}{"userId": "u1"})
	err = conn.Invoke(ctx, identityhandler.FullMethod("RevokeUserSessions"), revoke, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("RevokeUserSessions without token: code = %v, want Unauthenticated", status.Code(err))
	}

	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+access)
	out := new(structpb.Struct)
	if err := conn.Invoke(authed, identityhandler.FullMethod("RevokeUserSessions"), revoke, out); err != nil {
		t.Fatalf("RevokeUserSessions as admin: %v", err)
	}
	if n := out.GetFields()["revoked"].GetNumberValue(); n != 1 {
		t.Errorf("revoked = %v, want 1", n)
	}
}

func TestServer_RateLimited(t *testing.T) {
	deps := newAuthDeps(t)
	deps.Limiter = &denyAfter{n: 1}
	conn := startServer(t, deps)
	ctx := context.Background()
	in := mustStruct(t, map[string]interface{}{"email": "a@x.com", "password": "wrong"})

	err := conn.Invoke(ctx, identityhandler.FullMethod("RequestTicket"), in, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("first call: code = %v, want Unauthenticated", status.Code(err))
	}
	var trailer metadata.MD
	err = conn.Invoke(ctx, identityhandler.FullMethod("RequestTicket"), in, new(structpb.Struct), grpc.Trailer(&trailer))
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("second call: code = %v, want ResourceExhausted", status.Code(err))
	}
	if got := trailer.Get("retry-after"); len(got) != 1 || got[0] != "2" {
		t.Errorf("retry-after = %v, want [2]", got)
	}
}

func TestServer_Health(t *testing.T) {
	conn := startServer(t, Deps{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: identityhandler.ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}
