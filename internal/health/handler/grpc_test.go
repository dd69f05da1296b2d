package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

func check(t *testing.T, srv *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestProbe_NoDeps(t *testing.T) {
	srv := NewServer(nil, "svc")
	if got := srv.Probe(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Probe = %v, want SERVING", got)
	}
	if got := check(t, srv, "svc"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Check(svc) = %v, want SERVING", got)
	}
}

func TestProbe_DependencyDown(t *testing.T) {
	db := &mockPinger{pingErr: errors.New("connection refused")}
	srv := NewServer(map[string]Pinger{"postgres": db, "skipped": nil}, "svc")
	if got := srv.Probe(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Probe = %v, want NOT_SERVING", got)
	}
	if got := check(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Check(\"\") = %v, want NOT_SERVING", got)
	}

	db.pingErr = nil
	srv.Probe(context.Background())
	if got := check(t, srv, "svc"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Check(svc) after recovery = %v, want SERVING", got)
	}
}

func TestRedisPinger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	srv := NewServer(map[string]Pinger{"redis": RedisPinger{Client: client}})
	if got := srv.Probe(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Probe = %v, want SERVING", got)
	}
	mr.Close()
	if got := srv.Probe(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Probe with redis down = %v, want NOT_SERVING", got)
	}
}
