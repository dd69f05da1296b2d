package interceptors

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tenant-identity/backend/internal/telemetry/domain"
)

type chanEmitter struct {
	events chan *domain.Event
}

func (c *chanEmitter) Emit(ctx context.Context, event *domain.Event) error {
	c.events <- event
	return nil
}

func TestTelemetryUnary_EmitsRequestEvent(t *testing.T) {
	emitter := &chanEmitter{events: make(chan *domain.Event, 1)}
	interceptor := TelemetryUnary(emitter, nil)
	ctx := WithIdentity(context.Background(), "user-1", "company-1", "ADMIN")
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/tenantidentity.auth.v1.AuthService/Refresh"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, status.Error(codes.Unauthenticated, "no")
		})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("err = %v", err)
	}
	select {
	case ev := <-emitter.events:
		if ev.EventType != "grpc_request" || ev.CompanyID != "company-1" || ev.UserID != "user-1" {
			t.Errorf("event = %+v", ev)
		}
		var meta grpcRequestMetadata
		if err := json.Unmarshal([]byte(ev.Metadata), &meta); err != nil {
			t.Fatalf("metadata: %v", err)
		}
		if meta.StatusCode != "Unauthenticated" || meta.FullMethod != "/tenantidentity.auth.v1.AuthService/Refresh" {
			t.Errorf("metadata = %+v", meta)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
}

func TestTelemetryUnary_Skip(t *testing.T) {
	emitter := &chanEmitter{events: make(chan *domain.Event, 1)}
	interceptor := TelemetryUnary(emitter, map[string]bool{"/grpc.health.v1.Health/Check": true})
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil })
	select {
	case ev := <-emitter.events:
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
