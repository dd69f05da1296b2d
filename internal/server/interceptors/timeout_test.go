package interceptors

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
)

func TestTimeoutUnary(t *testing.T) {
	interceptor := TimeoutUnary(time.Second)
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatal("no deadline set")
			}
			if time.Until(deadline) > time.Second {
				t.Errorf("deadline too far: %v", time.Until(deadline))
			}
			return nil, nil
		})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTimeoutUnary_Disabled(t *testing.T) {
	interceptor := TimeoutUnary(0)
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			if _, ok := ctx.Deadline(); ok {
				t.Error("deadline set with timeout disabled")
			}
			return nil, nil
		})
}
