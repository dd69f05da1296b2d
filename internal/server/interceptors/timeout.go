package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// TimeoutUnary bounds every RPC, and the storage calls made on its behalf, by d. d <= 0 disables the bound.
func TimeoutUnary(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
