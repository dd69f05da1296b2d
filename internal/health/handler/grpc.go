package handler

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger reports whether a dependency is reachable. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RedisPinger adapts a go-redis client to Pinger.
type RedisPinger struct {
	Client redis.UniversalClient
}

// PingContext sends PING to Redis.
func (p RedisPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

// Server serves grpc.health.v1 for readiness and liveness. Status is SERVING while every registered
// dependency answers its ping.
type Server struct {
	*health.Server
	deps     map[string]Pinger
	services []string
	timeout  time.Duration
}

// NewServer returns a health server for the given service names. The overall ("") status is always
// tracked. Nil pingers are skipped.
func NewServer(deps map[string]Pinger, services ...string) *Server {
	kept := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			kept[name] = p
		}
	}
	return &Server{
		Server:   health.NewServer(),
		deps:     kept,
		services: append([]string{""}, services...),
		timeout:  2 * time.Second,
	}
}

// Probe pings every dependency once and publishes the result. Returns the status that was set.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	for name, p := range s.deps {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := p.PingContext(pctx)
		cancel()
		if err != nil {
			log.Printf("health: %s unreachable: %v", name, err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	for _, svc := range s.services {
		s.SetServingStatus(svc, st)
	}
	return st
}

// Run probes every interval until ctx is done, then marks all services NOT_SERVING.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}
