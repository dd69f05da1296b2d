// Package producer defines the interface for publishing events and jobs to Kafka.
package producer

import (
	"context"

	"tenant-identity/backend/internal/telemetry/domain"
)

// Producer emits telemetry events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single telemetry event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.Event) error
	// Publish writes one raw message with an optional key.
	Publish(ctx context.Context, key, value []byte) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
