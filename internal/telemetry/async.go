package telemetry

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tenant-identity/backend/internal/telemetry/domain"
)

const (
	// emitTimeout bounds a single async emit.
	emitTimeout = 5 * time.Second
	// maxInFlight caps concurrent async emits. Beyond it events are dropped, so a stalled broker
	// cannot pile up goroutines behind login traffic.
	maxInFlight = 512
)

// ShutdownDrainDuration is the longest Drain should wait at shutdown. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

var (
	inflight = make(chan struct{}, maxInFlight)
	pending  sync.WaitGroup
	dropped  atomic.Int64
)

// EmitAsync emits event in a goroutine bounded by emitTimeout. Errors are logged. When maxInFlight
// emits are already running the event is dropped and counted.
//
// emitter and event may be nil; EmitAsync then returns without starting a goroutine.
// The goroutine does not inherit the request context, so a finished RPC does not cancel its audit record.
func EmitAsync(emitter EventEmitter, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	select {
	case inflight <- struct{}{}:
	default:
		if n := dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("telemetry: emit queue full, %d events dropped so far", n)
		}
		return
	}
	pending.Add(1)
	go func() {
		defer pending.Done()
		defer func() { <-inflight }()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}

// Drain waits for in-flight async emits to finish or ctx to end. Call after the gRPC server has
// stopped and before the OTel providers and Kafka writers are closed.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events EmitAsync has discarded because the in-flight limit was reached.
func Dropped() int64 {
	return dropped.Load()
}
