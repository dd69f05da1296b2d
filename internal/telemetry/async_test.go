package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tenant-identity/backend/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	delay   time.Duration
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...)
}

// blockingEmitter holds every Emit until release is closed.
type blockingEmitter chan struct{}

func (b blockingEmitter) Emit(ctx context.Context, event *domain.Event) error {
	<-b
	return nil
}

func waitN(t *testing.T, done chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d of %d", i+1, n)
		}
	}
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, &domain.Event{CompanyID: "c-1", EventType: "test"})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 1)}
	EmitAsync(emitter, &domain.Event{CompanyID: "c-1", UserID: "user-1", EventType: "login_success", Source: "auth"})
	waitN(t, emitter.done, 1)

	events := emitter.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].CompanyID != "c-1" || events[0].UserID != "user-1" || events[0].EventType != "login_success" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: errors.New("broker down"), done: make(chan struct{}, 1)}
	EmitAsync(emitter, &domain.Event{EventType: "test"})
	waitN(t, emitter.done, 1)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 10)}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, &domain.Event{EventType: "test"})
		}()
	}
	wg.Wait()
	waitN(t, emitter.done, 10)
	if n := len(emitter.getEvents()); n != 10 {
		t.Errorf("expected 10 events, got %d", n)
	}
}

func TestDrain_WaitsForInFlight(t *testing.T) {
	emitter := &mockEventEmitter{delay: 50 * time.Millisecond}
	EmitAsync(emitter, &domain.Event{EventType: "slow"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n := len(emitter.getEvents()); n != 1 {
		t.Errorf("events after Drain = %d, want 1", n)
	}
}

func TestDrain_ContextDeadline(t *testing.T) {
	emitter := &mockEventEmitter{delay: time.Second}
	EmitAsync(emitter, &domain.Event{EventType: "stuck"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := Drain(ctx); err == nil {
		t.Error("Drain should report the deadline while an emit is still running")
	}
	if err := Drain(context.Background()); err != nil {
		t.Errorf("final Drain: %v", err)
	}
}

func TestEmitAsync_DropsWhenFull(t *testing.T) {
	if err := Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	release := make(chan struct{})
	blocker := blockingEmitter(release)
	before := Dropped()
	for i := 0; i < maxInFlight; i++ {
		EmitAsync(blocker, &domain.Event{EventType: "hold"})
	}
	EmitAsync(blocker, &domain.Event{EventType: "overflow"})
	if got := Dropped() - before; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	close(release)
	if err := Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestFanout_EmitsToAllAndJoinsErrors(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("b failed")}
	c := &mockEventEmitter{}
	f := Fanout(a, nil, b, c)
	err := f.Emit(context.Background(), &domain.Event{EventType: "x"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	for name, m := range map[string]*mockEventEmitter{"a": a, "b": b, "c": c} {
		if len(m.getEvents()) != 1 {
			t.Errorf("emitter %s received %d events, want 1", name, len(m.getEvents()))
		}
	}
}

func TestFanout_Empty(t *testing.T) {
	if err := Fanout().Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("empty fanout Emit: %v", err)
	}
}
