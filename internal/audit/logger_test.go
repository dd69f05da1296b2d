package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tenant-identity/backend/internal/audit/domain"
	telemetrydomain "tenant-identity/backend/internal/telemetry/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

type chanEmitter struct {
	events chan *telemetrydomain.Event
}

func (c *chanEmitter) Emit(ctx context.Context, event *telemetrydomain.Event) error {
	c.events <- event
	return nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(ctx context.Context) string { return "192.168.1.1" }, nil)

	logger.LogEvent(context.Background(), "C1", "user-1", "login_success", "auth", "role=ADMIN")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.CompanyID != "C1" || entry.UserID != "user-1" {
		t.Errorf("entry ids = %q/%q", entry.CompanyID, entry.UserID)
	}
	if entry.Action != "login_success" || entry.Resource != "auth" {
		t.Errorf("entry action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.Metadata != "role=ADMIN" {
		t.Errorf("metadata = %q", entry.Metadata)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("entry ID and CreatedAt should be set")
	}
}

func TestLogger_LogEvent_NilIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil, nil).LogEvent(context.Background(), "C1", "", "a", "r", "")
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogger_LogEvent_SentinelCompanyID(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil, nil).LogEvent(context.Background(), "", "", "ticket_denied", "auth", "reason=unknown_email")
	if repo.entries[0].CompanyID != SentinelCompanyID {
		t.Errorf("company_id = %q, want %q", repo.entries[0].CompanyID, SentinelCompanyID)
	}
}

func TestLogger_LogEvent_RepositoryErrorStillEmits(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	em := &chanEmitter{events: make(chan *telemetrydomain.Event, 1)}
	NewLogger(repo, nil, em).LogEvent(context.Background(), "C1", "u1", "logout", "auth", "")

	select {
	case ev := <-em.events:
		if ev.EventType != "auth.logout" || ev.Source != "audit" || ev.CompanyID != "C1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not emitted")
	}
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	em := &chanEmitter{events: make(chan *telemetrydomain.Event, 1)}
	NewLogger(nil, nil, em).LogEvent(context.Background(), "C1", "u1", "a", "r", "")
	select {
	case <-em.events:
	case <-time.After(2 * time.Second):
		t.Fatal("event not emitted without repo")
	}
}

func TestToEvent(t *testing.T) {
	now := time.Now().UTC()
	ev := ToEvent(&domain.AuditLog{ID: "id", CompanyID: "C1", UserID: "u", Action: "refresh", Resource: "auth", IP: "1.2.3.4", Metadata: "m", CreatedAt: now})
	if ev.ID != "id" || ev.EventType != "auth.refresh" || ev.IP != "1.2.3.4" || !ev.CreatedAt.Equal(now) {
		t.Errorf("event = %+v", ev)
	}
}
