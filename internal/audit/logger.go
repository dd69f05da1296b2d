package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"tenant-identity/backend/internal/audit/domain"
	auditrepo "tenant-identity/backend/internal/audit/repository"
	"tenant-identity/backend/internal/telemetry"
	telemetrydomain "tenant-identity/backend/internal/telemetry/domain"
)

// SentinelCompanyID is the company_id used for audit events that have no company (e.g. ticket_denied, logout with an unknown token).
const SentinelCompanyID = "_system"

// source tags every event emitted from the audit logger.
const source = "audit"

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by auth and session code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, companyID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository, an optional IP extractor, and an optional emitter.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
}

// NewLogger returns an AuditLogger that persists to repo and forwards each entry to emitter (OTel logs, Kafka).
// ipExtractor may be nil; then IP is recorded as "unknown". repo and emitter may be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitter telemetry.EventEmitter) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitter: emitter}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
// The emit runs asynchronously so a slow broker never delays the RPC.
func (l *Logger) LogEvent(ctx context.Context, companyID, userID, action, resource, metadata string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if companyID == "" {
		companyID = SentinelCompanyID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
		}
	}
	telemetry.EmitAsync(l.emitter, ToEvent(entry))
}

// ToEvent converts an audit entry into the telemetry event shape.
func ToEvent(a *domain.AuditLog) *telemetrydomain.Event {
	return &telemetrydomain.Event{
		ID:        a.ID,
		CompanyID: a.CompanyID,
		UserID:    a.UserID,
		EventType: a.Resource + "." + a.Action,
		Source:    source,
		IP:        a.IP,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
}
