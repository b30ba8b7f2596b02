// Package compliance keeps the tenant audit trail: who did what to which
// record, queryable for reviews and exportable to S3 for long-term retention.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// Audit actions. One constant per mutating operation.
const (
	ActionBookingCreated    = "booking.created"
	ActionBookingCancelled  = "booking.cancelled"
	ActionTriageEscalated   = "triage.escalated"
	ActionPatientRegistered = "patient.registered"
	ActionCatalogUpdated    = "catalog.updated"
	ActionLogin             = "auth.login"
)

// PgxPool is the pool surface the audit service consumes.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AuditService writes and reads the audit trail.
type AuditService struct {
	pool   PgxPool
	logger *logging.Logger
	now    func() time.Time
}

// NewAuditService wires an audit service over a pgx pool.
func NewAuditService(pool PgxPool, logger *logging.Logger) *AuditService {
	if pool == nil {
		panic("compliance: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditService{pool: pool, logger: logger, now: time.Now}
}

// Record writes one audit row. A failed audit write is logged and returned
// but must never abort the operation it describes; callers decide.
func (s *AuditService) Record(ctx context.Context, event model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("compliance: marshal details: %w", err)
	}

	query := `
		INSERT INTO audit_events
			(id, tenant_id, actor_id, patient_id, action, entity_type, entity_id, details, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		event.ID, event.TenantID, event.ActorID, event.PatientID,
		event.Action, event.EntityType, event.EntityID, details, event.IP, event.CreatedAt,
	)
	if err != nil {
		s.logger.Error("audit write failed", "action", event.Action, "error", err)
		return fmt.Errorf("compliance: record audit event: %w", err)
	}
	return nil
}

// Filter narrows an audit query. TenantID is required.
type Filter struct {
	TenantID  string
	Action    string
	PatientID string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Query lists audit events newest first.
func (s *AuditService) Query(ctx context.Context, filter Filter) ([]model.AuditEvent, error) {
	if filter.TenantID == "" {
		return nil, fmt.Errorf("compliance: tenant id required")
	}

	query := `
		SELECT id, tenant_id, actor_id, patient_id, action, entity_type, entity_id, details, ip, created_at
		FROM audit_events
		WHERE tenant_id = $1
	`
	args := []any{filter.TenantID}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: query audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.PatientID,
			&e.Action, &e.EntityType, &e.EntityID, &details, &e.IP, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: scan audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("compliance: decode details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
