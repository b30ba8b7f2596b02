package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// OutboxEntry is one pending event row.
type OutboxEntry struct {
	ID        uuid.UUID
	TenantID  string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Execer is the minimal write surface; both a pool and an open transaction
// satisfy it, so events can be appended inside the booking transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgxPool is the pool surface the store consumes.
type PgxPool interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DeliveryHandler emits events to a downstream transport.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	pool PgxPool
}

// NewOutboxStore wires an outbox store over a pgx pool.
func NewOutboxStore(pool PgxPool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

// Append writes one event row. Pass the surrounding transaction as exec to
// make emission atomic with the domain write; pass nil to use the pool.
func (s *OutboxStore) Append(ctx context.Context, exec Execer, tenantID string, evt Event) (uuid.UUID, error) {
	if evt == nil {
		return uuid.Nil, fmt.Errorf("events: nil event")
	}
	if exec == nil {
		exec = s.pool
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO outbox_events (id, event_type, tenant_id, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.Exec(ctx, query, id, evt.EventType(), tenantID, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// FetchPending lists unpublished events, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, event_type, tenant_id, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Type, &entry.TenantID, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkPublished stamps one event as delivered. Returns false when another
// relay got there first.
func (s *OutboxStore) MarkPublished(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = $1 AND published_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark published: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Relay polls the outbox and hands entries to the delivery handler.
type Relay struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

// NewRelay builds an outbox relay with the default batch and interval.
func NewRelay(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Relay {
	if store == nil {
		panic("events: outbox store required")
	}
	if handler == nil {
		panic("events: delivery handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

// WithBatchSize overrides the fetch batch size.
func (r *Relay) WithBatchSize(size int32) *Relay {
	if size > 0 {
		r.batchSize = size
	}
	return r
}

// WithInterval overrides the polling interval.
func (r *Relay) WithInterval(interval time.Duration) *Relay {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

// Start polls until the context is cancelled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain runs one fetch-deliver-mark cycle. Failed deliveries stay pending
// and retry on the next cycle.
func (r *Relay) Drain(ctx context.Context) {
	entries, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := r.handler.Handle(ctx, entry); err != nil {
			r.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
			continue
		}
		if ok, err := r.store.MarkPublished(ctx, entry.ID); err != nil {
			r.logger.Error("failed to mark outbox published", "error", err, "event_id", entry.ID)
		} else if ok {
			r.logger.Debug("outbox published", "event_id", entry.ID, "type", entry.Type)
		}
	}
}
