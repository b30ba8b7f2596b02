package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the slice of pgxpool.Pool the calendar store depends on.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CalendarStore reads calendar slot state from Postgres.
type CalendarStore struct {
	pool PgxPool
}

// NewCalendarStore wires a calendar store over a pgx pool.
func NewCalendarStore(pool PgxPool) *CalendarStore {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &CalendarStore{pool: pool}
}

// BookedBlocks lists the booked block indexes for one entity-day.
func (s *CalendarStore) BookedBlocks(ctx context.Context, entityType, entityID string, day time.Time) ([]int, error) {
	query := `
		SELECT time_block FROM calendar_slots
		WHERE entity_type = $1 AND entity_id = $2 AND date = $3 AND booked = true
		ORDER BY time_block
	`
	rows, err := s.pool.Query(ctx, query, entityType, entityID, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("schedule: booked blocks query: %w", err)
	}
	defer rows.Close()

	var blocks []int
	for rows.Next() {
		var block int
		if err := rows.Scan(&block); err != nil {
			return nil, fmt.Errorf("schedule: booked blocks scan: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: booked blocks rows: %w", err)
	}
	return blocks, nil
}
