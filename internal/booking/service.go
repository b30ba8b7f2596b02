// Package booking owns the single write path of the scheduler: turning a
// proposed SlotOption into an Appointment plus its calendar slot rows, inside
// one transaction. Conflicts with a concurrent booking surface as
// ErrSlotUnavailable; retrying is the caller's policy.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// ErrSlotUnavailable reports that another appointment already holds at least
// one of the requested blocks for the doctor, room, or staff member.
var ErrSlotUnavailable = errors.New("booking: slot unavailable")

// ErrNotFound reports an unknown or already-terminal appointment.
var ErrNotFound = errors.New("booking: appointment not found")

const uniqueViolation = "23505"

// PgxPool is the pool surface the service consumes.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service books and cancels appointments.
type Service struct {
	pool   PgxPool
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a booking service over a pgx pool.
func NewService(pool PgxPool, logger *logging.Logger, opts ...Option) *Service {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{pool: pool, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type slotEntity struct {
	entityType string
	entityID   string
}

// Book locks the slot for every participating entity and creates the
// appointment. Steps run in one transaction: probe the candidate blocks with
// row locks, insert the appointment, then upsert one calendar row per entity
// per block. Any block already booked rolls the whole thing back with
// ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, tenantID string, slot schedule.SlotOption, patientID string, procID int) (*model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("dentalbridge.tenant_id", tenantID),
		attribute.String("dentalbridge.slot.date", slot.Date),
		attribute.Int("dentalbridge.slot.block", slot.TimeBlock),
	)

	appt, err := s.book(ctx, tenantID, slot, patientID, procID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrSlotUnavailable) {
			bookingConflictsTotal.Inc()
			bookingsTotal.WithLabelValues("conflict").Inc()
		} else {
			bookingsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	bookingsTotal.WithLabelValues("booked").Inc()
	s.logger.Info("appointment booked",
		"tenant_id", tenantID, "appt_id", appt.ApptID, "doctor_id", slot.DoctorID,
		"room_id", slot.RoomID, "date", slot.Date, "time", slot.Time)
	return appt, nil
}

func (s *Service) book(ctx context.Context, tenantID string, slot schedule.SlotOption, patientID string, procID int) (*model.Appointment, error) {
	if slot.DurationMinutes <= 0 {
		return nil, fmt.Errorf("booking: non-positive duration %d", slot.DurationMinutes)
	}
	day, err := time.Parse("2006-01-02", slot.Date)
	if err != nil {
		return nil, fmt.Errorf("booking: bad slot date %q: %w", slot.Date, err)
	}
	startClock, err := time.Parse("15:04", slot.Time)
	if err != nil {
		return nil, fmt.Errorf("booking: bad slot time %q: %w", slot.Time, err)
	}

	numBlocks := schedule.BlocksNeeded(slot.DurationMinutes)
	startBlock := slot.TimeBlock
	endBlock := startBlock + numBlocks

	entities := []slotEntity{
		{model.EntityDoctor, slot.DoctorID},
		{model.EntityRoom, slot.RoomID},
	}
	if slot.StaffID != nil && *slot.StaffID != "" {
		entities = append(entities, slotEntity{model.EntityStaff, *slot.StaffID})
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), startClock.Hour(), startClock.Minute(), 0, 0, time.UTC)
	end := start.Add(time.Duration(slot.DurationMinutes) * time.Minute)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ent := range entities {
		taken, err := lockedConflicts(ctx, tx, ent, slot.Date, startBlock, endBlock)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: %s %s on %s", ErrSlotUnavailable, ent.entityType, ent.entityID, slot.Date)
		}
	}

	appt := &model.Appointment{
		ApptID:        uuid.NewString(),
		PatientID:     patientID,
		DoctorID:      slot.DoctorID,
		RoomID:        slot.RoomID,
		StaffID:       slot.StaffID,
		ClinicID:      slot.ClinicID,
		ProcID:        procID,
		ProcedureType: slot.Procedure,
		StartTime:     start,
		EndTime:       end,
		Status:        model.ApptScheduled,
		CreatedAt:     s.now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(appt_id, patient_id, doctor_id, room_id, staff_id, clinic_id, proc_id, procedure_type, start_time, end_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, appt.ApptID, appt.PatientID, appt.DoctorID, appt.RoomID, appt.StaffID, appt.ClinicID,
		appt.ProcID, appt.ProcedureType, appt.StartTime, appt.EndTime, appt.Status, appt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("booking: insert appointment: %w", mapUnique(err))
	}

	for _, ent := range entities {
		for block := startBlock; block < endBlock; block++ {
			tag, err := tx.Exec(ctx, `
				INSERT INTO calendar_slots (id, tenant_id, entity_type, entity_id, date, time_block, booked, appt_id)
				VALUES ($1, $2, $3, $4, $5, $6, true, $7)
				ON CONFLICT (entity_type, entity_id, date, time_block)
				DO UPDATE SET booked = true, appt_id = EXCLUDED.appt_id, tenant_id = EXCLUDED.tenant_id
				WHERE calendar_slots.booked = false
			`, uuid.NewString(), tenantID, ent.entityType, ent.entityID, slot.Date, block, appt.ApptID)
			if err != nil {
				return nil, fmt.Errorf("booking: upsert slot: %w", mapUnique(err))
			}
			// Zero rows means the guarded upsert hit a row another
			// transaction booked after our probe.
			if tag.RowsAffected() == 0 {
				return nil, fmt.Errorf("%w: %s %s block %d", ErrSlotUnavailable, ent.entityType, ent.entityID, block)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit: %w", mapUnique(err))
	}
	return appt, nil
}

func lockedConflicts(ctx context.Context, tx pgx.Tx, ent slotEntity, date string, startBlock, endBlock int) (bool, error) {
	rows, err := tx.Query(ctx, `
		SELECT time_block FROM calendar_slots
		WHERE entity_type = $1 AND entity_id = $2 AND date = $3
		  AND time_block >= $4 AND time_block < $5 AND booked = true
		FOR UPDATE
	`, ent.entityType, ent.entityID, date, startBlock, endBlock)
	if err != nil {
		return false, fmt.Errorf("booking: conflict probe: %w", err)
	}
	defer rows.Close()

	taken := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("booking: conflict probe rows: %w", err)
	}
	return taken, nil
}

// Cancel marks the appointment cancelled and frees its calendar rows. Rows
// are kept with booked=false rather than deleted.
func (s *Service) Cancel(ctx context.Context, apptID string) error {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("booking: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $1 WHERE appt_id = $2 AND status = $3
	`, model.ApptCancelled, apptID, model.ApptScheduled)
	if err != nil {
		return fmt.Errorf("booking: cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, apptID)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE calendar_slots SET booked = false, appt_id = NULL WHERE appt_id = $1
	`, apptID); err != nil {
		return fmt.Errorf("booking: free slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("booking: commit: %w", err)
	}
	bookingsTotal.WithLabelValues("cancelled").Inc()
	s.logger.Info("appointment cancelled", "appt_id", apptID)
	return nil
}

const appointmentColumns = `
	SELECT appt_id, patient_id, doctor_id, room_id, staff_id, clinic_id, proc_id,
	       procedure_type, start_time, end_time, status, created_at
	FROM appointments`

// Get loads one appointment, or nil when unknown.
func (s *Service) Get(ctx context.Context, apptID string) (*model.Appointment, error) {
	appt, err := scanAppointment(s.pool.QueryRow(ctx, appointmentColumns+` WHERE appt_id = $1`, apptID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// ListForPatient returns the patient's appointments, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, appointmentColumns+` WHERE patient_id = $1 ORDER BY start_time DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("booking: list for patient: %w", err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ApptID, &a.PatientID, &a.DoctorID, &a.RoomID, &a.StaffID, &a.ClinicID,
		&a.ProcID, &a.ProcedureType, &a.StartTime, &a.EndTime, &a.Status, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("booking: scan appointment: %w", err)
	}
	return &a, nil
}

// mapUnique folds unique-constraint violations into ErrSlotUnavailable so a
// racing insert reads the same as a probed conflict.
func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, pgErr.ConstraintName)
	}
	return err
}
