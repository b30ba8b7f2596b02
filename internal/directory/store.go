// Package directory serves tenant-scoped reads of the clinical resource
// catalog: doctors, rooms, staff, specializations, procedures, and the weekly
// availability templates the scheduler builds its masks from. Lookups that
// select a single row return (nil, nil) on a miss so callers can fall
// through; an empty tenant id widens a read to every clinic.
package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// PgxPool is the pool surface the store consumes.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads the resource catalog from Postgres.
type Store struct {
	pool   PgxPool
	logger *logging.Logger
}

// NewStore wires a catalog store over a pgx pool.
func NewStore(pool PgxPool, logger *logging.Logger) *Store {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// DoctorsBySpecialization lists active doctors linked to the specialization,
// ordered by id for stable scheduling output.
func (s *Store) DoctorsBySpecialization(ctx context.Context, tenantID string, specID int) ([]model.Doctor, error) {
	query := `
		SELECT d.doctor_id, d.tenant_id, d.name, d.npi, d.email, d.active
		FROM doctors d
		JOIN doctor_specializations ds ON ds.doctor_id = d.doctor_id
		WHERE ds.spec_id = $1 AND d.active = true
	`
	args := []any{specID}
	if tenantID != "" {
		query += " AND d.tenant_id = $2"
		args = append(args, tenantID)
	}
	query += " ORDER BY d.doctor_id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []model.Doctor
	for rows.Next() {
		var d model.Doctor
		if err := rows.Scan(&d.DoctorID, &d.TenantID, &d.Name, &d.NPI, &d.Email, &d.Active); err != nil {
			return nil, fmt.Errorf("directory: scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// ActiveRooms lists active rooms. A tenant id narrows the read to the tenant's
// own clinic; empty spans every clinic.
func (s *Store) ActiveRooms(ctx context.Context, tenantID string) ([]model.Room, error) {
	query := `
		SELECT room_id, clinic_id, name, type, capabilities, equipment, status
		FROM rooms
		WHERE status = 'active'
	`
	args := []any{}
	if tenantID != "" {
		query += " AND clinic_id = $1"
		args = append(args, tenantID)
	}
	query += " ORDER BY room_id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// FirstActiveRoom returns the first active room of a clinic, or nil when the
// clinic has none. The emergency path books whatever operatory exists.
func (s *Store) FirstActiveRoom(ctx context.Context, clinicID string) (*model.Room, error) {
	query := `
		SELECT room_id, clinic_id, name, type, capabilities, equipment, status
		FROM rooms
		WHERE clinic_id = $1 AND status = 'active'
		ORDER BY room_id
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, clinicID)
	room, err := scanRoom(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// FirstAnesthetist returns any anesthetist of the tenant, or nil. The
// scheduler only needs one; which one is arbitrary but stable.
func (s *Store) FirstAnesthetist(ctx context.Context, tenantID string) (*model.Staff, error) {
	query := `
		SELECT staff_id, tenant_id, name, role
		FROM staff
		WHERE role = $1
	`
	args := []any{model.RoleAnesthetist}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}
	query += " ORDER BY staff_id LIMIT 1"

	var st model.Staff
	err := s.pool.QueryRow(ctx, query, args...).Scan(&st.StaffID, &st.TenantID, &st.Name, &st.Role)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: anesthetist lookup: %w", err)
	}
	return &st, nil
}

// TemplatesForResource lists the weekly availability templates of one doctor
// or staff member across all clinics they work at.
func (s *Store) TemplatesForResource(ctx context.Context, resourceID, resourceType string) ([]model.AvailabilityTemplate, error) {
	query := `
		SELECT template_id, resource_id, resource_type, clinic_id, day_of_week, start_time, end_time
		FROM availability_templates
		WHERE resource_id = $1 AND resource_type = $2
		ORDER BY day_of_week, start_time, clinic_id
	`
	rows, err := s.pool.Query(ctx, query, resourceID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("directory: list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.AvailabilityTemplate
	for rows.Next() {
		var t model.AvailabilityTemplate
		if err := rows.Scan(&t.TemplateID, &t.ResourceID, &t.ResourceType, &t.ClinicID, &t.DayOfWeek, &t.StartTime, &t.EndTime); err != nil {
			return nil, fmt.Errorf("directory: scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// SpecializationByName resolves a specialization by its display name, or nil
// when the tenant has none by that name.
func (s *Store) SpecializationByName(ctx context.Context, tenantID, name string) (*model.Specialization, error) {
	query := `
		SELECT spec_id, tenant_id, name
		FROM specializations
		WHERE name = $1
	`
	args := []any{name}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}
	query += " ORDER BY spec_id LIMIT 1"

	var sp model.Specialization
	err := s.pool.QueryRow(ctx, query, args...).Scan(&sp.SpecID, &sp.TenantID, &sp.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: specialization lookup: %w", err)
	}
	return &sp, nil
}

// SpecializationNameByID returns the display name for a specialization id,
// or empty when the id is unknown.
func (s *Store) SpecializationNameByID(ctx context.Context, specID int) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM specializations WHERE spec_id = $1`, specID).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("directory: specialization name lookup: %w", err)
	}
	return name, nil
}

// FirstProcedureRequiringSpec returns any procedure whose required
// specialization matches, or nil. The palliative tier uses this to surface a
// general-dentist visit.
func (s *Store) FirstProcedureRequiringSpec(ctx context.Context, tenantID string, specID int) (*model.Procedure, error) {
	query := procedureColumns + ` WHERE required_spec_id = $1`
	args := []any{specID}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}
	query += " ORDER BY proc_id LIMIT 1"

	proc, err := scanProcedure(s.pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// ProcedureByName resolves a procedure by catalog name within the tenant, or
// nil on a miss.
func (s *Store) ProcedureByName(ctx context.Context, tenantID, name string) (*model.Procedure, error) {
	query := procedureColumns + ` WHERE name = $1`
	args := []any{name}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}
	query += " ORDER BY proc_id LIMIT 1"

	proc, err := scanProcedure(s.pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// ProcedureByNameGlobal resolves a procedure by name across every tenant and
// logs the crossing. Callers reach for this only after the tenant-scoped
// lookup came up empty.
func (s *Store) ProcedureByNameGlobal(ctx context.Context, name string) (*model.Procedure, error) {
	query := procedureColumns + ` WHERE name = $1 ORDER BY proc_id LIMIT 1`
	proc, err := scanProcedure(s.pool.QueryRow(ctx, query, name))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Warn("cross-tenant procedure fallback", "procedure", name, "owner_tenant", proc.TenantID)
	return proc, nil
}

const procedureColumns = `
	SELECT proc_id, tenant_id, name, base_duration_minutes, consult_duration_minutes,
	       required_spec_id, required_room_capability, requires_anesthetist, allow_same_day_combo
	FROM procedures`

func scanProcedure(row pgx.Row) (*model.Procedure, error) {
	var p model.Procedure
	var capability []byte
	err := row.Scan(&p.ProcID, &p.TenantID, &p.Name, &p.BaseDurationMinutes, &p.ConsultDurationMinutes,
		&p.RequiredSpecID, &capability, &p.RequiresAnesthetist, &p.AllowSameDayCombo)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("directory: scan procedure: %w", err)
	}
	if len(capability) > 0 {
		if err := json.Unmarshal(capability, &p.RequiredRoomCapability); err != nil {
			return nil, fmt.Errorf("directory: decode room capability: %w", err)
		}
	}
	return &p, nil
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var r model.Room
	var capabilities, equipment []byte
	err := row.Scan(&r.RoomID, &r.ClinicID, &r.Name, &r.Type, &capabilities, &equipment, &r.Status)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("directory: scan room: %w", err)
	}
	if len(capabilities) > 0 {
		if err := json.Unmarshal(capabilities, &r.Capabilities); err != nil {
			return nil, fmt.Errorf("directory: decode capabilities: %w", err)
		}
	}
	if len(equipment) > 0 {
		if err := json.Unmarshal(equipment, &r.Equipment); err != nil {
			return nil, fmt.Errorf("directory: decode equipment: %w", err)
		}
	}
	return &r, nil
}
