package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/bronn-dev/dentalbridge/internal/model"
)

// Onboarding writes. These build out a tenant's catalog; the scheduler only
// ever reads it.

// CreateClinic inserts the tenant root, generating the id when blank.
func (s *Store) CreateClinic(ctx context.Context, c *model.Clinic) error {
	if c == nil {
		return fmt.Errorf("directory: nil clinic")
	}
	if c.ClinicID == "" {
		c.ClinicID = uuid.NewString()
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
	settings, err := json.Marshal(orEmptyMap(c.Settings))
	if err != nil {
		return fmt.Errorf("directory: marshal settings: %w", err)
	}
	query := `
		INSERT INTO clinics (clinic_id, name, address, location, timezone, settings, onboarding_complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.pool.Exec(ctx, query, c.ClinicID, c.Name, c.Address, c.Location, c.Timezone, settings, c.OnboardingComplete); err != nil {
		return fmt.Errorf("directory: create clinic: %w", err)
	}
	return nil
}

// CreateRoom inserts an operatory.
func (s *Store) CreateRoom(ctx context.Context, r *model.Room) error {
	if r == nil {
		return fmt.Errorf("directory: nil room")
	}
	if r.RoomID == "" {
		r.RoomID = uuid.NewString()
	}
	if r.Type == "" {
		r.Type = "operatory"
	}
	if r.Status == "" {
		r.Status = "active"
	}
	capabilities, err := json.Marshal(orEmptyMap(r.Capabilities))
	if err != nil {
		return fmt.Errorf("directory: marshal capabilities: %w", err)
	}
	equipment, err := json.Marshal(orEmptySlice(r.Equipment))
	if err != nil {
		return fmt.Errorf("directory: marshal equipment: %w", err)
	}
	query := `
		INSERT INTO rooms (room_id, clinic_id, name, type, capabilities, equipment, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.pool.Exec(ctx, query, r.RoomID, r.ClinicID, r.Name, r.Type, capabilities, equipment, r.Status); err != nil {
		return fmt.Errorf("directory: create room: %w", err)
	}
	return nil
}

// CreateDoctor inserts a provider, active by default.
func (s *Store) CreateDoctor(ctx context.Context, d *model.Doctor) error {
	if d == nil {
		return fmt.Errorf("directory: nil doctor")
	}
	if d.DoctorID == "" {
		d.DoctorID = uuid.NewString()
	}
	query := `
		INSERT INTO doctors (doctor_id, tenant_id, name, npi, email, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.pool.Exec(ctx, query, d.DoctorID, d.TenantID, d.Name, d.NPI, d.Email, true); err != nil {
		return fmt.Errorf("directory: create doctor: %w", err)
	}
	d.Active = true
	return nil
}

// CreateSpecialization inserts a qualification and fills in the generated id.
// Duplicate names per tenant reuse the existing row.
func (s *Store) CreateSpecialization(ctx context.Context, spec *model.Specialization) error {
	if spec == nil {
		return fmt.Errorf("directory: nil specialization")
	}
	query := `
		INSERT INTO specializations (tenant_id, name)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING spec_id
	`
	if err := s.pool.QueryRow(ctx, query, spec.TenantID, spec.Name).Scan(&spec.SpecID); err != nil {
		return fmt.Errorf("directory: create specialization: %w", err)
	}
	return nil
}

// LinkDoctorSpecialization records that a doctor holds a qualification.
func (s *Store) LinkDoctorSpecialization(ctx context.Context, doctorID string, specID int) error {
	query := `
		INSERT INTO doctor_specializations (doctor_id, spec_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, doctorID, specID); err != nil {
		return fmt.Errorf("directory: link specialization: %w", err)
	}
	return nil
}

// CreateStaff inserts a non-provider resource.
func (s *Store) CreateStaff(ctx context.Context, st *model.Staff) error {
	if st == nil {
		return fmt.Errorf("directory: nil staff")
	}
	if st.StaffID == "" {
		st.StaffID = uuid.NewString()
	}
	query := `
		INSERT INTO staff (staff_id, tenant_id, name, role)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, st.StaffID, st.TenantID, st.Name, st.Role); err != nil {
		return fmt.Errorf("directory: create staff: %w", err)
	}
	return nil
}

// CreateProcedure inserts a catalog entry and fills in the generated id.
func (s *Store) CreateProcedure(ctx context.Context, p *model.Procedure) error {
	if p == nil {
		return fmt.Errorf("directory: nil procedure")
	}
	capability, err := json.Marshal(orEmptyMap(p.RequiredRoomCapability))
	if err != nil {
		return fmt.Errorf("directory: marshal room capability: %w", err)
	}
	query := `
		INSERT INTO procedures
			(tenant_id, name, base_duration_minutes, consult_duration_minutes,
			 required_spec_id, required_room_capability, requires_anesthetist, allow_same_day_combo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING proc_id
	`
	err = s.pool.QueryRow(ctx, query, p.TenantID, p.Name, p.BaseDurationMinutes, p.ConsultDurationMinutes,
		p.RequiredSpecID, capability, p.RequiresAnesthetist, p.AllowSameDayCombo).Scan(&p.ProcID)
	if err != nil {
		return fmt.Errorf("directory: create procedure: %w", err)
	}
	return nil
}

// CreateTemplate inserts one weekly availability window.
func (s *Store) CreateTemplate(ctx context.Context, t *model.AvailabilityTemplate) error {
	if t == nil {
		return fmt.Errorf("directory: nil template")
	}
	if t.TemplateID == "" {
		t.TemplateID = uuid.NewString()
	}
	query := `
		INSERT INTO availability_templates
			(template_id, resource_id, resource_type, clinic_id, day_of_week, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.pool.Exec(ctx, query, t.TemplateID, t.ResourceID, t.ResourceType, t.ClinicID, t.DayOfWeek, t.StartTime, t.EndTime); err != nil {
		return fmt.Errorf("directory: create template: %w", err)
	}
	return nil
}

// SetOnboardingComplete flips the tenant's onboarding flag.
func (s *Store) SetOnboardingComplete(ctx context.Context, clinicID string, complete bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE clinics SET onboarding_complete = $1 WHERE clinic_id = $2`, complete, clinicID)
	if err != nil {
		return fmt.Errorf("directory: set onboarding complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("directory: unknown clinic %s", clinicID)
	}
	return nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
