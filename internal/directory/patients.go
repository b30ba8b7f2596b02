package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bronn-dev/dentalbridge/internal/model"
)

// ClinicByID loads one clinic, or nil on a miss.
func (s *Store) ClinicByID(ctx context.Context, clinicID string) (*model.Clinic, error) {
	query := `
		SELECT clinic_id, name, address, location, timezone, onboarding_complete, created_at
		FROM clinics
		WHERE clinic_id = $1
	`
	var c model.Clinic
	err := s.pool.QueryRow(ctx, query, clinicID).Scan(
		&c.ClinicID, &c.Name, &c.Address, &c.Location, &c.Timezone, &c.OnboardingComplete, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get clinic: %w", err)
	}
	return &c, nil
}

// DoctorByID loads one doctor, or nil on a miss.
func (s *Store) DoctorByID(ctx context.Context, doctorID string) (*model.Doctor, error) {
	query := `
		SELECT doctor_id, tenant_id, name, npi, email, active
		FROM doctors
		WHERE doctor_id = $1
	`
	var d model.Doctor
	err := s.pool.QueryRow(ctx, query, doctorID).Scan(
		&d.DoctorID, &d.TenantID, &d.Name, &d.NPI, &d.Email, &d.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get doctor: %w", err)
	}
	return &d, nil
}

// PatientByID loads one patient, or nil on a miss.
func (s *Store) PatientByID(ctx context.Context, patientID string) (*model.Patient, error) {
	query := `
		SELECT patient_id, tenant_id, name, phone, email, dob, is_new
		FROM patients
		WHERE patient_id = $1
	`
	var p model.Patient
	err := s.pool.QueryRow(ctx, query, patientID).Scan(
		&p.PatientID, &p.TenantID, &p.Name, &p.Phone, &p.Email, &p.DOB, &p.IsNew,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get patient: %w", err)
	}
	return &p, nil
}

// PatientByPhone finds a tenant's patient by phone, or nil on a miss. Intake
// uses it to dedupe registrations.
func (s *Store) PatientByPhone(ctx context.Context, tenantID, phone string) (*model.Patient, error) {
	query := `
		SELECT patient_id, tenant_id, name, phone, email, dob, is_new
		FROM patients
		WHERE tenant_id = $1 AND phone = $2
	`
	var p model.Patient
	err := s.pool.QueryRow(ctx, query, tenantID, phone).Scan(
		&p.PatientID, &p.TenantID, &p.Name, &p.Phone, &p.Email, &p.DOB, &p.IsNew,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get patient by phone: %w", err)
	}
	return &p, nil
}

// CreatePatient inserts a patient record, generating the id when the caller
// left it blank.
func (s *Store) CreatePatient(ctx context.Context, p *model.Patient) error {
	if p == nil {
		return fmt.Errorf("directory: nil patient")
	}
	if p.PatientID == "" {
		p.PatientID = uuid.NewString()
	}
	query := `
		INSERT INTO patients (patient_id, tenant_id, name, phone, email, dob, is_new)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.pool.Exec(ctx, query, p.PatientID, p.TenantID, p.Name, p.Phone, p.Email, p.DOB, p.IsNew); err != nil {
		return fmt.Errorf("directory: create patient: %w", err)
	}
	return nil
}
