// Package events defines the canonical domain events the platform emits and
// a Postgres outbox that makes emission transactional with the write that
// caused it. A relay drains the outbox to SQS for downstream consumers
// (notifications, analytics).
package events

import "time"

// Event types, versioned. Renaming or reshaping a payload means a new
// version, not an edit.
const (
	TypeAppointmentBooked    = "appointment.booked.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
	TypeTriageEscalated      = "triage.escalated.v1"
)

// Event is a versioned domain event.
type Event interface {
	EventType() string
}

// AppointmentBooked is emitted when a booking transaction commits.
type AppointmentBooked struct {
	ApptID        string    `json:"appt_id"`
	TenantID      string    `json:"tenant_id"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	RoomID        string    `json:"room_id"`
	StaffID       *string   `json:"staff_id,omitempty"`
	ProcedureType string    `json:"procedure_type"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

func (AppointmentBooked) EventType() string { return TypeAppointmentBooked }

// AppointmentCancelled is emitted when an appointment is cancelled.
type AppointmentCancelled struct {
	ApptID    string `json:"appt_id"`
	TenantID  string `json:"tenant_id"`
	PatientID string `json:"patient_id"`
}

func (AppointmentCancelled) EventType() string { return TypeAppointmentCancelled }

// TriageEscalated is emitted when a turn produces an ESCALATE plan.
type TriageEscalated struct {
	TenantID     string `json:"tenant_id"`
	Urgency      string `json:"urgency"`
	HasSlot      bool   `json:"has_slot"`
	SlotDate     string `json:"slot_date,omitempty"`
	SlotTime     string `json:"slot_time,omitempty"`
	SlotClinicID string `json:"slot_clinic_id,omitempty"`
}

func (TriageEscalated) EventType() string { return TypeTriageEscalated }
