package model

import "time"

// Calendar entity kinds. Calendar slots track bookings for each of these
// independently; an appointment books one slot row per participating entity
// per 15-minute block.
const (
	EntityDoctor = "doctor"
	EntityRoom   = "room"
	EntityStaff  = "staff"
)

// Availability template resource kinds.
const (
	ResourceDoctor = "DOCTOR"
	ResourceStaff  = "STAFF"
)

// Appointment lifecycle states.
const (
	ApptScheduled = "SCHEDULED"
	ApptCancelled = "CANCELLED"
	ApptCompleted = "COMPLETED"
)

// RoleAnesthetist is the only staff role the scheduler reasons about.
const RoleAnesthetist = "Anesthetist"

// Clinic is the tenant root. The clinic id doubles as the tenant id for
// every resource hanging off it.
type Clinic struct {
	ClinicID           string         `json:"clinic_id"`
	Name               string         `json:"name"`
	Address            string         `json:"address"`
	Location           string         `json:"location"`
	Timezone           string         `json:"timezone"`
	Settings           map[string]any `json:"settings"`
	OnboardingComplete bool           `json:"onboarding_complete"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Room is a physical operatory with typed capabilities. A room satisfies a
// procedure when every required capability key is present with an equal
// value.
type Room struct {
	RoomID       string         `json:"room_id"`
	ClinicID     string         `json:"clinic_id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Capabilities map[string]any `json:"capabilities"`
	Equipment    []string       `json:"equipment"`
	Status       string         `json:"status"`
}

// MeetsCapabilities reports whether the room carries every required
// capability with an equal scalar value. A nil or empty requirement matches
// any room.
func (r Room) MeetsCapabilities(required map[string]any) bool {
	if len(required) == 0 {
		return true
	}
	for key, want := range required {
		got, ok := r.Capabilities[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Doctor is a bookable provider. Specializations are linked many-to-many via
// DoctorSpecialization rows.
type Doctor struct {
	DoctorID string `json:"doctor_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	NPI      string `json:"npi"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
}

// DoctorSpecialization links a doctor to a specialization.
type DoctorSpecialization struct {
	DoctorID string `json:"doctor_id"`
	SpecID   int    `json:"spec_id"`
}

// Specialization names a provider qualification, unique per (tenant, name).
type Specialization struct {
	SpecID   int    `json:"spec_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// Staff is a non-provider clinical resource.
type Staff struct {
	StaffID  string `json:"staff_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Procedure is a tenant-owned catalog entry tying a treatment to its
// resource requirements and durations.
type Procedure struct {
	ProcID                 int            `json:"proc_id"`
	TenantID               string         `json:"tenant_id"`
	Name                   string         `json:"name"`
	BaseDurationMinutes    int            `json:"base_duration_minutes"`
	ConsultDurationMinutes int            `json:"consult_duration_minutes"`
	RequiredSpecID         int            `json:"required_spec_id"`
	RequiredRoomCapability map[string]any `json:"required_room_capability"`
	RequiresAnesthetist    bool           `json:"requires_anesthetist"`
	AllowSameDayCombo      bool           `json:"allow_same_day_combo"`
}

// AvailabilityTemplate declares the maximum weekly availability of a doctor
// or staff member at one clinic. DayOfWeek runs 0..6 with 0 = Monday.
// Start and end are wall-clock "HH:MM" strings in the clinic's timezone.
type AvailabilityTemplate struct {
	TemplateID   string `json:"template_id"`
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	ClinicID     string `json:"clinic_id"`
	DayOfWeek    int    `json:"day_of_week"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

// CalendarSlot marks one entity as booked for one 15-minute block. Rows are
// only written at booking time; the absence of a row means free within the
// availability template. Unique on (entity_type, entity_id, date, time_block).
type CalendarSlot struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Date       time.Time `json:"date"`
	TimeBlock  int       `json:"time_block"`
	Booked     bool      `json:"booked"`
	ApptID     *string   `json:"appt_id,omitempty"`
}

// Appointment is a confirmed booking. EndTime is strictly after StartTime.
type Appointment struct {
	ApptID        string    `json:"appt_id"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	RoomID        string    `json:"room_id"`
	StaffID       *string   `json:"staff_id,omitempty"`
	ClinicID      string    `json:"clinic_id"`
	ProcID        int       `json:"proc_id"`
	ProcedureType string    `json:"procedure_type"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Patient is a chat or booking principal.
type Patient struct {
	PatientID string     `json:"patient_id"`
	TenantID  *string    `json:"tenant_id,omitempty"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email"`
	DOB       *time.Time `json:"dob,omitempty"`
	IsNew     bool       `json:"is_new"`
}

// AuditEvent is one row of the tenant audit trail.
type AuditEvent struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	ActorID    *string        `json:"actor_id,omitempty"`
	PatientID  *string        `json:"patient_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details"`
	IP         string         `json:"ip"`
	CreatedAt  time.Time      `json:"created_at"`
}
