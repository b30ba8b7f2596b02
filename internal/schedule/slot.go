package schedule

// Slot option kinds, ordered by desirability.
const (
	SlotCombo       = "COMBO"
	SlotConsultOnly = "CONSULT_ONLY"
	SlotSingle      = "SINGLE"
	SlotEmergency   = "EMERGENCY"
)

// SlotOption is one bookable proposal. COMBO carries a same-day
// consult-plus-treatment pair; consult_end_time and treatment_start_time
// bracket the mandatory buffer between the two legs.
type SlotOption struct {
	Type               string  `json:"type"`
	Date               string  `json:"date"`
	Time               string  `json:"time"`
	EndTime            string  `json:"end_time"`
	TimeBlock          int     `json:"time_block"`
	DurationMinutes    int     `json:"duration_minutes"`
	DoctorID           string  `json:"doctor_id"`
	DoctorName         string  `json:"doctor_name"`
	RoomID             string  `json:"room_id"`
	RoomName           string  `json:"room_name"`
	ClinicID           string  `json:"clinic_id"`
	ClinicName         string  `json:"clinic_name"`
	StaffID            *string `json:"staff_id"`
	StaffName          *string `json:"staff_name"`
	Procedure          string  `json:"procedure"`
	ConsultEndTime     *string `json:"consult_end_time"`
	TreatmentStartTime *string `json:"treatment_start_time"`
	Score              float64 `json:"score"`
}
