package orchestrator

import (
	"strings"

	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/internal/triage"
)

// Suggested actions a plan can carry. ORCHESTRATE is the only value the
// booking surface treats as actionable; everything else renders as chat.
const (
	PlanOrchestrate = "ORCHESTRATE"
	PlanEscalate    = "ESCALATE"
	PlanClarify     = "CLARIFY"
	PlanGreeting    = "GREETING"
	PlanSmallTalk   = "SMALL_TALK"
)

const (
	appointmentConsultation = "Specialist Consultation"
	appointmentExtendedEval = "Extended Evaluation Appointment"

	defaultSpecialistType = "Dentist"
	defaultDurationMin    = 30
)

// RoutedIssue is the per-issue routing outcome: the resolved procedure, the
// specialist it needs, and the ranked slots found for it. ProcedureID is nil
// when resolution failed; Error then says why.
type RoutedIssue struct {
	IssueIndex          int                  `json:"issue_index"`
	SymptomCluster      string               `json:"symptom_cluster"`
	Urgency             triage.Urgency       `json:"urgency"`
	SpecialistType      string               `json:"specialist_type"`
	ProcedureID         *int                 `json:"procedure_id"`
	ProcedureName       string               `json:"procedure_name"`
	AppointmentType     string               `json:"appointment_type"`
	DurationMinutes     int                  `json:"duration_minutes"`
	ConsultMinutes      int                  `json:"consult_minutes"`
	ReasoningTriggers   []string             `json:"reasoning_triggers"`
	RoomCapability      map[string]any       `json:"room_capability"`
	RequiresSedation    bool                 `json:"requires_sedation"`
	RequiresAnesthetist bool                 `json:"requires_anesthetist"`
	Slots               *schedule.TierResult `json:"slots"`
	FallbackTier        int                  `json:"fallback_tier"`
	FallbackNote        string               `json:"fallback_note,omitempty"`
	Error               string               `json:"error,omitempty"`
}

// OrchestrationPlan is the full response for one patient turn. Exactly one of
// the action-specific sections is populated: EmergencySlots for ESCALATE,
// Clarification for CLARIFY, RoutedIssues for ORCHESTRATE.
type OrchestrationPlan struct {
	IsEmergency            bool                   `json:"is_emergency"`
	OverallUrgency         triage.Urgency         `json:"overall_urgency"`
	Issues                 []triage.ClinicalIssue `json:"issues"`
	RoutedIssues           []RoutedIssue          `json:"routed_issues"`
	SuggestedAction        string                 `json:"suggested_action"`
	CombinedVisitPossible  bool                   `json:"combined_visit_possible"`
	PatientSentiment       string                 `json:"patient_sentiment"`
	ClarificationQuestions []string               `json:"clarification_questions"`
	EmergencySlots         *schedule.SlotOption   `json:"emergency_slots"`
	Clarification          *Clarification         `json:"clarification,omitempty"`
}

// Clarification is the structured counterpart to ClarificationQuestions: one
// entry per tracked issue so the widget can render per-issue forms instead of
// a flat question list.
type Clarification struct {
	Issues []ClarificationIssue `json:"issues"`
}

// ClarificationIssue describes what is still needed for one issue. Status is
// COMPLETE when no clinical elements are missing.
type ClarificationIssue struct {
	IssueID         string     `json:"issue_id"`
	Summary         string     `json:"summary"`
	MissingFields   []FieldDef `json:"missing_fields"`
	Status          string     `json:"status"`
	MissingElements []string   `json:"missing_elements"`
}

// FieldDef tells the chat widget how to collect one missing element. Keys
// match the answer keys the analyzer folds back into issues.
type FieldDef struct {
	FieldKey string   `json:"field_key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Min      int      `json:"min,omitempty"`
	Max      int      `json:"max,omitempty"`
}

const (
	fieldText    = "text"
	fieldSelect  = "select"
	fieldSlider  = "slider"
	fieldBoolean = "boolean"
)

var fieldDefs = map[string]FieldDef{
	triage.ElementLocation: {
		FieldKey: triage.ElementLocation,
		Label:    "Location of pain",
		Type:     fieldText,
		Required: true,
	},
	triage.ElementDuration: {
		FieldKey: triage.ElementDuration,
		Label:    "How long has this been going on?",
		Type:     fieldSelect,
		Required: true,
		Options: []string{
			"Less than 24 hours",
			"1-3 days",
			"4-7 days",
			"1-2 weeks",
			"More than 2 weeks",
		},
	},
	triage.ElementSeverity: {
		FieldKey: triage.ElementSeverity,
		Label:    "Pain severity",
		Type:     fieldSlider,
		Required: true,
		Min:      1,
		Max:      10,
	},
	triage.ElementStimulus: {
		FieldKey: triage.ElementStimulus,
		Label:    "What makes the pain worse?",
		Type:     fieldSelect,
		Required: true,
		Options: []string{
			"Hot or cold",
			"Biting or chewing",
			"Both",
			"Neither",
		},
	},
	triage.ElementSwellingLocation: {
		FieldKey: triage.ElementSwellingLocation,
		Label:    "Where is the swelling?",
		Type:     fieldText,
		Required: true,
	},
	triage.ElementAirwayStatus: {
		FieldKey: triage.ElementAirwayStatus,
		Label:    "Difficulty breathing or swallowing?",
		Type:     fieldBoolean,
		Required: true,
	},
	triage.ElementHemorrhageStatus: {
		FieldKey: triage.ElementHemorrhageStatus,
		Label:    "How is the bleeding now?",
		Type:     fieldSelect,
		Required: true,
		Options: []string{
			"Controlled / stopped",
			"Heavy and continuous",
		},
	},
}

// FieldDefFor returns the widget definition for a missing element. Elements
// without a curated definition degrade to a free-text field.
func FieldDefFor(element string) FieldDef {
	if def, ok := fieldDefs[element]; ok {
		return def
	}
	return FieldDef{
		FieldKey: element,
		Label:    strings.ReplaceAll(element, "_", " "),
		Type:     fieldText,
		Required: true,
	}
}

func fieldDefsFor(elements []string) []FieldDef {
	defs := make([]FieldDef, 0, len(elements))
	for _, el := range elements {
		defs = append(defs, FieldDefFor(el))
	}
	return defs
}
