package triage

import "strings"

// Canonical clinical elements, in the order clarification questions are
// asked. Safety elements come after the basic pain workup because airway and
// hemorrhage only become applicable once swelling or bleeding is mentioned.
const (
	ElementLocation         = "location"
	ElementDuration         = "duration"
	ElementSeverity         = "severity"
	ElementStimulus         = "stimulus"
	ElementSwellingLocation = "swelling_location"
	ElementAirwayStatus     = "airway_status"
	ElementHemorrhageStatus = "hemorrhage_status"
	ElementChronobiology    = "chronobiology"
	ElementSystemicRisk     = "systemic_risk"
)

var gateQuestions = map[string]string{
	ElementLocation:         "Where exactly is the pain located? (e.g., upper right, lower left)",
	ElementDuration:         "How long have you been experiencing these symptoms?",
	ElementSeverity:         "On a scale of 1-10, how severe is the pain?",
	ElementStimulus:         "Does hot, cold, or biting down make the pain worse?",
	ElementSwellingLocation: "Where is the swelling located? (e.g., cheek, jaw, under the tongue)",
	ElementAirwayStatus:     "Do you have any difficulty swallowing or breathing due to the swelling? (This is an important safety check)",
	ElementHemorrhageStatus: "Is the bleeding controlled, or is it heavy and continuous?",
	ElementChronobiology:    "Is the pain worse at night, or does it wake you from sleep?",
	ElementSystemicRisk:     "Do you have a fever, or any medical conditions we should know about?",
}

// QuestionFor returns the intake question for a clinical element.
func QuestionFor(element string) string {
	return gateQuestions[element]
}

type elementCheck struct {
	name       string
	applicable func(issue ClinicalIssue, detail string) bool
	present    func(issue ClinicalIssue, detail string) bool
}

func mentionsPain(issue ClinicalIssue, detail string) bool {
	return issue.HasPain || containsAny(detail, painKeywords)
}

func mentionsSwelling(issue ClinicalIssue, detail string) bool {
	return issue.Swelling || issue.VisibleSwelling || containsAny(detail, swellingKeywords)
}

func mentionsBleeding(issue ClinicalIssue, detail string) bool {
	return issue.Bleeding || containsAny(detail, bleedingKeywords)
}

func never(ClinicalIssue, string) bool { return false }

func hasLocation(issue ClinicalIssue, detail string) bool {
	return issue.Location != "" ||
		issue.answered("location") || issue.answered("pain_location") ||
		locationPattern.MatchString(detail)
}

// clinicalElements drives the completeness gate. Chronobiology and systemic
// risk are informational: they enrich the profile when mentioned but never
// block routing on their own.
var clinicalElements = []elementCheck{
	{
		name: ElementLocation,
		applicable: func(issue ClinicalIssue, detail string) bool {
			return mentionsPain(issue, detail) || mentionsSwelling(issue, detail)
		},
		present: hasLocation,
	},
	{
		name:       ElementDuration,
		applicable: mentionsPain,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.DurationDays != nil ||
				issue.answered("duration") || issue.answered("duration_days") ||
				durationPattern.MatchString(detail)
		},
	},
	{
		name:       ElementSeverity,
		applicable: mentionsPain,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.Severity != nil ||
				issue.answered("severity") || issue.answered("pain_severity") ||
				severityPattern.MatchString(detail)
		},
	},
	{
		name:       ElementStimulus,
		applicable: mentionsPain,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.ThermalSensitivity || issue.BitingPain ||
				issue.answered("stimulus") || issue.answered("thermal_duration") ||
				stimulusPattern.MatchString(detail)
		},
	},
	{
		name:       ElementSwellingLocation,
		applicable: mentionsSwelling,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.answered("swelling_location") ||
				swellingLocationPattern.MatchString(detail) ||
				(mentionsSwelling(issue, detail) && hasLocation(issue, detail))
		},
	},
	{
		name:       ElementAirwayStatus,
		applicable: mentionsSwelling,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.AirwayCompromise ||
				issue.answered("airway_status") ||
				containsAny(detail, airwayKeywords)
		},
	},
	{
		name:       ElementHemorrhageStatus,
		applicable: mentionsBleeding,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.Bleeding ||
				issue.answered("hemorrhage_status") ||
				hemorrhagePattern.MatchString(detail)
		},
	},
	{
		name:       ElementChronobiology,
		applicable: never,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.answered("chronobiology") || chronobiologyPattern.MatchString(detail)
		},
	},
	{
		name:       ElementSystemicRisk,
		applicable: never,
		present: func(issue ClinicalIssue, detail string) bool {
			return issue.answered("systemic_risk") || systemicRiskPattern.MatchString(detail)
		},
	},
}

const minSatisfiedElements = 3

// AssessCompleteness recomputes the issue's clinical profile. An element is
// satisfied when it is present or not applicable to the reported symptoms;
// applicable-but-absent elements land in missing_clinical_elements in ask
// order. Gaining information never removes a satisfied element.
func AssessCompleteness(issue *ClinicalIssue) []string {
	norm := issue.normalized()
	*issue = norm
	detail := issue.detail()

	profile := make(map[string]bool, len(clinicalElements))
	missing := make([]string, 0, len(clinicalElements))
	for _, element := range clinicalElements {
		satisfied := element.present(*issue, detail) || !element.applicable(*issue, detail)
		profile[element.name] = satisfied
		if !satisfied {
			missing = append(missing, element.name)
		}
	}
	issue.ClinicalProfile = profile
	issue.MissingClinicalElements = missing
	return missing
}

// Decide is the sole routing authority for an issue. Escalation flags win,
// then a complete profile routes, and anything else clarifies.
func Decide(issue *ClinicalIssue) Action {
	missing := AssessCompleteness(issue)
	if issue.AirwayCompromise || issue.Bleeding {
		return ActionEscalate
	}
	satisfied := 0
	for _, ok := range issue.ClinicalProfile {
		if ok {
			satisfied++
		}
	}
	if len(missing) == 0 && satisfied >= minSatisfiedElements {
		return ActionRoute
	}
	return ActionClarify
}

// QuestionsFor returns the clarification questions for every missing
// element, in ask order. The caller must have run AssessCompleteness.
func QuestionsFor(issue ClinicalIssue) []string {
	questions := make([]string, 0, len(issue.MissingClinicalElements))
	for _, element := range issue.MissingClinicalElements {
		if question := gateQuestions[element]; question != "" {
			questions = append(questions, question)
		}
	}
	return questions
}

// NextQuestion picks the question to ask this turn: the first missing
// element whose question was not already posed verbatim in the assistant's
// last message. When every missing element was just asked, it re-asks the
// first one rather than going silent.
func NextQuestion(issue ClinicalIssue, lastAssistant string) string {
	if len(issue.MissingClinicalElements) == 0 {
		return ""
	}
	for _, element := range issue.MissingClinicalElements {
		question := gateQuestions[element]
		if question != "" && !strings.Contains(lastAssistant, question) {
			return question
		}
	}
	return gateQuestions[issue.MissingClinicalElements[0]]
}
