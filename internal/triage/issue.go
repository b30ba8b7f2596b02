package triage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Action is the closed set of analyzer outcomes. Routing decisions come from
// the clinical gate; the LLM never picks one of these directly.
type Action string

const (
	ActionClarify   Action = "CLARIFY"
	ActionRoute     Action = "ROUTE"
	ActionEscalate  Action = "ESCALATE"
	ActionGreeting  Action = "GREETING"
	ActionSmallTalk Action = "SMALL_TALK"
	ActionUnknown   Action = "UNKNOWN"
)

// Urgency levels, ordered.
type Urgency string

const (
	UrgencyEmergency Urgency = "EMERGENCY"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyLow       Urgency = "LOW"
)

// Rank orders urgencies for max-folds. Unknown values rank lowest.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyEmergency:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

// MaxUrgency folds urgencies to the most severe, defaulting to LOW.
func MaxUrgency(urgencies ...Urgency) Urgency {
	max := UrgencyLow
	for _, u := range urgencies {
		if u.Rank() > max.Rank() {
			max = u
		}
	}
	return max
}

func normalizeUrgency(raw string) Urgency {
	switch Urgency(strings.ToUpper(strings.TrimSpace(raw))) {
	case UrgencyEmergency:
		return UrgencyEmergency
	case UrgencyHigh:
		return UrgencyHigh
	case UrgencyLow:
		return UrgencyLow
	}
	return UrgencyMedium
}

// Patient sentiment labels.
const (
	SentimentNeutral    = "Neutral"
	SentimentAnxious    = "Anxious"
	SentimentFrustrated = "Frustrated"
)

func normalizeSentiment(raw string) string {
	switch strings.TrimSpace(raw) {
	case SentimentAnxious:
		return SentimentAnxious
	case SentimentFrustrated:
		return SentimentFrustrated
	}
	return SentimentNeutral
}

// Completion status of the intake.
const (
	CompletionComplete   = "COMPLETE"
	CompletionIncomplete = "INCOMPLETE"
)

// ClinicalIssue is the structured feature record for one patient concern,
// accumulated across turns. Booleans are extraction flags; the gate state
// fields are recomputed every turn.
type ClinicalIssue struct {
	SymptomCluster string  `json:"symptom_cluster"`
	Urgency        Urgency `json:"urgency"`
	Reasoning      string  `json:"reasoning"`

	HasPain            bool `json:"has_pain"`
	Severity           *int `json:"severity"`
	DurationDays       *int `json:"duration_days"`
	ThermalSensitivity bool `json:"thermal_sensitivity"`
	BitingPain         bool `json:"biting_pain"`
	Swelling           bool `json:"swelling"`
	VisibleSwelling    bool `json:"visible_swelling"`
	AirwayCompromise   bool `json:"airway_compromise"`
	Trauma             bool `json:"trauma"`
	Bleeding           bool `json:"bleeding"`
	ImpactedWisdom     bool `json:"impacted_wisdom"`
	RequiresSedation   bool `json:"requires_sedation"`

	Location          string   `json:"location"`
	ReportedSymptoms  []string `json:"reported_symptoms"`
	SuspectedCategory string   `json:"suspected_category"`

	ClinicalProfile         map[string]bool   `json:"clinical_profile"`
	MissingClinicalElements []string          `json:"missing_clinical_elements"`
	FieldAnswers            map[string]string `json:"field_answers"`
}

// normalized returns the issue with non-null list and map fields.
func (c ClinicalIssue) normalized() ClinicalIssue {
	if c.ReportedSymptoms == nil {
		c.ReportedSymptoms = []string{}
	}
	if c.ClinicalProfile == nil {
		c.ClinicalProfile = map[string]bool{}
	}
	if c.MissingClinicalElements == nil {
		c.MissingClinicalElements = []string{}
	}
	if c.FieldAnswers == nil {
		c.FieldAnswers = map[string]string{}
	}
	return c
}

// Clone returns a deep copy, so merges and answer application never mutate
// state owned by the caller.
func (c ClinicalIssue) Clone() ClinicalIssue {
	clone := c.normalized()
	clone.ReportedSymptoms = append([]string{}, clone.ReportedSymptoms...)
	clone.MissingClinicalElements = append([]string{}, clone.MissingClinicalElements...)
	profile := make(map[string]bool, len(clone.ClinicalProfile))
	for k, v := range clone.ClinicalProfile {
		profile[k] = v
	}
	clone.ClinicalProfile = profile
	answers := make(map[string]string, len(clone.FieldAnswers))
	for k, v := range clone.FieldAnswers {
		answers[k] = v
	}
	clone.FieldAnswers = answers
	return clone
}

// detail is the lowercased free-text surface of the issue, used by the gate
// and classifier keyword checks.
func (c ClinicalIssue) detail() string {
	return strings.ToLower(c.SymptomCluster + " " + strings.Join(c.ReportedSymptoms, " "))
}

func (c ClinicalIssue) answered(key string) bool {
	return strings.TrimSpace(c.FieldAnswers[key]) != ""
}

// IntentResult is the analyzer's verdict for one turn.
type IntentResult struct {
	Issues                 []ClinicalIssue `json:"issues"`
	OverallUrgency         Urgency         `json:"overall_urgency"`
	RequiresClarification  bool            `json:"requires_clarification"`
	ClarificationQuestions []string        `json:"clarification_questions"`
	SafetyFlag             bool            `json:"safety_flag"`
	ActionType             Action          `json:"action_type"`
	PatientSentiment       string          `json:"patient_sentiment"`
	CompletionStatus       string          `json:"completion_status"`
}

func newIntentResult() IntentResult {
	return IntentResult{
		Issues:                 []ClinicalIssue{},
		ClarificationQuestions: []string{},
		ActionType:             ActionUnknown,
		PatientSentiment:       SentimentNeutral,
		CompletionStatus:       CompletionIncomplete,
	}
}

// MergeIssue fuses a prior issue with a freshly extracted one. Booleans OR,
// scalars prefer the new value when set, answers merge with new values
// winning, and reported symptoms union preserving first-seen order.
func MergeIssue(prior, next ClinicalIssue) ClinicalIssue {
	merged := prior.Clone()
	next = next.normalized()

	merged.HasPain = merged.HasPain || next.HasPain
	merged.ThermalSensitivity = merged.ThermalSensitivity || next.ThermalSensitivity
	merged.BitingPain = merged.BitingPain || next.BitingPain
	merged.Swelling = merged.Swelling || next.Swelling
	merged.VisibleSwelling = merged.VisibleSwelling || next.VisibleSwelling
	merged.AirwayCompromise = merged.AirwayCompromise || next.AirwayCompromise
	merged.Trauma = merged.Trauma || next.Trauma
	merged.Bleeding = merged.Bleeding || next.Bleeding
	merged.ImpactedWisdom = merged.ImpactedWisdom || next.ImpactedWisdom
	merged.RequiresSedation = merged.RequiresSedation || next.RequiresSedation

	if next.Severity != nil {
		merged.Severity = next.Severity
	}
	if next.DurationDays != nil {
		merged.DurationDays = next.DurationDays
	}
	if next.Location != "" {
		merged.Location = next.Location
	}
	if next.SymptomCluster != "" {
		merged.SymptomCluster = next.SymptomCluster
	}
	if next.Urgency != "" {
		merged.Urgency = next.Urgency
	}
	if next.Reasoning != "" {
		merged.Reasoning = next.Reasoning
	}
	if next.SuspectedCategory != "" {
		merged.SuspectedCategory = next.SuspectedCategory
	}

	for key, value := range next.FieldAnswers {
		merged.FieldAnswers[key] = value
	}
	for _, symptom := range next.ReportedSymptoms {
		merged.ReportedSymptoms = appendUnique(merged.ReportedSymptoms, symptom)
	}
	return merged
}

// MergeIssues pairs prior and new issues by index: position i fuses with
// position i, extra new issues append, extra prior issues survive.
func MergeIssues(prior, next []ClinicalIssue) []ClinicalIssue {
	n := len(prior)
	if len(next) > n {
		n = len(next)
	}
	merged := make([]ClinicalIssue, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(prior) && i < len(next):
			merged = append(merged, MergeIssue(prior[i], next[i]))
		case i < len(prior):
			merged = append(merged, prior[i].Clone())
		default:
			merged = append(merged, next[i].Clone())
		}
	}
	return merged
}

// normalizedAnswers lowercases and trims the answer map, dropping blank keys
// and values, and returns the keys sorted for deterministic application.
func normalizedAnswers(answers map[string]any) ([]string, map[string]string) {
	keys := make([]string, 0, len(answers))
	byKey := make(map[string]string, len(answers))
	for rawKey, rawValue := range answers {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		if key == "" {
			continue
		}
		value := strings.TrimSpace(fmt.Sprint(rawValue))
		if value == "" {
			continue
		}
		keys = append(keys, key)
		byKey[key] = value
	}
	sort.Strings(keys)
	return keys, byKey
}

// answerElement maps answer keys to the clinical element they satisfy.
// Free-form keys map to nothing and land in reported symptoms.
func answerElement(key string) string {
	switch key {
	case "location", "pain_location":
		return ElementLocation
	case "duration", "duration_days":
		return ElementDuration
	case "severity", "pain_severity":
		return ElementSeverity
	case "stimulus", "thermal_duration":
		return ElementStimulus
	case "swelling_location":
		return ElementSwellingLocation
	case "airway_status":
		return ElementAirwayStatus
	case "hemorrhage_status":
		return ElementHemorrhageStatus
	case "chronobiology":
		return ElementChronobiology
	case "systemic_risk":
		return ElementSystemicRisk
	}
	return ""
}

func applyAnswer(issue *ClinicalIssue, key, value string) {
	issue.FieldAnswers[key] = value
	lower := strings.ToLower(value)

	switch key {
	case "location", "pain_location":
		issue.Location = value
	case "pain_severity", "severity":
		if n, ok := firstInt(value); ok {
			issue.Severity = &n
			issue.HasPain = true
		}
	case "duration", "duration_days":
		if n, ok := parseDurationDays(lower); ok {
			issue.DurationDays = &n
		}
	case "thermal_duration":
		issue.ThermalSensitivity = true
	case "stimulus":
		issue.HasPain = true
		if thermalStimulusPattern.MatchString(lower) {
			issue.ThermalSensitivity = true
		}
		if bitingStimulusPattern.MatchString(lower) {
			issue.BitingPain = true
		}
	case "swelling_location":
		issue.Swelling = true
		if visibleSwellingPattern.MatchString(lower) {
			issue.VisibleSwelling = true
		}
	case "airway_status":
		if matchesUnnegated(airwayCompromisePattern, lower) {
			issue.AirwayCompromise = true
		}
	case "hemorrhage_status":
		if matchesUnnegated(activeBleedingPattern, lower) {
			issue.Bleeding = true
		}
	default:
		issue.ReportedSymptoms = appendUnique(issue.ReportedSymptoms, value)
	}
}

// ApplyAnswers folds a turn's structured answers into the issue. Keys are
// lowercased and trimmed; values land in field_answers and update the
// matching feature flags. Applying the same answers twice is a no-op after
// the first application.
func ApplyAnswers(issue *ClinicalIssue, answers map[string]any) {
	if issue == nil || len(answers) == 0 {
		return
	}
	norm := issue.normalized()
	*issue = norm

	keys, byKey := normalizedAnswers(answers)
	for _, key := range keys {
		applyAnswer(issue, key, byKey[key])
	}
}

// ApplyAnswersToIssues distributes a flat answer map across several issues.
// An answer goes to the issues still missing the element it addresses, so a
// severity reply meant for a pain issue does not mark a swelling-only issue
// as painful. Answers no issue is missing, and free-form answers, go to
// every issue.
func ApplyAnswersToIssues(issues []ClinicalIssue, answers map[string]any) []ClinicalIssue {
	if len(issues) == 0 || len(answers) == 0 {
		return issues
	}
	if len(issues) == 1 {
		ApplyAnswers(&issues[0], answers)
		return issues
	}
	for i := range issues {
		issues[i] = issues[i].normalized()
	}

	keys, byKey := normalizedAnswers(answers)
	for _, key := range keys {
		element := answerElement(key)
		applied := false
		if element != "" {
			for i := range issues {
				if stringInList(issues[i].MissingClinicalElements, element) {
					applyAnswer(&issues[i], key, byKey[key])
					applied = true
				}
			}
		}
		if !applied {
			for i := range issues {
				applyAnswer(&issues[i], key, byKey[key])
			}
		}
	}
	return issues
}

// parseDurationDays converts a duration answer to approximate days. The
// bucket phrases the intake UI offers map to fixed midpoints; anything else
// falls back to the first integer in the text.
func parseDurationDays(lower string) (int, bool) {
	lower = strings.ReplaceAll(lower, "–", "-")
	switch {
	case strings.Contains(lower, "less than 24"), strings.Contains(lower, "today"):
		return 1, true
	case strings.Contains(lower, "1-3"):
		return 2, true
	case strings.Contains(lower, "4-7"):
		return 5, true
	case strings.Contains(lower, "1-2 week"):
		return 10, true
	case strings.Contains(lower, "more than 2 week"):
		return 21, true
	}
	return firstInt(lower)
}

func firstInt(s string) (int, bool) {
	match := integerPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

func appendUnique(list []string, value string) []string {
	if stringInList(list, value) {
		return list
	}
	return append(list, value)
}

func stringInList(list []string, value string) bool {
	for _, existing := range list {
		if existing == value {
			return true
		}
	}
	return false
}
