package triage

import (
	"reflect"
	"testing"
)

func severePainIssue() ClinicalIssue {
	return ClinicalIssue{
		SymptomCluster: "severe tooth pain",
		Urgency:        UrgencyHigh,
		HasPain:        true,
		Severity:       intPtr(8),
	}
}

func TestGateSeverePainNeedsWorkup(t *testing.T) {
	issue := severePainIssue()
	action := Decide(&issue)
	if action != ActionClarify {
		t.Fatalf("action = %q, want CLARIFY", action)
	}
	want := []string{ElementLocation, ElementDuration, ElementStimulus}
	if !reflect.DeepEqual(issue.MissingClinicalElements, want) {
		t.Errorf("missing = %v, want %v", issue.MissingClinicalElements, want)
	}
	if issue.ClinicalProfile[ElementSeverity] != true {
		t.Error("severity should be satisfied via the extracted score")
	}
	if issue.ClinicalProfile[ElementAirwayStatus] != true {
		t.Error("airway check should not apply without swelling")
	}
}

func TestGateRoutineRequestRoutes(t *testing.T) {
	issue := ClinicalIssue{SymptomCluster: "need a cleaning appointment", Urgency: UrgencyLow}
	if action := Decide(&issue); action != ActionRoute {
		t.Fatalf("action = %q, want ROUTE (missing: %v)", action, issue.MissingClinicalElements)
	}
	if len(issue.MissingClinicalElements) != 0 {
		t.Errorf("missing = %v, want none", issue.MissingClinicalElements)
	}
}

func TestGateCompletePainCaseRoutes(t *testing.T) {
	issue := ClinicalIssue{
		SymptomCluster:     "severe pain upper right molar",
		Urgency:            UrgencyHigh,
		HasPain:            true,
		Severity:           intPtr(8),
		DurationDays:       intPtr(2),
		ThermalSensitivity: true,
		Location:           "upper right molar",
	}
	if action := Decide(&issue); action != ActionRoute {
		t.Fatalf("action = %q, want ROUTE (missing: %v)", action, issue.MissingClinicalElements)
	}
	for element, satisfied := range issue.ClinicalProfile {
		if !satisfied {
			t.Errorf("element %q unsatisfied on a complete case", element)
		}
	}
}

func TestGateSwellingRequiresAirwayCheck(t *testing.T) {
	issue := ClinicalIssue{
		SymptomCluster: "cheek swelling",
		Urgency:        UrgencyMedium,
		Swelling:       true,
		Location:       "cheek",
	}
	if action := Decide(&issue); action != ActionClarify {
		t.Fatalf("action = %q, want CLARIFY", action)
	}
	want := []string{ElementAirwayStatus}
	if !reflect.DeepEqual(issue.MissingClinicalElements, want) {
		t.Fatalf("missing = %v, want %v", issue.MissingClinicalElements, want)
	}
	if q := NextQuestion(issue, ""); q != QuestionFor(ElementAirwayStatus) {
		t.Errorf("next question = %q", q)
	}

	ApplyAnswers(&issue, map[string]any{"airway_status": "No difficulty breathing"})
	if action := Decide(&issue); action != ActionRoute {
		t.Fatalf("after airway answer action = %q, want ROUTE (missing: %v)", action, issue.MissingClinicalElements)
	}
	if issue.AirwayCompromise {
		t.Error("negative airway answer must not set the compromise flag")
	}
}

func TestGateSwellingWithAirwayMentionRoutes(t *testing.T) {
	issue := ClinicalIssue{
		SymptomCluster:   "cheek swelling",
		Urgency:          UrgencyMedium,
		Swelling:         true,
		VisibleSwelling:  true,
		Location:         "cheek",
		ReportedSymptoms: []string{"no breathing trouble"},
	}
	if action := Decide(&issue); action != ActionRoute {
		t.Fatalf("action = %q, want ROUTE (missing: %v)", action, issue.MissingClinicalElements)
	}
}

func TestGateEscalationFlagsWin(t *testing.T) {
	issue := ClinicalIssue{
		SymptomCluster:   "throat swelling",
		Swelling:         true,
		AirwayCompromise: true,
	}
	if action := Decide(&issue); action != ActionEscalate {
		t.Fatalf("airway compromise action = %q, want ESCALATE", action)
	}

	issue = ClinicalIssue{SymptomCluster: "extraction site", Bleeding: true}
	if action := Decide(&issue); action != ActionEscalate {
		t.Fatalf("uncontrolled bleeding action = %q, want ESCALATE", action)
	}
}

func TestGateBleedingNeedsHemorrhageStatus(t *testing.T) {
	issue := ClinicalIssue{SymptomCluster: "bleeding gums", Urgency: UrgencyMedium}
	if action := Decide(&issue); action != ActionClarify {
		t.Fatalf("action = %q, want CLARIFY", action)
	}
	want := []string{ElementHemorrhageStatus}
	if !reflect.DeepEqual(issue.MissingClinicalElements, want) {
		t.Fatalf("missing = %v, want %v", issue.MissingClinicalElements, want)
	}

	ApplyAnswers(&issue, map[string]any{"hemorrhage_status": "the bleeding stopped this morning"})
	if action := Decide(&issue); action != ActionRoute {
		t.Fatalf("after controlled answer action = %q, want ROUTE", action)
	}
	if issue.Bleeding {
		t.Error("controlled bleeding answer must not set the escalation flag")
	}
}

func TestGateGainsNeverRegress(t *testing.T) {
	issue := severePainIssue()
	AssessCompleteness(&issue)
	previous := append([]string{}, issue.MissingClinicalElements...)

	steps := []map[string]any{
		{"location": "upper right"},
		{"duration": "1-3 days"},
		{"stimulus": "cold water"},
	}
	for _, answers := range steps {
		ApplyAnswers(&issue, answers)
		AssessCompleteness(&issue)
		for _, element := range issue.MissingClinicalElements {
			if !stringInList(previous, element) {
				t.Fatalf("element %q became missing after new information", element)
			}
		}
		previous = append([]string{}, issue.MissingClinicalElements...)
	}
	if action := Decide(&issue); action != ActionRoute {
		t.Fatalf("final action = %q, want ROUTE (missing: %v)", action, issue.MissingClinicalElements)
	}
}

func TestNextQuestionSkipsJustAsked(t *testing.T) {
	issue := severePainIssue()
	AssessCompleteness(&issue)

	locationQ := QuestionFor(ElementLocation)
	durationQ := QuestionFor(ElementDuration)

	if q := NextQuestion(issue, ""); q != locationQ {
		t.Errorf("first question = %q, want location", q)
	}
	if q := NextQuestion(issue, "Thanks. "+locationQ); q != durationQ {
		t.Errorf("after asking location, next = %q, want duration", q)
	}

	all := locationQ + " " + durationQ + " " + QuestionFor(ElementStimulus)
	if q := NextQuestion(issue, all); q != locationQ {
		t.Errorf("when every question was asked, re-ask first, got %q", q)
	}

	complete := ClinicalIssue{SymptomCluster: "checkup"}
	AssessCompleteness(&complete)
	if q := NextQuestion(complete, ""); q != "" {
		t.Errorf("complete issue question = %q, want empty", q)
	}
}

func TestQuestionsForOrder(t *testing.T) {
	issue := severePainIssue()
	AssessCompleteness(&issue)
	want := []string{
		QuestionFor(ElementLocation),
		QuestionFor(ElementDuration),
		QuestionFor(ElementStimulus),
	}
	if got := QuestionsFor(issue); !reflect.DeepEqual(got, want) {
		t.Errorf("questions = %v, want %v", got, want)
	}
}
