package triage

import (
	"reflect"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestApplyAnswersNormalizesKeysAndFlags(t *testing.T) {
	issue := ClinicalIssue{SymptomCluster: "tooth pain"}
	ApplyAnswers(&issue, map[string]any{
		" Severity ": 8,
		"duration":   "4-7 days",
		"Stimulus":   "Cold drinks",
		"location":   "upper right",
	})

	if issue.Severity == nil || *issue.Severity != 8 {
		t.Fatalf("severity = %v, want 8", issue.Severity)
	}
	if !issue.HasPain {
		t.Error("severity answer should imply pain")
	}
	if issue.DurationDays == nil || *issue.DurationDays != 5 {
		t.Fatalf("duration_days = %v, want 5", issue.DurationDays)
	}
	if !issue.ThermalSensitivity {
		t.Error("cold stimulus answer should set thermal sensitivity")
	}
	if issue.Location != "upper right" {
		t.Errorf("location = %q", issue.Location)
	}
	for _, key := range []string{"severity", "duration", "stimulus", "location"} {
		if issue.FieldAnswers[key] == "" {
			t.Errorf("field_answers missing %q: %v", key, issue.FieldAnswers)
		}
	}
}

func TestApplyAnswersDurationGrammar(t *testing.T) {
	cases := []struct {
		answer string
		want   int
	}{
		{"Less than 24 hours", 1},
		{"started today", 1},
		{"1-3 days", 2},
		{"4-7 days", 5},
		{"1-2 weeks", 10},
		{"More than 2 weeks", 21},
		{"1–3 days", 2},
		{"10 days", 10},
	}
	for _, tc := range cases {
		issue := ClinicalIssue{}
		ApplyAnswers(&issue, map[string]any{"duration": tc.answer})
		if issue.DurationDays == nil || *issue.DurationDays != tc.want {
			t.Errorf("duration %q = %v, want %d", tc.answer, issue.DurationDays, tc.want)
		}
	}
}

func TestApplyAnswersIdempotent(t *testing.T) {
	answers := map[string]any{
		"severity":       9,
		"duration":       "1-3 days",
		"stimulus":       "biting down",
		"swelling_notes": "a bit puffy",
	}
	issue := ClinicalIssue{SymptomCluster: "molar pain"}
	ApplyAnswers(&issue, answers)
	first := issue
	first.ReportedSymptoms = append([]string{}, issue.ReportedSymptoms...)

	ApplyAnswers(&issue, answers)
	if !reflect.DeepEqual(first.ReportedSymptoms, issue.ReportedSymptoms) {
		t.Errorf("reported symptoms grew on reapply: %v", issue.ReportedSymptoms)
	}
	if *issue.Severity != 9 || *issue.DurationDays != 2 {
		t.Errorf("scalar answers changed on reapply: sev=%v dur=%v", issue.Severity, issue.DurationDays)
	}
}

func TestApplyAnswersNegatedSafetyValues(t *testing.T) {
	issue := ClinicalIssue{Swelling: true}
	ApplyAnswers(&issue, map[string]any{"airway_status": "No difficulty breathing"})
	if issue.AirwayCompromise {
		t.Error("negated airway answer set compromise flag")
	}

	issue = ClinicalIssue{}
	ApplyAnswers(&issue, map[string]any{"airway_status": "Yes, difficulty swallowing"})
	if !issue.AirwayCompromise {
		t.Error("affirmative airway answer did not set compromise flag")
	}

	issue = ClinicalIssue{}
	ApplyAnswers(&issue, map[string]any{"hemorrhage_status": "heavy and continuous"})
	if !issue.Bleeding {
		t.Error("active bleeding answer did not set flag")
	}
}

func TestMergeIssueFusesFeatures(t *testing.T) {
	prior := ClinicalIssue{
		SymptomCluster:   "upper molar pain",
		Urgency:          UrgencyMedium,
		HasPain:          true,
		Severity:         intPtr(5),
		ReportedSymptoms: []string{"throbbing"},
		FieldAnswers:     map[string]string{"location": "upper right"},
	}
	next := ClinicalIssue{
		Urgency:            UrgencyHigh,
		Severity:           intPtr(8),
		ThermalSensitivity: true,
		ReportedSymptoms:   []string{"throbbing", "cold sensitivity"},
		FieldAnswers:       map[string]string{"duration": "1-3 days"},
	}

	merged := MergeIssue(prior, next)
	if !merged.HasPain || !merged.ThermalSensitivity {
		t.Error("boolean flags should OR across turns")
	}
	if *merged.Severity != 8 {
		t.Errorf("severity = %d, want newest value 8", *merged.Severity)
	}
	if merged.SymptomCluster != "upper molar pain" {
		t.Errorf("cluster = %q, blank update should not clear it", merged.SymptomCluster)
	}
	if merged.Urgency != UrgencyHigh {
		t.Errorf("urgency = %q", merged.Urgency)
	}
	wantSymptoms := []string{"throbbing", "cold sensitivity"}
	if !reflect.DeepEqual(merged.ReportedSymptoms, wantSymptoms) {
		t.Errorf("symptoms = %v, want %v", merged.ReportedSymptoms, wantSymptoms)
	}
	if merged.FieldAnswers["location"] != "upper right" || merged.FieldAnswers["duration"] != "1-3 days" {
		t.Errorf("answers = %v", merged.FieldAnswers)
	}
}

func TestMergeIssuesByIndex(t *testing.T) {
	prior := []ClinicalIssue{
		{SymptomCluster: "pain", HasPain: true},
		{SymptomCluster: "swelling", Swelling: true},
	}
	next := []ClinicalIssue{{Severity: intPtr(7)}}

	merged := MergeIssues(prior, next)
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	if !merged[0].HasPain || merged[0].Severity == nil {
		t.Error("first issue should fuse prior flags with new severity")
	}
	if !merged[1].Swelling {
		t.Error("unmatched prior issue should survive")
	}

	grown := MergeIssues(next, prior)
	if len(grown) != 2 || !grown[1].Swelling {
		t.Errorf("extra extracted issues should append: %+v", grown)
	}
}

func TestApplyAnswersToIssuesTargetsMissingElement(t *testing.T) {
	pain := ClinicalIssue{SymptomCluster: "molar pain", HasPain: true}
	swelling := ClinicalIssue{SymptomCluster: "cheek swelling", Swelling: true, Location: "cheek"}
	AssessCompleteness(&pain)
	AssessCompleteness(&swelling)
	issues := []ClinicalIssue{pain, swelling}

	issues = ApplyAnswersToIssues(issues, map[string]any{
		"severity":      8,
		"airway_status": "no difficulty breathing",
	})

	if issues[0].Severity == nil || *issues[0].Severity != 8 {
		t.Errorf("pain issue severity = %v, want 8", issues[0].Severity)
	}
	if issues[1].Severity != nil {
		t.Errorf("swelling issue gained severity %v", *issues[1].Severity)
	}
	if issues[1].HasPain {
		t.Error("severity answer marked swelling issue as painful")
	}
	if issues[1].FieldAnswers["airway_status"] == "" {
		t.Error("airway answer did not reach the swelling issue")
	}
	if issues[0].FieldAnswers["airway_status"] != "" {
		t.Error("airway answer leaked onto the pain issue")
	}
}

func TestMaxUrgency(t *testing.T) {
	if got := MaxUrgency(UrgencyLow, UrgencyHigh, UrgencyMedium); got != UrgencyHigh {
		t.Errorf("MaxUrgency = %q, want HIGH", got)
	}
	if got := MaxUrgency(); got != UrgencyLow {
		t.Errorf("MaxUrgency() = %q, want LOW", got)
	}
	if got := MaxUrgency(UrgencyMedium, UrgencyEmergency); got != UrgencyEmergency {
		t.Errorf("MaxUrgency = %q, want EMERGENCY", got)
	}
}

func TestNormalizeUrgency(t *testing.T) {
	cases := map[string]Urgency{
		"emergency": UrgencyEmergency,
		" HIGH ":    UrgencyHigh,
		"low":       UrgencyLow,
		"medium":    UrgencyMedium,
		"bogus":     UrgencyMedium,
		"":          UrgencyMedium,
	}
	for raw, want := range cases {
		if got := normalizeUrgency(raw); got != want {
			t.Errorf("normalizeUrgency(%q) = %q, want %q", raw, got, want)
		}
	}
}
