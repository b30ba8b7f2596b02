package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/internal/triage"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type fakeDirectory struct {
	procs        map[string]*model.Procedure
	specs        map[int]string
	err          error
	resolveCalls []string
}

func (f *fakeDirectory) ResolveProcedure(ctx context.Context, conditionKey, tenantID string) (*model.Procedure, error) {
	f.resolveCalls = append(f.resolveCalls, conditionKey)
	if f.err != nil {
		return nil, f.err
	}
	return f.procs[conditionKey], nil
}

func (f *fakeDirectory) SpecializationNameByID(ctx context.Context, specID int) (string, error) {
	return f.specs[specID], nil
}

type routeCall struct {
	procID        int
	needsSedation bool
}

type fakeRouter struct {
	results map[int]*schedule.TierResult
	err     error
	calls   []routeCall
}

func (f *fakeRouter) RouteWithFallback(ctx context.Context, tenantID string, proc model.Procedure, needsSedation bool, prefs schedule.Preferences) (*schedule.TierResult, error) {
	f.calls = append(f.calls, routeCall{procID: proc.ProcID, needsSedation: needsSedation})
	if f.err != nil {
		return nil, f.err
	}
	if tr, ok := f.results[proc.ProcID]; ok {
		return tr, nil
	}
	return &schedule.TierResult{
		Tier:      0,
		TierLabel: "No Availability",
		Note:      "No slots found. Please contact the clinic directly.",
	}, nil
}

type fakeEmergency struct {
	slot  *schedule.SlotOption
	err   error
	calls int
}

func (f *fakeEmergency) FindEarliest(ctx context.Context, tenantID string) (*schedule.SlotOption, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.slot, nil
}

func newTestOrchestrator(dir *fakeDirectory, router *fakeRouter, em *fakeEmergency) *Orchestrator {
	return NewOrchestrator(dir, router, em, logging.New("error"))
}

func rootCanalProc() *model.Procedure {
	return &model.Procedure{
		ProcID: 11, TenantID: "t1", Name: "Root Canal Treatment",
		BaseDurationMinutes: 90, ConsultDurationMinutes: 20, RequiredSpecID: 2,
		RequiredRoomCapability: map[string]any{"microscope": true},
	}
}

func wisdomProc() *model.Procedure {
	return &model.Procedure{
		ProcID: 12, TenantID: "t1", Name: "Wisdom Tooth Extraction (Sedation)",
		BaseDurationMinutes: 60, ConsultDurationMinutes: 15, RequiredSpecID: 3,
		RequiredRoomCapability: map[string]any{"surgical": true},
		RequiresAnesthetist:    true,
	}
}

func emergencyProc() *model.Procedure {
	return &model.Procedure{
		ProcID: 14, TenantID: "t1", Name: "Emergency Triage",
		BaseDurationMinutes: 15, RequiredSpecID: 1,
	}
}

func specNames() map[int]string {
	return map[int]string{1: "General Dentist", 2: "Endodontist", 3: "Oral Surgeon"}
}

func pulpalIssue() triage.ClinicalIssue {
	return triage.ClinicalIssue{
		SymptomCluster: "severe tooth pain", Urgency: triage.UrgencyHigh,
		HasPain: true, Severity: intPtr(8), ThermalSensitivity: true,
	}
}

func wisdomIssue() triage.ClinicalIssue {
	return triage.ClinicalIssue{
		SymptomCluster: "swollen back molar", Urgency: triage.UrgencyMedium,
		Swelling: true, ImpactedWisdom: true,
	}
}

func routedIntent(issues ...triage.ClinicalIssue) triage.IntentResult {
	return triage.IntentResult{
		Issues:           issues,
		OverallUrgency:   triage.UrgencyHigh,
		ActionType:       triage.ActionRoute,
		PatientSentiment: triage.SentimentNeutral,
		CompletionStatus: triage.CompletionComplete,
	}
}

func singleTier(tier int, clinics ...string) *schedule.TierResult {
	tr := &schedule.TierResult{Tier: tier, TierLabel: "Primary Results"}
	for _, clinic := range clinics {
		tr.SingleSlots = append(tr.SingleSlots, schedule.SlotOption{
			Type: schedule.SlotSingle, Date: "2026-09-01", Time: "09:00",
			ClinicID: clinic, ClinicName: "Clinic " + clinic,
		})
	}
	tr.TotalFound = len(tr.SingleSlots)
	return tr
}

func TestBuildPlanEmergencyOverride(t *testing.T) {
	slot := &schedule.SlotOption{
		Type: schedule.SlotEmergency, Date: "2026-08-24", Time: "14:15",
		DurationMinutes: 15, ClinicID: "c1", Procedure: "Emergency Triage", Score: 1000,
	}
	dir := &fakeDirectory{procs: map[string]*model.Procedure{ConditionEmergency: emergencyProc()}}
	router := &fakeRouter{}
	em := &fakeEmergency{slot: slot}
	o := newTestOrchestrator(dir, router, em)

	intent := triage.IntentResult{
		Issues:           []triage.ClinicalIssue{{SymptomCluster: "trouble breathing", Urgency: triage.UrgencyEmergency, AirwayCompromise: true}},
		OverallUrgency:   triage.UrgencyEmergency,
		SafetyFlag:       true,
		ActionType:       triage.ActionEscalate,
		PatientSentiment: triage.SentimentAnxious,
	}

	plan, err := o.BuildPlan(context.Background(), "t1", intent, schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.IsEmergency {
		t.Fatal("expected emergency plan")
	}
	if plan.SuggestedAction != PlanEscalate {
		t.Fatalf("suggested action = %q, want ESCALATE", plan.SuggestedAction)
	}
	if plan.OverallUrgency != triage.UrgencyEmergency {
		t.Fatalf("urgency = %q, want EMERGENCY", plan.OverallUrgency)
	}
	if plan.EmergencySlots != slot {
		t.Fatalf("emergency slot = %+v, want the finder's slot", plan.EmergencySlots)
	}
	if len(plan.RoutedIssues) != 0 {
		t.Fatalf("routed issues = %d, want none", len(plan.RoutedIssues))
	}
	if em.calls != 1 {
		t.Fatalf("emergency finder calls = %d, want 1", em.calls)
	}
	if len(router.calls) != 0 {
		t.Fatal("slot router must not run on the emergency path")
	}
	if plan.PatientSentiment != triage.SentimentAnxious {
		t.Fatalf("sentiment = %q, want passthrough", plan.PatientSentiment)
	}
}

func TestBuildPlanEmergencyWithoutProcedure(t *testing.T) {
	dir := &fakeDirectory{}
	em := &fakeEmergency{}
	o := newTestOrchestrator(dir, &fakeRouter{}, em)

	intent := triage.IntentResult{OverallUrgency: triage.UrgencyEmergency, SafetyFlag: true, ActionType: triage.ActionEscalate}
	plan, err := o.BuildPlan(context.Background(), "t1", intent, schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.IsEmergency || plan.SuggestedAction != PlanEscalate {
		t.Fatalf("plan = %+v, want escalation", plan)
	}
	if plan.EmergencySlots != nil {
		t.Fatal("expected no emergency slot without an emergency procedure")
	}
	if em.calls != 0 {
		t.Fatal("finder must not run when the emergency procedure is missing")
	}
}

func TestBuildPlanEmergencySearchFailureStillEscalates(t *testing.T) {
	dir := &fakeDirectory{procs: map[string]*model.Procedure{ConditionEmergency: emergencyProc()}}
	em := &fakeEmergency{err: errors.New("pool closed")}
	o := newTestOrchestrator(dir, &fakeRouter{}, em)

	intent := triage.IntentResult{SafetyFlag: true, OverallUrgency: triage.UrgencyEmergency, ActionType: triage.ActionEscalate}
	plan, err := o.BuildPlan(context.Background(), "t1", intent, schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !plan.IsEmergency || plan.EmergencySlots != nil {
		t.Fatalf("plan = %+v, want slotless escalation", plan)
	}
}

func TestBuildPlanGreetingPassthrough(t *testing.T) {
	dir := &fakeDirectory{}
	o := newTestOrchestrator(dir, &fakeRouter{}, &fakeEmergency{})

	intent := triage.IntentResult{ActionType: triage.ActionGreeting, OverallUrgency: triage.UrgencyLow, PatientSentiment: triage.SentimentNeutral}
	plan, err := o.BuildPlan(context.Background(), "t1", intent, schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.SuggestedAction != PlanGreeting {
		t.Fatalf("suggested action = %q, want GREETING", plan.SuggestedAction)
	}
	if plan.OverallUrgency != triage.UrgencyLow {
		t.Fatalf("urgency = %q, want LOW", plan.OverallUrgency)
	}
	if plan.IsEmergency || plan.Clarification != nil {
		t.Fatalf("plan = %+v, want bare passthrough", plan)
	}
	if len(dir.resolveCalls) != 0 {
		t.Fatal("directory must not be queried for a greeting")
	}
}

func TestBuildPlanClarifyPayload(t *testing.T) {
	o := newTestOrchestrator(&fakeDirectory{}, &fakeRouter{}, &fakeEmergency{})

	pain := pulpalIssue()
	pain.MissingClinicalElements = []string{triage.ElementLocation, triage.ElementDuration}
	cleaning := triage.ClinicalIssue{SymptomCluster: "need a cleaning appointment", Urgency: triage.UrgencyLow}

	intent := triage.IntentResult{
		Issues:                 []triage.ClinicalIssue{pain, cleaning},
		OverallUrgency:         triage.UrgencyHigh,
		RequiresClarification:  true,
		ClarificationQuestions: []string{triage.QuestionFor(triage.ElementLocation)},
		ActionType:             triage.ActionClarify,
		PatientSentiment:       triage.SentimentAnxious,
		CompletionStatus:       triage.CompletionIncomplete,
	}

	plan, err := o.BuildPlan(context.Background(), "t1", intent, schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.SuggestedAction != PlanClarify {
		t.Fatalf("suggested action = %q, want CLARIFY", plan.SuggestedAction)
	}
	if plan.OverallUrgency != triage.UrgencyHigh {
		t.Fatalf("urgency = %q, want HIGH", plan.OverallUrgency)
	}
	if plan.Clarification == nil || len(plan.Clarification.Issues) != 2 {
		t.Fatalf("clarification = %+v, want an entry per issue", plan.Clarification)
	}

	first := plan.Clarification.Issues[0]
	if first.IssueID != "issue_1" || first.Status != triage.CompletionIncomplete {
		t.Fatalf("first entry = %+v, want incomplete issue_1", first)
	}
	if len(first.MissingFields) != 2 {
		t.Fatalf("missing fields = %d, want 2", len(first.MissingFields))
	}
	if first.MissingFields[0].FieldKey != triage.ElementLocation || first.MissingFields[0].Type != fieldText {
		t.Fatalf("location field = %+v", first.MissingFields[0])
	}
	if first.MissingFields[1].FieldKey != triage.ElementDuration || len(first.MissingFields[1].Options) != 5 {
		t.Fatalf("duration field = %+v", first.MissingFields[1])
	}

	second := plan.Clarification.Issues[1]
	if second.IssueID != "issue_2" || second.Status != triage.CompletionComplete {
		t.Fatalf("second entry = %+v, want complete issue_2", second)
	}
	if len(second.MissingFields) != 0 {
		t.Fatalf("complete issue carries %d missing fields", len(second.MissingFields))
	}

	if len(plan.ClarificationQuestions) != 1 {
		t.Fatalf("questions = %v, want passthrough", plan.ClarificationQuestions)
	}
}

func TestBuildPlanRoutesSingleIssue(t *testing.T) {
	dir := &fakeDirectory{
		procs: map[string]*model.Procedure{ConditionRootCanal: rootCanalProc()},
		specs: specNames(),
	}
	router := &fakeRouter{results: map[int]*schedule.TierResult{11: singleTier(1, "c1", "c2")}}
	o := newTestOrchestrator(dir, router, &fakeEmergency{})

	plan, err := o.BuildPlan(context.Background(), "t1", routedIntent(pulpalIssue()), schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.SuggestedAction != PlanOrchestrate {
		t.Fatalf("suggested action = %q, want ORCHESTRATE", plan.SuggestedAction)
	}
	if len(plan.RoutedIssues) != 1 {
		t.Fatalf("routed = %d, want 1", len(plan.RoutedIssues))
	}

	ri := plan.RoutedIssues[0]
	if ri.ProcedureID == nil || *ri.ProcedureID != 11 {
		t.Fatalf("procedure id = %v, want 11", ri.ProcedureID)
	}
	if ri.ProcedureName != "Endodontic Evaluation (Microscope)" {
		t.Fatalf("procedure name = %q", ri.ProcedureName)
	}
	if ri.SpecialistType != "Endodontist" {
		t.Fatalf("specialist = %q, want Endodontist", ri.SpecialistType)
	}
	if ri.AppointmentType != appointmentExtendedEval {
		t.Fatalf("appointment type = %q, want extended evaluation", ri.AppointmentType)
	}
	if ri.DurationMinutes != 90 || ri.ConsultMinutes != 20 {
		t.Fatalf("durations = %d/%d, want 90/20", ri.DurationMinutes, ri.ConsultMinutes)
	}
	if ri.FallbackTier != 1 || ri.Slots == nil || ri.Slots.TotalFound != 2 {
		t.Fatalf("slots = %+v", ri.Slots)
	}
	if len(ri.ReasoningTriggers) != 2 || ri.ReasoningTriggers[0] != "Severe pain" {
		t.Fatalf("triggers = %v", ri.ReasoningTriggers)
	}
	if plan.CombinedVisitPossible {
		t.Fatal("single issue cannot be a combined visit")
	}
	if plan.OverallUrgency != triage.UrgencyHigh {
		t.Fatalf("urgency = %q, want HIGH", plan.OverallUrgency)
	}
	if len(router.calls) != 1 || router.calls[0].needsSedation {
		t.Fatalf("router calls = %+v, want one unsedated search", router.calls)
	}
}

func TestBuildPlanSedationFollowsProcedure(t *testing.T) {
	dir := &fakeDirectory{
		procs: map[string]*model.Procedure{ConditionWisdomExtraction: wisdomProc()},
		specs: specNames(),
	}
	router := &fakeRouter{results: map[int]*schedule.TierResult{12: singleTier(1, "c1")}}
	o := newTestOrchestrator(dir, router, &fakeEmergency{})

	plan, err := o.BuildPlan(context.Background(), "t1", routedIntent(wisdomIssue()), schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	ri := plan.RoutedIssues[0]
	if !ri.RequiresSedation || !ri.RequiresAnesthetist {
		t.Fatalf("sedation flags = %v/%v, want both set", ri.RequiresSedation, ri.RequiresAnesthetist)
	}
	if ri.SpecialistType != "Oral Surgeon" {
		t.Fatalf("specialist = %q, want Oral Surgeon", ri.SpecialistType)
	}
	if len(router.calls) != 1 || !router.calls[0].needsSedation {
		t.Fatalf("router calls = %+v, want sedated search", router.calls)
	}
}

func TestBuildPlanCombinedVisit(t *testing.T) {
	tests := []struct {
		name    string
		first   *schedule.TierResult
		second  *schedule.TierResult
		combine bool
	}{
		{"shared clinic", singleTier(1, "c1", "c2"), singleTier(1, "c2"), true},
		{"disjoint clinics", singleTier(1, "c1"), singleTier(1, "c3"), false},
		{
			"combo slots count toward the shared clinic",
			&schedule.TierResult{
				Tier: 1, TierLabel: "Primary Results", TotalFound: 1,
				ComboSlots: []schedule.SlotOption{{Type: schedule.SlotCombo, Date: "2026-09-01", Time: "09:00", ClinicID: "c5"}},
			},
			singleTier(1, "c5"),
			true,
		},
		{"one issue without slots", singleTier(1, "c1"), singleTier(0), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := &fakeDirectory{
				procs: map[string]*model.Procedure{
					ConditionRootCanal:        rootCanalProc(),
					ConditionWisdomExtraction: wisdomProc(),
				},
				specs: specNames(),
			}
			router := &fakeRouter{results: map[int]*schedule.TierResult{11: tc.first, 12: tc.second}}
			o := newTestOrchestrator(dir, router, &fakeEmergency{})

			plan, err := o.BuildPlan(context.Background(), "t1", routedIntent(pulpalIssue(), wisdomIssue()), schedule.Preferences{})
			if err != nil {
				t.Fatalf("BuildPlan: %v", err)
			}
			if plan.CombinedVisitPossible != tc.combine {
				t.Fatalf("combined = %v, want %v", plan.CombinedVisitPossible, tc.combine)
			}
			if plan.SuggestedAction != PlanOrchestrate {
				t.Fatalf("suggested action = %q, want ORCHESTRATE", plan.SuggestedAction)
			}
			if plan.OverallUrgency != triage.UrgencyHigh {
				t.Fatalf("urgency = %q, want HIGH fold", plan.OverallUrgency)
			}
		})
	}
}

func TestBuildPlanResolutionMissDegrades(t *testing.T) {
	dir := &fakeDirectory{specs: specNames()}
	router := &fakeRouter{}
	o := newTestOrchestrator(dir, router, &fakeEmergency{})

	plan, err := o.BuildPlan(context.Background(), "t1", routedIntent(pulpalIssue()), schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.SuggestedAction != PlanClarify {
		t.Fatalf("suggested action = %q, want CLARIFY on failed resolution", plan.SuggestedAction)
	}

	ri := plan.RoutedIssues[0]
	if ri.ProcedureID != nil {
		t.Fatalf("procedure id = %v, want nil", ri.ProcedureID)
	}
	if ri.Error != "Procedure resolution failed" || ri.FallbackNote != ri.Error {
		t.Fatalf("error = %q note = %q", ri.Error, ri.FallbackNote)
	}
	if ri.ProcedureName != "Endodontic Evaluation (Microscope)" {
		t.Fatalf("procedure name = %q, want display label without a procedure", ri.ProcedureName)
	}
	if ri.SpecialistType != defaultSpecialistType || ri.DurationMinutes != defaultDurationMin {
		t.Fatalf("defaults = %q/%d", ri.SpecialistType, ri.DurationMinutes)
	}
	if len(router.calls) != 0 {
		t.Fatal("router must not run without a procedure")
	}
}

func TestBuildPlanRouterErrorAborts(t *testing.T) {
	dir := &fakeDirectory{
		procs: map[string]*model.Procedure{ConditionRootCanal: rootCanalProc()},
		specs: specNames(),
	}
	router := &fakeRouter{err: errors.New("pool closed")}
	o := newTestOrchestrator(dir, router, &fakeEmergency{})

	_, err := o.BuildPlan(context.Background(), "t1", routedIntent(pulpalIssue()), schedule.Preferences{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "slot search") {
		t.Fatalf("error = %v, want slot search wrap", err)
	}
}

func TestBuildPlanEmptyRouteFallsBackToClarify(t *testing.T) {
	o := newTestOrchestrator(&fakeDirectory{}, &fakeRouter{}, &fakeEmergency{})

	plan, err := o.BuildPlan(context.Background(), "t1", routedIntent(), schedule.Preferences{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.SuggestedAction != PlanClarify {
		t.Fatalf("suggested action = %q, want CLARIFY for an empty route", plan.SuggestedAction)
	}
	if len(plan.RoutedIssues) != 0 {
		t.Fatalf("routed = %d, want none", len(plan.RoutedIssues))
	}
}
