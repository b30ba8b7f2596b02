package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bronn-dev/dentalbridge/internal/directory"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/internal/triage"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type procedureResolver interface {
	ResolveProcedure(ctx context.Context, conditionKey, tenantID string) (*model.Procedure, error)
	SpecializationNameByID(ctx context.Context, specID int) (string, error)
}

type slotRouter interface {
	RouteWithFallback(ctx context.Context, tenantID string, proc model.Procedure, needsSedation bool, prefs schedule.Preferences) (*schedule.TierResult, error)
}

type emergencyFinder interface {
	FindEarliest(ctx context.Context, tenantID string) (*schedule.SlotOption, error)
}

// Orchestrator turns an analyzer verdict into an actionable plan: emergency
// escalation, a clarification payload, or per-issue routed slots.
type Orchestrator struct {
	dir       procedureResolver
	router    slotRouter
	emergency emergencyFinder
	logger    *logging.Logger
}

func NewOrchestrator(dir procedureResolver, router slotRouter, emergency emergencyFinder, logger *logging.Logger) *Orchestrator {
	if dir == nil {
		panic("orchestrator: nil directory")
	}
	if router == nil {
		panic("orchestrator: nil router")
	}
	if emergency == nil {
		panic("orchestrator: nil emergency finder")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{dir: dir, router: router, emergency: emergency, logger: logger}
}

// BuildPlan runs the plan pipeline for one turn. Escalation and clarification
// short-circuit; only a ROUTE verdict with complete workups reaches the slot
// search. Per-issue procedure misses degrade into the issue's Error field,
// infrastructure failures abort the whole plan.
func (o *Orchestrator) BuildPlan(ctx context.Context, tenantID string, intent triage.IntentResult, prefs schedule.Preferences) (*OrchestrationPlan, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.build_plan")
	defer span.End()

	plan, err := o.buildPlan(ctx, tenantID, intent, prefs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("dentalbridge.plan.action", plan.SuggestedAction),
		attribute.Int("dentalbridge.plan.issues", len(plan.Issues)),
		attribute.Bool("dentalbridge.plan.emergency", plan.IsEmergency),
	)
	plansTotal.WithLabelValues(plan.SuggestedAction).Inc()
	return plan, nil
}

func (o *Orchestrator) buildPlan(ctx context.Context, tenantID string, intent triage.IntentResult, prefs schedule.Preferences) (*OrchestrationPlan, error) {
	// Safety override runs before anything else. Any emergency signal from
	// the analyzer wins regardless of the action it suggested.
	if intent.SafetyFlag || intent.OverallUrgency == triage.UrgencyEmergency || intent.ActionType == triage.ActionEscalate {
		return o.emergencyPlan(ctx, tenantID, intent), nil
	}

	switch intent.ActionType {
	case triage.ActionGreeting:
		return passthroughPlan(intent, PlanGreeting), nil
	case triage.ActionSmallTalk:
		return passthroughPlan(intent, PlanSmallTalk), nil
	}

	// The completeness gate already decided per issue; anything short of a
	// fully workup-complete ROUTE renders as clarification.
	if intent.ActionType != triage.ActionRoute || intent.CompletionStatus != triage.CompletionComplete {
		return o.clarifyPlan(intent), nil
	}

	routed := make([]RoutedIssue, 0, len(intent.Issues))
	for idx, issue := range intent.Issues {
		ri, err := o.routeIssue(ctx, tenantID, idx, issue, prefs)
		if err != nil {
			return nil, err
		}
		routed = append(routed, ri)
	}

	allSuccess := len(routed) > 0
	for _, ri := range routed {
		if ri.ProcedureID == nil {
			allSuccess = false
		}
	}

	canCombine := false
	if allSuccess && len(routed) > 1 {
		canCombine = combinedVisitPossible(routed)
	}

	urgencies := make([]triage.Urgency, 0, len(routed))
	for _, ri := range routed {
		urgencies = append(urgencies, ri.Urgency)
	}

	suggested := PlanOrchestrate
	if !allSuccess {
		suggested = PlanClarify
	}

	return &OrchestrationPlan{
		OverallUrgency:         triage.MaxUrgency(urgencies...),
		Issues:                 issuesOrEmpty(intent.Issues),
		RoutedIssues:           routed,
		SuggestedAction:        suggested,
		CombinedVisitPossible:  canCombine,
		PatientSentiment:       intent.PatientSentiment,
		ClarificationQuestions: []string{},
	}, nil
}

// routeIssue classifies one issue, resolves its procedure, and searches slots
// for it. A missing procedure is a soft failure recorded on the issue.
func (o *Orchestrator) routeIssue(ctx context.Context, tenantID string, idx int, issue triage.ClinicalIssue, prefs schedule.Preferences) (RoutedIssue, error) {
	conditionKey, triggers := ClassifyCondition(issue)
	issuesRoutedTotal.WithLabelValues(conditionKey).Inc()

	proc, err := o.dir.ResolveProcedure(ctx, conditionKey, tenantID)
	if err != nil {
		return RoutedIssue{}, fmt.Errorf("orchestrator: resolve procedure: %w", err)
	}

	ri := RoutedIssue{
		IssueIndex:        idx,
		SymptomCluster:    issue.SymptomCluster,
		Urgency:           issue.Urgency,
		SpecialistType:    defaultSpecialistType,
		ProcedureName:     directory.DisplayName(conditionKey, proc),
		AppointmentType:   appointmentConsultation,
		DurationMinutes:   defaultDurationMin,
		ReasoningTriggers: triggers,
		RequiresSedation:  issue.RequiresSedation,
	}

	if proc == nil {
		o.logger.Warn("procedure resolution failed",
			"tenant_id", tenantID, "issue_index", idx, "condition", conditionKey)
		ri.Error = "Procedure resolution failed"
		ri.FallbackNote = ri.Error
		return ri, nil
	}

	procID := proc.ProcID
	ri.ProcedureID = &procID
	if proc.BaseDurationMinutes > 0 {
		ri.DurationMinutes = proc.BaseDurationMinutes
	}
	ri.ConsultMinutes = proc.ConsultDurationMinutes
	ri.RoomCapability = proc.RequiredRoomCapability
	ri.RequiresSedation = issue.RequiresSedation || proc.RequiresAnesthetist
	ri.RequiresAnesthetist = proc.RequiresAnesthetist
	if ri.ConsultMinutes > 0 {
		ri.AppointmentType = appointmentExtendedEval
	}

	if proc.RequiredSpecID > 0 {
		name, err := o.dir.SpecializationNameByID(ctx, proc.RequiredSpecID)
		if err != nil {
			return RoutedIssue{}, fmt.Errorf("orchestrator: specialist lookup: %w", err)
		}
		if name != "" {
			ri.SpecialistType = name
		}
	}

	o.logger.Info("issue routed",
		"tenant_id", tenantID, "issue_index", idx, "condition", conditionKey,
		"procedure", proc.Name, "specialist", ri.SpecialistType, "triggers", triggers)

	slots, err := o.router.RouteWithFallback(ctx, tenantID, *proc, ri.RequiresSedation, prefs)
	if err != nil {
		return RoutedIssue{}, fmt.Errorf("orchestrator: slot search: %w", err)
	}
	ri.Slots = slots
	ri.FallbackTier = slots.Tier
	ri.FallbackNote = slots.Note
	return ri, nil
}

// emergencyPlan builds the ESCALATE response. It never fails: lookup errors
// are logged and the plan goes out without a slot rather than blocking the
// escalation message.
func (o *Orchestrator) emergencyPlan(ctx context.Context, tenantID string, intent triage.IntentResult) *OrchestrationPlan {
	var slot *schedule.SlotOption

	proc, err := o.dir.ResolveProcedure(ctx, ConditionEmergency, tenantID)
	if err != nil {
		o.logger.Error("emergency procedure lookup failed", "tenant_id", tenantID, "error", err)
	}
	if proc != nil {
		slot, err = o.emergency.FindEarliest(ctx, tenantID)
		if err != nil {
			o.logger.Error("emergency slot search failed", "tenant_id", tenantID, "error", err)
			slot = nil
		}
	}
	if slot == nil {
		o.logger.Warn("no emergency slot available", "tenant_id", tenantID)
	}

	return &OrchestrationPlan{
		IsEmergency:            true,
		OverallUrgency:         triage.UrgencyEmergency,
		Issues:                 issuesOrEmpty(intent.Issues),
		RoutedIssues:           []RoutedIssue{},
		SuggestedAction:        PlanEscalate,
		PatientSentiment:       intent.PatientSentiment,
		ClarificationQuestions: questionsOrEmpty(intent.ClarificationQuestions),
		EmergencySlots:         slot,
	}
}

func (o *Orchestrator) clarifyPlan(intent triage.IntentResult) *OrchestrationPlan {
	clar := &Clarification{Issues: make([]ClarificationIssue, 0, len(intent.Issues))}
	for i, issue := range intent.Issues {
		status := triage.CompletionComplete
		if len(issue.MissingClinicalElements) == 0 {
			missing := triage.AssessCompleteness(&issue)
			intent.Issues[i] = issue
			if len(missing) > 0 {
				status = triage.CompletionIncomplete
			}
		} else {
			status = triage.CompletionIncomplete
		}
		clar.Issues = append(clar.Issues, ClarificationIssue{
			IssueID:         fmt.Sprintf("issue_%d", i+1),
			Summary:         issue.SymptomCluster,
			MissingFields:   fieldDefsFor(issue.MissingClinicalElements),
			Status:          status,
			MissingElements: append([]string{}, issue.MissingClinicalElements...),
		})
	}

	return &OrchestrationPlan{
		OverallUrgency:         triage.MaxUrgency(intent.OverallUrgency),
		Issues:                 issuesOrEmpty(intent.Issues),
		RoutedIssues:           []RoutedIssue{},
		SuggestedAction:        PlanClarify,
		PatientSentiment:       intent.PatientSentiment,
		ClarificationQuestions: questionsOrEmpty(intent.ClarificationQuestions),
		Clarification:          clar,
	}
}

func passthroughPlan(intent triage.IntentResult, action string) *OrchestrationPlan {
	return &OrchestrationPlan{
		OverallUrgency:         triage.UrgencyLow,
		Issues:                 issuesOrEmpty(intent.Issues),
		RoutedIssues:           []RoutedIssue{},
		SuggestedAction:        action,
		PatientSentiment:       intent.PatientSentiment,
		ClarificationQuestions: questionsOrEmpty(intent.ClarificationQuestions),
	}
}

// combinedVisitPossible reports whether every issue has at least one slot at
// a clinic shared by all other issues.
func combinedVisitPossible(routed []RoutedIssue) bool {
	var shared map[string]bool
	for _, ri := range routed {
		if ri.Slots == nil {
			continue
		}
		set := make(map[string]bool)
		for _, s := range ri.Slots.SingleSlots {
			set[s.ClinicID] = true
		}
		for _, s := range ri.Slots.ComboSlots {
			set[s.ClinicID] = true
		}
		if shared == nil {
			shared = set
			continue
		}
		next := make(map[string]bool)
		for id := range shared {
			if set[id] {
				next[id] = true
			}
		}
		shared = next
	}
	return len(shared) > 0
}

func issuesOrEmpty(issues []triage.ClinicalIssue) []triage.ClinicalIssue {
	if issues == nil {
		return []triage.ClinicalIssue{}
	}
	return issues
}

func questionsOrEmpty(questions []string) []string {
	if questions == nil {
		return []string{}
	}
	return questions
}
