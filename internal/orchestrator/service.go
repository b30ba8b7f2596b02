package orchestrator

import (
	"context"
	"fmt"

	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/internal/tenancy"
	"github.com/bronn-dev/dentalbridge/internal/triage"
)

type intentAnalyzer interface {
	Analyze(ctx context.Context, text string, history []triage.ChatMessage, answers map[string]any, prior []triage.ClinicalIssue) triage.IntentResult
}

// Request is one patient turn. PriorIssues carries the merged state from
// earlier turns; an empty TenantID means a pre-routing global patient, which
// widens procedure resolution only.
type Request struct {
	Text              string                 `json:"text"`
	History           []triage.ChatMessage   `json:"history"`
	StructuredAnswers map[string]any         `json:"structured_answers"`
	PriorIssues       []triage.ClinicalIssue `json:"prior_issues"`
	TenantID          string                 `json:"tenant_id"`
	PreferredClinicID string                 `json:"preferred_clinic_id"`
	PreferredDoctorID string                 `json:"preferred_doctor_id"`
}

// Service is the single entry point of the triage-to-schedule pipeline:
// analyze the turn, then build the plan the UI acts on.
type Service struct {
	analyzer intentAnalyzer
	orch     *Orchestrator
}

// NewService composes the analyzer and the plan builder.
func NewService(analyzer intentAnalyzer, orch *Orchestrator) *Service {
	if analyzer == nil {
		panic("orchestrator: nil analyzer")
	}
	if orch == nil {
		panic("orchestrator: nil orchestrator")
	}
	return &Service{analyzer: analyzer, orch: orch}
}

// Orchestrate runs one turn end to end. A malformed tenant id is the only
// input error; everything else degrades inside the pipeline.
func (s *Service) Orchestrate(ctx context.Context, req Request) (*OrchestrationPlan, error) {
	if req.TenantID != "" {
		if _, err := tenancy.ParseTenantID(req.TenantID); err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	intent := s.analyzer.Analyze(ctx, req.Text, req.History, req.StructuredAnswers, req.PriorIssues)

	prefs := schedule.Preferences{
		ClinicID: req.PreferredClinicID,
		DoctorID: req.PreferredDoctorID,
	}
	if prefs.ClinicID == "" {
		prefs.ClinicID = req.TenantID
	}
	return s.orch.BuildPlan(ctx, req.TenantID, intent, prefs)
}
