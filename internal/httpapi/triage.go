package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bronn-dev/dentalbridge/internal/compliance"
	"github.com/bronn-dev/dentalbridge/internal/dispatch"
	"github.com/bronn-dev/dentalbridge/internal/events"
	"github.com/bronn-dev/dentalbridge/internal/jobstore"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/orchestrator"
	"github.com/bronn-dev/dentalbridge/internal/tenancy"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type planner interface {
	Orchestrate(ctx context.Context, req orchestrator.Request) (*orchestrator.OrchestrationPlan, error)
}

type triageJobs interface {
	PutPending(ctx context.Context, jobID, tenantID string) error
	Get(ctx context.Context, jobID string) (*jobstore.Record, error)
}

type outboxAppender interface {
	Append(ctx context.Context, exec events.Execer, tenantID string, evt events.Event) (uuid.UUID, error)
}

type auditRecorder interface {
	Record(ctx context.Context, event model.AuditEvent) error
}

// TriageHandler serves the chat intake surface. With a queue configured,
// turns run asynchronously and clients poll the job endpoint; without one the
// turn runs inline and the plan comes back on the same response.
type TriageHandler struct {
	planner planner
	jobs    triageJobs
	queue   dispatch.Queue
	outbox  outboxAppender
	audit   auditRecorder
	logger  *logging.Logger
}

// NewTriageHandler wires the triage surface. A nil queue selects synchronous
// mode; jobs may be nil only when the queue is too.
func NewTriageHandler(p planner, jobs triageJobs, queue dispatch.Queue, outbox outboxAppender, audit auditRecorder, logger *logging.Logger) *TriageHandler {
	if p == nil {
		panic("httpapi: planner required")
	}
	if queue != nil && jobs == nil {
		panic("httpapi: job store required with a queue")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TriageHandler{planner: p, jobs: jobs, queue: queue, outbox: outbox, audit: audit, logger: logger}
}

// Analyze runs one patient turn.
// POST /v1/triage/analyze
func (h *TriageHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TenantID != "" {
		if _, err := tenancy.ParseTenantID(req.TenantID); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "malformed tenant id")
			return
		}
	}

	if h.queue == nil {
		plan, err := h.planner.Orchestrate(r.Context(), req)
		if err != nil {
			h.logger.Error("triage turn failed", "error", err, "tenant_id", req.TenantID)
			writeError(w, http.StatusInternalServerError, "triage failed")
			return
		}
		h.recordEscalation(r.Context(), req.TenantID, plan)
		writeJSON(w, http.StatusOK, plan)
		return
	}

	job, body, err := dispatch.EncodeJob(dispatch.Job{Request: req})
	if err != nil {
		h.logger.Error("job encode failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not enqueue turn")
		return
	}
	if err := h.jobs.PutPending(r.Context(), job.ID, req.TenantID); err != nil {
		h.logger.Error("job record failed", "error", err, "job_id", job.ID)
		writeError(w, http.StatusInternalServerError, "could not enqueue turn")
		return
	}
	if err := h.queue.Send(r.Context(), body); err != nil {
		h.logger.Error("job enqueue failed", "error", err, "job_id", job.ID)
		writeError(w, http.StatusInternalServerError, "could not enqueue turn")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(jobstore.StatusPending),
	})
}

// JobStatus polls an asynchronous turn.
// GET /v1/triage/jobs/{jobID}
func (h *TriageHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotFound, "asynchronous triage not enabled")
		return
	}
	jobID := chi.URLParam(r, "jobID")
	rec, err := h.jobs.Get(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	if err != nil {
		h.logger.Error("job lookup failed", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// recordEscalation persists the paper trail of an ESCALATE plan: an outbox
// event for the ops alert and an audit row. Failures log and move on; the
// patient-facing response must not depend on either.
func (h *TriageHandler) recordEscalation(ctx context.Context, tenantID string, plan *orchestrator.OrchestrationPlan) {
	if plan == nil || plan.SuggestedAction != orchestrator.PlanEscalate {
		return
	}
	evt := events.TriageEscalated{
		TenantID: tenantID,
		Urgency:  string(plan.OverallUrgency),
		HasSlot:  plan.EmergencySlots != nil,
	}
	if plan.EmergencySlots != nil {
		evt.SlotDate = plan.EmergencySlots.Date
		evt.SlotTime = plan.EmergencySlots.Time
		evt.SlotClinicID = plan.EmergencySlots.ClinicID
	}
	if h.outbox != nil {
		if _, err := h.outbox.Append(ctx, nil, tenantID, evt); err != nil {
			h.logger.Error("escalation event append failed", "error", err, "tenant_id", tenantID)
		}
	}
	if h.audit != nil {
		if err := h.audit.Record(ctx, model.AuditEvent{
			TenantID:   tenantID,
			Action:     compliance.ActionTriageEscalated,
			EntityType: "triage_turn",
			EntityID:   tenantID,
			Details:    map[string]any{"urgency": plan.OverallUrgency, "has_slot": plan.EmergencySlots != nil},
		}); err != nil {
			h.logger.Error("escalation audit failed", "error", err, "tenant_id", tenantID)
		}
	}
}
