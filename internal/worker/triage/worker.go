// Package triageworker drains the triage queue: each job is one patient turn
// whose LLM latency the HTTP surface refused to absorb. The worker runs the
// same orchestration pipeline as the synchronous path and parks the result in
// the job store for the client to poll.
package triageworker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bronn-dev/dentalbridge/cmd/mainconfig"
	"github.com/bronn-dev/dentalbridge/internal/app/bootstrap"
	"github.com/bronn-dev/dentalbridge/internal/compliance"
	appconfig "github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/dispatch"
	"github.com/bronn-dev/dentalbridge/internal/events"
	"github.com/bronn-dev/dentalbridge/internal/jobstore"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/orchestrator"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// Planner runs one orchestration turn.
type Planner interface {
	Orchestrate(ctx context.Context, req orchestrator.Request) (*orchestrator.OrchestrationPlan, error)
}

// JobSink records job outcomes.
type JobSink interface {
	MarkCompleted(ctx context.Context, jobID string, plan *orchestrator.OrchestrationPlan) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
}

type outboxAppender interface {
	Append(ctx context.Context, exec events.Execer, tenantID string, evt events.Event) (uuid.UUID, error)
}

type auditRecorder interface {
	Record(ctx context.Context, event model.AuditEvent) error
}

// NewHandler builds the dispatch handler for queued triage turns. Escalated
// plans leave the same paper trail as the synchronous path: an outbox event
// for the ops alert and an audit row. outbox and audit may be nil.
func NewHandler(planner Planner, jobs JobSink, outbox outboxAppender, audit auditRecorder, logger *logging.Logger) dispatch.Handler {
	if planner == nil {
		panic("triageworker: planner required")
	}
	if jobs == nil {
		panic("triageworker: job sink required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(ctx context.Context, job dispatch.Job) error {
		plan, err := planner.Orchestrate(ctx, job.Request)
		if err != nil {
			logger.Error("triage turn failed", "job_id", job.ID, "error", err)
			if markErr := jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
				return fmt.Errorf("triageworker: mark failed: %w", markErr)
			}
			// The failure is recorded; do not redeliver.
			return nil
		}

		if plan.SuggestedAction == orchestrator.PlanEscalate {
			recordEscalation(ctx, job.Request.TenantID, plan, outbox, audit, logger)
		}

		if err := jobs.MarkCompleted(ctx, job.ID, plan); err != nil {
			return fmt.Errorf("triageworker: mark completed: %w", err)
		}
		logger.Info("triage turn completed", "job_id", job.ID, "action", plan.SuggestedAction)
		return nil
	}
}

func recordEscalation(ctx context.Context, tenantID string, plan *orchestrator.OrchestrationPlan, outbox outboxAppender, audit auditRecorder, logger *logging.Logger) {
	if outbox != nil {
		evt := events.TriageEscalated{
			TenantID: tenantID,
			Urgency:  string(plan.OverallUrgency),
			HasSlot:  plan.EmergencySlots != nil,
		}
		if slot := plan.EmergencySlots; slot != nil {
			evt.SlotDate = slot.Date
			evt.SlotTime = slot.Time
			evt.SlotClinicID = slot.ClinicID
		}
		if _, err := outbox.Append(ctx, nil, tenantID, evt); err != nil {
			logger.Error("escalation event append failed", "error", err, "tenant_id", tenantID)
		}
	}
	if audit != nil {
		err := audit.Record(ctx, model.AuditEvent{
			TenantID:   tenantID,
			Action:     compliance.ActionTriageEscalated,
			EntityType: "triage_turn",
			Details:    map[string]any{"urgency": plan.OverallUrgency, "has_slot": plan.EmergencySlots != nil},
		})
		if err != nil {
			logger.Error("escalation audit failed", "error", err, "tenant_id", tenantID)
		}
	}
}

// Run starts the SQS-backed triage worker and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("triageworker: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue {
		return fmt.Errorf("triageworker: cannot run when USE_MEMORY_QUEUE=true; the API process runs inline workers instead")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("triageworker: DATABASE_URL required")
	}
	if cfg.TriageQueueURL == "" {
		return fmt.Errorf("triageworker: TRIAGE_QUEUE_URL required")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("triageworker: connect postgres: %w", err)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("triageworker: load aws config: %w", err)
	}

	planner, _, err := bootstrap.BuildTriagePipeline(ctx, cfg, pool, awsCfg, logger)
	if err != nil {
		return err
	}

	queue := dispatch.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TriageQueueURL)
	jobs := jobstore.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.TriageJobsTable, logger)
	outbox := events.NewOutboxStore(pool)
	audit := compliance.NewAuditService(pool, logger)

	handler := NewHandler(planner, jobs, outbox, audit, logger)
	workers := dispatch.NewPool(queue, handler, cfg.WorkerCount, logger)

	logger.Info("triage worker started", "workers", cfg.WorkerCount, "queue", cfg.TriageQueueURL)
	workers.Run(ctx)
	logger.Info("triage worker stopped")
	return nil
}
