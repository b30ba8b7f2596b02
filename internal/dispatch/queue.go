// Package dispatch moves triage turns through a work queue so the HTTP
// surface can answer immediately and workers absorb the LLM latency. SQS
// backs the queue in production; a channel-backed queue serves development
// and tests.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bronn-dev/dentalbridge/internal/orchestrator"
)

// ErrDispatcherClosed reports a send to a queue that has been shut down.
var ErrDispatcherClosed = errors.New("dispatch: dispatcher closed")

// Queue is the transport surface the dispatcher consumes.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one in-flight queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Job is one queued patient turn.
type Job struct {
	ID      string               `json:"id"`
	Request orchestrator.Request `json:"request"`
}

// EncodeJob serializes a job, assigning an id when absent.
func EncodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("dispatch: encode job: %w", err)
	}
	return job, string(body), nil
}

// DecodeJob parses a queue message body.
func DecodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("dispatch: decode job: %w", err)
	}
	if job.ID == "" {
		return Job{}, fmt.Errorf("dispatch: job without id")
	}
	return job, nil
}
