package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

const (
	receiveBatch = 5
	receiveWait  = 10
)

// Handler processes one decoded job. Returning an error leaves the message
// on the queue for redelivery (SQS) or drops it (memory queue).
type Handler func(ctx context.Context, job Job) error

// Pool runs a fixed set of workers draining the queue.
type Pool struct {
	queue   Queue
	handler Handler
	workers int
	logger  *logging.Logger
}

// NewPool builds a worker pool.
func NewPool(queue Queue, handler Handler, workers int, logger *logging.Logger) *Pool {
	if queue == nil {
		panic("dispatch: queue cannot be nil")
	}
	if handler == nil {
		panic("dispatch: handler cannot be nil")
	}
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{queue: queue, handler: handler, workers: workers, logger: logger}
}

// Run blocks until the context is cancelled, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	logger := p.logger.With("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := p.queue.Receive(ctx, receiveBatch, receiveWait)
		if err != nil {
			if ctx.Err() != nil || err == ErrDispatcherClosed {
				return
			}
			logger.Error("queue receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			p.process(ctx, logger, msg)
		}
	}
}

func (p *Pool) process(ctx context.Context, logger *logging.Logger, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job handler panicked", "panic", r, "message_id", msg.ID)
		}
	}()

	job, err := DecodeJob(msg.Body)
	if err != nil {
		logger.Error("undecodable job dropped", "error", err, "message_id", msg.ID)
		// Deleting poison messages keeps them from looping forever.
		_ = p.queue.Delete(ctx, msg.ReceiptHandle)
		return
	}

	if err := p.handler(ctx, job); err != nil {
		logger.Error("job failed", "error", err, "job_id", job.ID)
		return
	}

	if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		logger.Error("message delete failed", "error", err, "message_id", msg.ID)
	}
	logger.Debug("job processed", "job_id", job.ID)
}
