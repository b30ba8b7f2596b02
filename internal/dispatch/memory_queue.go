package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a Queue backed by a buffered channel. It serves development
// (USE_MEMORY_QUEUE) and tests; delivery is at-most-once.
type MemoryQueue struct {
	ch     chan Message
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{ch: make(chan Message, buffer)}
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrDispatcherClosed
	}
	q.mu.Unlock()

	msg := Message{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message arrives, ctx is done, or waitSeconds
// elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg, ok := <-q.ch:
		if !ok {
			return nil, ErrDispatcherClosed
		}
		return q.collect(msg, maxMessages), nil
	}
}

func (q *MemoryQueue) collect(first Message, maxMessages int) []Message {
	messages := []Message{first}
	for len(messages) < maxMessages {
		select {
		case msg, ok := <-q.ch:
			if !ok {
				return messages
			}
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}

// Delete is a no-op; channel delivery already consumed the message.
func (q *MemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	return nil
}

// Close stops the queue; subsequent sends fail with ErrDispatcherClosed.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
