package gojob

import (
	"context"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// MemoryQueue is an in-process go-job queue for single-node deployments.
// Dequeue blocks until a message is ready or ctx ends. Delayed nacks are
// requeued once their delay elapses.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       []*job.ExecutionMessage
	deadLetters []DeadLetter
	signal      chan struct{}
	closed      bool
}

type DeadLetter struct {
	Message *job.ExecutionMessage
	Reason  string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: message is required")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("gojob: queue is closed")
	}
	q.ready = append(q.ready, msg)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, fmt.Errorf("gojob: queue is closed")
		}
		if len(q.ready) > 0 {
			next := q.ready[0]
			q.ready = q.ready[1:]
			q.mu.Unlock()
			return &memoryDelivery{queue: q, msg: next}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.deadLetters...)
}

// Close stops the queue; pending messages are dropped.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.ready = nil
	q.mu.Unlock()
	q.wake()
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) deadLetter(msg *job.ExecutionMessage, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, DeadLetter{Message: msg, Reason: reason})
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error { return nil }

func (d *memoryDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if opts.DeadLetter || !opts.Requeue {
		d.queue.deadLetter(d.msg, opts.Reason)
		return nil
	}
	if opts.Delay <= 0 {
		return d.queue.Enqueue(ctx, d.msg)
	}
	msg := d.msg
	time.AfterFunc(opts.Delay, func() {
		_ = d.queue.Enqueue(context.Background(), msg)
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
)
