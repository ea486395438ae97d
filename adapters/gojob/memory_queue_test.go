package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-paychain/core"
)

func TestMemoryQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(context.Background(), DispatchMessage(3))
	}()

	delivery, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if delivery.Message().JobID != JobIDOutboxDispatch {
		t.Fatalf("unexpected job %q", delivery.Message().JobID)
	}
}

func TestMemoryQueue_DequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryQueue_NackRequeuesAndDeadLetters(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, LifecycleMessage(core.LifecycleEvent{ID: "evt-1", Name: core.EventPaymentCreated}))

	delivery, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := delivery.Nack(ctx, DefaultRetryPolicy().NormalizeAttempt(queueNack(0), 1)); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected immediate requeue, got %d", q.Len())
	}

	delivery, _ = q.Dequeue(ctx)
	if err := delivery.Nack(ctx, queueDeadLetter("boom")); err != nil {
		t.Fatalf("nack: %v", err)
	}
	letters := q.DeadLetters()
	if len(letters) != 1 || letters[0].Reason != "boom" {
		t.Fatalf("expected one dead letter, got %#v", letters)
	}
}

func TestMemoryQueue_DelayedRequeue(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = q.Enqueue(ctx, DispatchMessage(1))
	delivery, _ := q.Dequeue(ctx)
	if err := delivery.Nack(ctx, queueNack(15*time.Millisecond)); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected delayed message to be held back")
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("expected delayed message to arrive, got %v", err)
	}
}

type phaseHook struct {
	mu     sync.Mutex
	phases []string
}

func (h *phaseHook) add(phase string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases = append(h.phases, phase)
}

func (h *phaseHook) OnStart(context.Context, worker.Event)   { h.add("start") }
func (h *phaseHook) OnSuccess(context.Context, worker.Event) { h.add("success") }
func (h *phaseHook) OnFailure(context.Context, worker.Event) { h.add("failure") }
func (h *phaseHook) OnRetry(context.Context, worker.Event)   { h.add("retry") }

func (h *phaseHook) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.phases...)
}

func TestConsumer_RunDrainsQueueAndNotifiesHooks(t *testing.T) {
	q := NewMemoryQueue()
	sink := &recordingSink{}
	hook := &phaseHook{}
	consumer := NewConsumer(q, WithPublishSink(sink), WithHooks(hook))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(ctx, 5*time.Millisecond)
	}()

	for _, id := range []string{"evt-a", "evt-b"} {
		if err := NewEventSink(q).Publish(context.Background(), core.LifecycleEvent{ID: id, Name: core.EventPaymentCreated}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(sink.snapshot()) < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := sink.snapshot(); len(got) != 2 || got[0].ID != "evt-a" || got[1].ID != "evt-b" {
		t.Fatalf("expected events in order, got %#v", got)
	}
	phases := hook.snapshot()
	if len(phases) != 4 || phases[0] != "start" || phases[1] != "success" {
		t.Fatalf("unexpected hook phases %v", phases)
	}
}

func TestConsumer_HooksSeeRetryThenFailure(t *testing.T) {
	failure := errors.New("sink down")
	q := NewMemoryQueue()
	hook := &phaseHook{}
	consumer := NewConsumer(q,
		WithPublishSink(&recordingSink{err: failure}),
		WithHooks(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true}),
	)
	_ = q.Enqueue(context.Background(), LifecycleMessage(core.LifecycleEvent{ID: "evt-z", Name: core.EventPaymentCreated}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := consumer.ProcessNext(ctx); !errors.Is(err, failure) {
		t.Fatalf("expected failure, got %v", err)
	}
	if err := consumer.ProcessNext(ctx); !errors.Is(err, failure) {
		t.Fatalf("expected failure, got %v", err)
	}
	phases := hook.snapshot()
	want := []string{"start", "retry", "start", "failure"}
	if len(phases) != len(want) {
		t.Fatalf("expected %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, phases)
		}
	}
	if len(q.DeadLetters()) != 1 {
		t.Fatalf("expected message to be dead-lettered")
	}
}

func queueNack(delay time.Duration) queue.NackOptions {
	return queue.NackOptions{Delay: delay, Requeue: true}
}

func queueDeadLetter(reason string) queue.NackOptions {
	return queue.NackOptions{DeadLetter: true, Reason: reason}
}
