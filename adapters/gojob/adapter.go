package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-paychain/core"
)

const (
	JobIDLifecyclePublish = "paychain.lifecycle.publish"
	JobIDOutboxDispatch   = "paychain.outbox.dispatch"
)

const (
	dedupDrop  = job.DeduplicationPolicy("drop")
	dedupMerge = job.DeduplicationPolicy("merge")
)

// RetryPolicy bounds how often and how late a failed delivery is retried.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     core.DefaultOutboxMaxAttempts,
		BaseDelay:       core.DefaultOutboxInitialBackoff,
		MaxDelay:        core.DefaultOutboxMaxBackoff,
		DeadLetterOnMax: true,
	}
}

// Backoff doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// LifecycleMessage renders a committed lifecycle event as a publish job.
// The event id doubles as the idempotency key so redelivered outbox rows
// collapse into one job.
func LifecycleMessage(event core.LifecycleEvent) *job.ExecutionMessage {
	occurredAt := ""
	if !event.OccurredAt.IsZero() {
		occurredAt = event.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDLifecyclePublish,
		ScriptPath: strings.TrimSpace(event.Name),
		Parameters: map[string]any{
			"event_id":     event.ID,
			"name":         event.Name,
			"aggregate_id": event.AggregateID,
			"payload":      copyAnyMap(event.Payload),
			"metadata":     copyAnyMap(event.Metadata),
			"occurred_at":  occurredAt,
		},
		IdempotencyKey: strings.TrimSpace(event.ID),
		DedupPolicy:    dedupDrop,
	}
}

// EventFromMessage reverses LifecycleMessage.
func EventFromMessage(msg *job.ExecutionMessage) (core.LifecycleEvent, error) {
	if msg == nil {
		return core.LifecycleEvent{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDLifecyclePublish {
		return core.LifecycleEvent{}, fmt.Errorf("gojob: job %q is not a lifecycle publish", msg.JobID)
	}
	params := msg.Parameters
	event := core.LifecycleEvent{
		ID:          stringParam(params, "event_id"),
		Name:        stringParam(params, "name"),
		AggregateID: stringParam(params, "aggregate_id"),
		Payload:     mapParam(params, "payload"),
		Metadata:    mapParam(params, "metadata"),
	}
	if event.ID == "" {
		event.ID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if event.Name == "" {
		event.Name = strings.TrimSpace(msg.ScriptPath)
	}
	if event.ID == "" || event.Name == "" {
		return core.LifecycleEvent{}, fmt.Errorf("gojob: lifecycle message is missing event id or name")
	}
	if raw := stringParam(params, "occurred_at"); raw != "" {
		occurredAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return core.LifecycleEvent{}, fmt.Errorf("gojob: lifecycle occurred_at: %w", err)
		}
		event.OccurredAt = occurredAt.UTC()
	}
	return event, nil
}

// DispatchMessage asks a worker to drain one outbox batch.
func DispatchMessage(batchSize int) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDOutboxDispatch,
		ScriptPath: JobIDOutboxDispatch,
		Parameters: map[string]any{
			"batch_size": batchSize,
		},
		DedupPolicy: dedupMerge,
	}
}

// BatchSizeFromMessage tolerates the numeric shapes a queue backend may
// hand back after serialization.
func BatchSizeFromMessage(msg *job.ExecutionMessage) int {
	if msg == nil {
		return 0
	}
	switch value := msg.Parameters["batch_size"].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case interface{ Int64() (int64, error) }:
		parsed, err := value.Int64()
		if err != nil {
			return 0
		}
		return int(parsed)
	default:
		return 0
	}
}

// EventSink enqueues lifecycle events instead of delivering them inline.
// Handing it to the outbox dispatcher moves delivery onto go-job workers.
type EventSink struct {
	enqueuer queue.Enqueuer
}

func NewEventSink(enqueuer queue.Enqueuer) *EventSink {
	return &EventSink{enqueuer: enqueuer}
}

func (s *EventSink) Publish(ctx context.Context, event core.LifecycleEvent) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("gojob: lifecycle event id is required")
	}
	return s.enqueuer.Enqueue(ctx, LifecycleMessage(event))
}

// ScheduleDispatch enqueues one outbox drain job.
func ScheduleDispatch(ctx context.Context, enqueuer queue.Enqueuer, batchSize int) error {
	if enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if batchSize < 0 {
		return fmt.Errorf("gojob: batch size must be >= 0")
	}
	return enqueuer.Enqueue(ctx, DispatchMessage(batchSize))
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func mapParam(params map[string]any, key string) map[string]any {
	value, ok := params[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return copyAnyMap(value)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.EventSink = (*EventSink)(nil)
