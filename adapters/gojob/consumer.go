package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-paychain/core"
)

const DefaultIdleWait = time.Second

var errUnsupportedJob = errors.New("gojob: unsupported job")

// Consumer pulls paychain jobs from a go-job queue. Dispatch jobs drain the
// outbox through Dispatcher; publish jobs hand the decoded event to Sink.
type Consumer struct {
	dequeuer   queue.Dequeuer
	dispatcher core.LifecycleDispatcher
	sink       core.EventSink
	policy     RetryPolicy
	logger     glog.Logger
	hooks      []worker.Hook
	now        func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type ConsumerOption func(*Consumer)

func WithLifecycleDispatcher(dispatcher core.LifecycleDispatcher) ConsumerOption {
	return func(c *Consumer) {
		c.dispatcher = dispatcher
	}
}

func WithPublishSink(sink core.EventSink) ConsumerOption {
	return func(c *Consumer) {
		c.sink = sink
	}
}

func WithRetryPolicy(policy RetryPolicy) ConsumerOption {
	return func(c *Consumer) {
		c.policy = policy
	}
}

func WithLogger(logger glog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHooks registers worker hooks notified on start, success, retry and
// terminal failure of every delivery.
func WithHooks(hooks ...worker.Hook) ConsumerOption {
	return func(c *Consumer) {
		for _, hook := range hooks {
			if hook != nil {
				c.hooks = append(c.hooks, hook)
			}
		}
	}
}

func NewConsumer(dequeuer queue.Dequeuer, opts ...ConsumerOption) *Consumer {
	consumer := &Consumer{
		dequeuer: dequeuer,
		policy:   DefaultRetryPolicy(),
		logger:   glog.Nop(),
		now:      time.Now,
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

// ProcessNext handles exactly one delivery. The returned error is the
// handler failure after the delivery was nacked; queue errors are returned
// before anything is acknowledged.
func (c *Consumer) ProcessNext(ctx context.Context) error {
	_, err := c.processNext(ctx)
	return err
}

// Run processes deliveries until ctx is cancelled. Queue errors pause the
// loop for idle; handler failures were already nacked and do not.
func (c *Consumer) Run(ctx context.Context, idle time.Duration) error {
	if idle <= 0 {
		idle = DefaultIdleWait
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		delivered, err := c.processNext(ctx)
		if err == nil || delivered {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WithContext(ctx).Debug("paychain queue idle", "error", err.Error())
		timer := time.NewTimer(idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Consumer) processNext(ctx context.Context) (bool, error) {
	if c == nil || c.dequeuer == nil {
		return false, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	msg := delivery.Message()
	if msg == nil {
		return true, delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "empty message"})
	}

	key := attemptKey(msg)
	startedAt := c.now()
	event := worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   c.currentAttempt(key) + 1,
		StartedAt: startedAt,
	}
	c.notify(ctx, "start", event)

	handleErr := c.handle(ctx, msg)
	event.Duration = c.now().Sub(startedAt)
	if handleErr == nil {
		c.clearAttempts(key)
		c.notify(ctx, "success", event)
		return true, delivery.Ack(ctx)
	}

	attempt := c.nextAttempt(key)
	opts := c.policy.NormalizeAttempt(queue.NackOptions{
		Delay:      c.policy.Backoff(attempt),
		Requeue:    true,
		DeadLetter: errors.Is(handleErr, errUnsupportedJob),
		Reason:     handleErr.Error(),
	}, attempt)
	if opts.DeadLetter || !opts.Requeue {
		c.clearAttempts(key)
	}
	event.Attempt = attempt
	event.Err = handleErr
	event.Delay = opts.Delay
	if opts.DeadLetter || !opts.Requeue {
		c.notify(ctx, "failure", event)
	} else {
		c.notify(ctx, "retry", event)
	}
	c.logger.WithContext(ctx).Warn("paychain job failed",
		"job_id", msg.JobID,
		"attempt", attempt,
		"dead_letter", opts.DeadLetter,
		"error", handleErr.Error(),
	)
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return true, fmt.Errorf("gojob: nack after %v: %w", handleErr, nackErr)
	}
	return true, handleErr
}

func (c *Consumer) notify(ctx context.Context, phase string, event worker.Event) {
	for _, hook := range c.hooks {
		switch phase {
		case "start":
			hook.OnStart(ctx, event)
		case "success":
			hook.OnSuccess(ctx, event)
		case "retry":
			hook.OnRetry(ctx, event)
		default:
			hook.OnFailure(ctx, event)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *job.ExecutionMessage) error {
	switch strings.TrimSpace(msg.JobID) {
	case JobIDOutboxDispatch:
		if c.dispatcher == nil {
			return fmt.Errorf("gojob: lifecycle dispatcher is not configured")
		}
		stats, err := c.dispatcher.DispatchPending(ctx, BatchSizeFromMessage(msg))
		if err != nil {
			return err
		}
		c.logger.WithContext(ctx).Info("paychain outbox drained",
			"claimed", stats.Claimed,
			"delivered", stats.Delivered,
			"retried", stats.Retried,
			"failed", stats.Failed,
		)
		return nil
	case JobIDLifecyclePublish:
		if c.sink == nil {
			return fmt.Errorf("gojob: publish sink is not configured")
		}
		event, err := EventFromMessage(msg)
		if err != nil {
			return err
		}
		return c.sink.Publish(ctx, event)
	default:
		return fmt.Errorf("%w %q", errUnsupportedJob, msg.JobID)
	}
}

func attemptKey(msg *job.ExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func (c *Consumer) currentAttempt(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[key]
}

func (c *Consumer) nextAttempt(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[key]++
	return c.attempts[key]
}

func (c *Consumer) clearAttempts(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}
