package gojob

import (
	"context"
	"strconv"
	"strings"

	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-paychain/core"
)

// MetricsHook reports go-job worker phases through the paychain metrics
// recorder as paychain.job.<phase>.total and paychain.job.duration_ms.
type MetricsHook struct {
	recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) OnStart(ctx context.Context, event worker.Event) {
	h.record(ctx, "start", event)
}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, "success", event)
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, "failure", event)
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, "retry", event)
}

func (h *MetricsHook) record(ctx context.Context, phase string, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	tags := map[string]string{
		"job_id":  eventJobID(event),
		"attempt": strconv.Itoa(event.Attempt),
	}
	h.recorder.IncCounter(ctx, core.JobPhaseCounter(phase), 1, tags)
	if phase == "success" || phase == "failure" {
		h.recorder.ObserveHistogram(ctx, core.JobDurationMetric, float64(event.Duration.Milliseconds()), map[string]string{
			"job_id": tags["job_id"],
			"status": phase,
		})
	}
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return "unknown"
	}
	if id := strings.TrimSpace(message.JobID); id != "" {
		return id
	}
	return "unknown"
}

var _ worker.Hook = (*MetricsHook)(nil)
