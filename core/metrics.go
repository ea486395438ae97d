package core

import (
	"context"
	"fmt"
	"maps"
	"strings"
)

// MetricNamespace prefixes every metric the service and its worker emit.
// Recorders that namespace on their own strip it.
const MetricNamespace = "paychain"

// JobDurationMetric times outbox delivery jobs by final status.
const JobDurationMetric = MetricNamespace + ".job.duration_ms"

// operationTagKeys are the log fields promoted to metric labels besides
// operation and status.
var operationTagKeys = []string{"status_to", "event_name", "source_chain_selector"}

// OperationCounter names the per-operation outcome counter.
func OperationCounter(operation string) string {
	return MetricNamespace + "." + operation + ".total"
}

// OperationDuration names the per-operation latency histogram.
func OperationDuration(operation string) string {
	return MetricNamespace + "." + operation + ".duration_ms"
}

// JobPhaseCounter names the worker counter for a job phase
// (start, success, failure, retry).
func JobPhaseCounter(phase string) string {
	return MetricNamespace + ".job." + phase + ".total"
}

func operationTags(operation string, status string, fields map[string]any) map[string]string {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range operationTagKeys {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}
	return tags
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// cloneTags never returns nil so recorders can add labels in place.
func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

var _ MetricsRecorder = NopMetricsRecorder{}
