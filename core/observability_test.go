package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) snapshotCounters() []capturedCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capturedCounter(nil), m.counters...)
}

func (m *captureMetricsRecorder) snapshotHistograms() []capturedHistogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capturedHistogram(nil), m.histograms...)
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestServiceObservability_CreatePaymentSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	engine := newTestEngine(t, Config{},
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	engine.initialize(t)
	engine.fund(t, engine.keys.sender.PublicKey(), 2_000_000)
	engine.createPayment(t, 1, 1_000_000)

	if !hasCounter(metrics.snapshotCounters(), "paychain.create_payment.total", "success") {
		t.Fatalf("expected paychain.create_payment.total success counter")
	}
	if !hasHistogram(metrics.snapshotHistograms(), "paychain.create_payment.duration_ms", "success") {
		t.Fatalf("expected paychain.create_payment.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "create_payment succeeded", "create_payment") {
		t.Fatalf("expected create_payment succeeded structured log")
	}
	for _, record := range logger.snapshot() {
		if record.fields["event_type"] == "create_payment" && record.fields["fee"] != uint64(500_000) {
			t.Fatalf("expected fee field on create_payment log, got %#v", record.fields["fee"])
		}
	}
}

func TestServiceObservability_ReceiveCrossChainFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	engine := newTestEngine(t, Config{},
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	engine.initialize(t)

	req := engine.relayRequest(t, 0x40, 77, SettlementPayload{PaymentID: testBytes32(1), Amount: 1, Receiver: testBytes32(2)})
	if _, err := engine.svc.ReceiveCrossChain(context.Background(), req); err == nil {
		t.Fatalf("expected unlisted relay to fail")
	}

	counters := metrics.snapshotCounters()
	if !hasCounter(counters, "paychain.receive_cross_chain.total", "failure") {
		t.Fatalf("expected receive_cross_chain failure counter")
	}
	for _, counter := range counters {
		if counter.name == "paychain.receive_cross_chain.total" && counter.tags["source_chain_selector"] != "77" {
			t.Fatalf("expected source_chain_selector tag, got %#v", counter.tags)
		}
	}
	if !hasLog(logger.snapshot(), "error", "receive_cross_chain failed", "receive_cross_chain") {
		t.Fatalf("expected receive_cross_chain failure log")
	}
}

func TestServiceObservability_EnrichesStructuredErrorFields(t *testing.T) {
	logger := newCaptureLogger()
	engine := newTestEngine(t, Config{},
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	richErr := goerrors.New("relay rejected", goerrors.CategoryAuth).
		WithCode(403).
		WithTextCode(ErrorCodeUnauthorized)
	engine.svc.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"receive_cross_chain",
		richErr,
		map[string]any{"relay": "relay-1"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.level != "error" {
		t.Fatalf("expected error level, got %q", last.level)
	}
	if last.fields["error_category"] != fmt.Sprint(goerrors.CategoryAuth) {
		t.Fatalf("expected error_category auth, got %#v", last.fields["error_category"])
	}
	if last.fields["error_text_code"] != ErrorCodeUnauthorized {
		t.Fatalf("expected error_text_code %q, got %#v", ErrorCodeUnauthorized, last.fields["error_text_code"])
	}
	if last.fields["error_code"] != 403 {
		t.Fatalf("expected error_code 403, got %#v", last.fields["error_code"])
	}
	if last.fields["relay"] != "relay-1" {
		t.Fatalf("expected caller fields to be preserved, got %#v", last.fields["relay"])
	}
}

func TestServiceObservability_EphemeralSeedWarns(t *testing.T) {
	logger := newCaptureLogger()
	_, err := NewService(Config{},
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	found := false
	for _, record := range logger.snapshot() {
		if record.level == "warn" && record.msg == "custody seed not configured, using an ephemeral seed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ephemeral seed warning")
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}
