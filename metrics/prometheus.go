package metrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-paychain/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = core.MetricNamespace

// PrometheusRecorder maps dotted metric names onto prometheus vectors. The
// label set of a metric is fixed by its first observation; later tags are
// projected onto that set.
type PrometheusRecorder struct {
	namespace  string
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*counterEntry
	histograms map[string]*histogramEntry
}

type counterEntry struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramEntry struct {
	vec    *prometheus.HistogramVec
	labels []string
}

type Option func(*PrometheusRecorder)

func WithNamespace(namespace string) Option {
	return func(r *PrometheusRecorder) {
		r.namespace = sanitizeName(namespace)
	}
}

// WithRegistry registers metrics on registry instead of the default one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *PrometheusRecorder) {
		if registry != nil {
			r.registerer = registry
			r.gatherer = registry
		}
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *PrometheusRecorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewPrometheusRecorder(opts ...Option) *PrometheusRecorder {
	recorder := &PrometheusRecorder{
		namespace:  DefaultNamespace,
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		buckets:    []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		counters:   map[string]*counterEntry{},
		histograms: map[string]*histogramEntry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (p *PrometheusRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if p == nil || value < 0 {
		return
	}
	entry := p.counter(name, tags)
	if entry == nil {
		return
	}
	entry.vec.With(project(entry.labels, tags)).Add(float64(value))
}

func (p *PrometheusRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if p == nil {
		return
	}
	entry := p.histogram(name, tags)
	if entry == nil {
		return
	}
	entry.vec.With(project(entry.labels, tags)).Observe(value)
}

// Handler exposes the recorder's gatherer in the text exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	if p == nil || p.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) counter(name string, tags map[string]string) *counterEntry {
	metricName := p.metricName(name, "total")
	if metricName == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.counters[metricName]; ok {
		return entry
	}
	labels := labelKeys(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      metricName,
		Help:      "paychain counter " + strings.TrimSpace(name),
	}, labels)
	registered := registerCollector(p.registerer, vec)
	if typed, ok := registered.(*prometheus.CounterVec); ok {
		vec = typed
	}
	entry := &counterEntry{vec: vec, labels: labels}
	p.counters[metricName] = entry
	return entry
}

func (p *PrometheusRecorder) histogram(name string, tags map[string]string) *histogramEntry {
	metricName := p.metricName(name, "")
	if metricName == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.histograms[metricName]; ok {
		return entry
	}
	labels := labelKeys(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      metricName,
		Help:      "paychain histogram " + strings.TrimSpace(name),
		Buckets:   p.buckets,
	}, labels)
	registered := registerCollector(p.registerer, vec)
	if typed, ok := registered.(*prometheus.HistogramVec); ok {
		vec = typed
	}
	entry := &histogramEntry{vec: vec, labels: labels}
	p.histograms[metricName] = entry
	return entry
}

// metricName strips the namespace prefix from dotted names and sanitizes the
// rest, e.g. "paychain.pay_request.total" becomes "pay_request_total".
func (p *PrometheusRecorder) metricName(name string, suffix string) string {
	name = strings.TrimSpace(name)
	if p.namespace != "" {
		name = strings.TrimPrefix(name, p.namespace+".")
	}
	name = sanitizeName(name)
	if name == "" {
		return ""
	}
	if suffix != "" && !strings.HasSuffix(name, "_"+suffix) {
		name += "_" + suffix
	}
	return name
}

func registerCollector(registerer prometheus.Registerer, collector prometheus.Collector) prometheus.Collector {
	if registerer == nil {
		return collector
	}
	if err := registerer.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector
		}
	}
	return collector
}

func labelKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for key := range tags {
		label := sanitizeName(key)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		keys = append(keys, label)
	}
	sort.Strings(keys)
	return keys
}

func project(labels []string, tags map[string]string) prometheus.Labels {
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		normalized[sanitizeName(key)] = value
	}
	out := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		out[label] = normalized[label]
	}
	return out
}

func sanitizeName(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)
