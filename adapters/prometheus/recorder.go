// Package prometheus exposes the wallet's metrics through a Prometheus
// registry. Metric vectors are created lazily; the label set observed on a
// metric's first use becomes its schema.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-wallet/core"
)

const defaultNamespace = "wallet"

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		trimmed := sanitizeName(namespace)
		if trimmed != "" {
			r.namespace = trimmed
		}
	}
}

func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(r *Recorder) {
		if registerer != nil {
			r.registerer = registerer
		}
	}
}

func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// Recorder implements the wallet metrics contract over Prometheus vectors.
type Recorder struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
}

func NewRecorder(opts ...Option) *Recorder {
	recorder := &Recorder{
		registerer: prometheus.DefaultRegisterer,
		namespace:  defaultNamespace,
		buckets:    prometheus.DefBuckets,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		labels:     map[string][]string{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(recorder)
	}
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	metric := sanitizeName(name)
	if metric == "" {
		return
	}
	counter, labelNames := r.counterVec(metric, tags)
	if counter == nil {
		return
	}
	counter.With(labelValues(labelNames, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	metric := sanitizeName(name)
	if metric == "" {
		return
	}
	histogram, labelNames := r.histogramVec(metric, tags)
	if histogram == nil {
		return
	}
	histogram.With(labelValues(labelNames, tags)).Observe(value)
}

func (r *Recorder) counterVec(name string, tags map[string]string) (*prometheus.CounterVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing, r.labels[name]
	}

	labelNames := sortedLabelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      fmt.Sprintf("Wallet counter %s.", name),
	}, labelNames)
	registered, err := r.register(vec)
	if err != nil {
		return nil, nil
	}
	vec, ok := registered.(*prometheus.CounterVec)
	if !ok {
		return nil, nil
	}
	r.counters[name] = vec
	r.labels[name] = labelNames
	return vec, labelNames
}

func (r *Recorder) histogramVec(name string, tags map[string]string) (*prometheus.HistogramVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing, r.labels[name]
	}

	labelNames := sortedLabelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      fmt.Sprintf("Wallet histogram %s.", name),
		Buckets:   r.buckets,
	}, labelNames)
	registered, err := r.register(vec)
	if err != nil {
		return nil, nil
	}
	vec, ok := registered.(*prometheus.HistogramVec)
	if !ok {
		return nil, nil
	}
	r.histograms[name] = vec
	r.labels[name] = labelNames
	return vec, labelNames
}

// register tolerates a collector someone else already registered, reusing
// the existing one instead of failing the caller.
func (r *Recorder) register(collector prometheus.Collector) (prometheus.Collector, error) {
	if err := r.registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

func labelValues(labelNames []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(labelNames))
	for _, label := range labelNames {
		value := ""
		for key, tagValue := range tags {
			if sanitizeName(key) == label {
				value = tagValue
				break
			}
		}
		values[label] = value
	}
	return values
}

func sortedLabelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for key := range tags {
		sanitized := sanitizeName(key)
		if sanitized == "" || seen[sanitized] {
			continue
		}
		seen[sanitized] = true
		names = append(names, sanitized)
	}
	sort.Strings(names)
	return names
}

// sanitizeName maps dotted wallet metric names onto the Prometheus charset.
func sanitizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(trimmed))
	for i, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
