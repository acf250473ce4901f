// Package metrics exposes Prometheus collectors for the extraction pipeline.
// A nil *PipelineMetrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds the pipeline's collectors
type PipelineMetrics struct {
	Extractions     *prometheus.CounterVec
	FieldSources    *prometheus.CounterVec
	PriceRejections *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	ImageDownloads  *prometheus.CounterVec
	QuickAddTimeout prometheus.Counter
}

// NewPipelineMetrics registers the pipeline collectors under namespace.
// A nil registerer uses prometheus.DefaultRegisterer.
func NewPipelineMetrics(namespace string, reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PipelineMetrics{
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Metadata extractions by outcome (complete, partial, empty, cancelled, invalid_url).",
		}, []string{"outcome"}),
		FieldSources: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_resolutions_total",
			Help:      "Resolved fields by field name and winning source.",
		}, []string{"field", "source"}),
		PriceRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_rejections_total",
			Help:      "Price candidates discarded as unparseable or implausible, by source.",
		}, []string{"source", "reason"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_fetch_duration_seconds",
			Help:      "Page acquisition latency by fetcher and outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"fetcher", "outcome"}),
		ImageDownloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_attempts_total",
			Help:      "Image candidate attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		QuickAddTimeout: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quick_add_timeouts_total",
			Help:      "Quick-add extractions that hit their deadline and used the URL title.",
		}),
	}
}

func (m *PipelineMetrics) RecordExtraction(outcome string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) RecordField(field, source string) {
	if m == nil {
		return
	}
	m.FieldSources.WithLabelValues(field, source).Inc()
}

func (m *PipelineMetrics) RecordPriceRejection(source, reason string) {
	if m == nil {
		return
	}
	m.PriceRejections.WithLabelValues(source, reason).Inc()
}

func (m *PipelineMetrics) RecordFetch(fetcher, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(fetcher, outcome).Observe(d.Seconds())
}

func (m *PipelineMetrics) RecordImageAttempt(source, outcome string) {
	if m == nil {
		return
	}
	m.ImageDownloads.WithLabelValues(source, outcome).Inc()
}

func (m *PipelineMetrics) RecordQuickAddTimeout() {
	if m == nil {
		return
	}
	m.QuickAddTimeout.Inc()
}
