// Package metrics holds the Prometheus collectors of the image pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "img2pdf"

// Pipeline groups the collectors updated by the session service.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	imagesNormalized   *prometheus.CounterVec
	normalizeFailures  *prometheus.CounterVec
	documentsGenerated prometheus.Counter
	generateFailures   *prometheus.CounterVec
	documentsDelivered prometheus.Counter
	sessionsRemoved    *prometheus.CounterVec
	orphansRemoved     prometheus.Counter
	normalizeDuration  prometheus.Histogram
	assembleDuration   prometheus.Histogram
}

// New registers the pipeline collectors on reg. sessions reports the number
// of live sessions at scrape time.
func New(reg prometheus.Registerer, sessions func() int) (*Pipeline, error) {
	p := &Pipeline{
		imagesNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_normalized_total",
			Help:      "Images normalized, by source and output format.",
		}, []string{"source_format", "format"}),
		normalizeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_failures_total",
			Help:      "Images rejected during normalization, by reason.",
		}, []string{"reason"}),
		documentsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_generated_total",
			Help:      "Documents assembled successfully.",
		}),
		generateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_failures_total",
			Help:      "Document assemblies that failed, by reason.",
		}, []string{"reason"}),
		documentsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_delivered_total",
			Help:      "Documents handed to a client.",
		}),
		sessionsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_removed_total",
			Help:      "Sessions torn down, by cause.",
		}, []string{"cause"}),
		orphansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_dirs_removed_total",
			Help:      "Working directories removed that belonged to no live session.",
		}),
		normalizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalize_duration_seconds",
			Help:      "Time spent normalizing one image.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		assembleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assemble_duration_seconds",
			Help:      "Time spent assembling one document.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	collectors := []prometheus.Collector{
		p.imagesNormalized, p.normalizeFailures,
		p.documentsGenerated, p.generateFailures,
		p.documentsDelivered, p.sessionsRemoved, p.orphansRemoved,
		p.normalizeDuration, p.assembleDuration,
	}
	if sessions != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently registered.",
		}, func() float64 { return float64(sessions()) }))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Removal causes.
const (
	CauseDelivered = "delivered"
	CauseCleanup   = "cleanup"
	CauseExpired   = "expired"
	CauseRollback  = "rollback"
)

func (p *Pipeline) ImageNormalized(sourceFormat, format string, took time.Duration) {
	if p == nil {
		return
	}
	p.imagesNormalized.WithLabelValues(sourceFormat, format).Inc()
	p.normalizeDuration.Observe(took.Seconds())
}

func (p *Pipeline) NormalizeFailed(reason string) {
	if p == nil {
		return
	}
	p.normalizeFailures.WithLabelValues(reason).Inc()
}

func (p *Pipeline) DocumentGenerated(took time.Duration) {
	if p == nil {
		return
	}
	p.documentsGenerated.Inc()
	p.assembleDuration.Observe(took.Seconds())
}

func (p *Pipeline) GenerateFailed(reason string) {
	if p == nil {
		return
	}
	p.generateFailures.WithLabelValues(reason).Inc()
}

func (p *Pipeline) DocumentDelivered() {
	if p == nil {
		return
	}
	p.documentsDelivered.Inc()
}

func (p *Pipeline) SessionRemoved(cause string) {
	if p == nil {
		return
	}
	p.sessionsRemoved.WithLabelValues(cause).Inc()
}

func (p *Pipeline) OrphanRemoved() {
	if p == nil {
		return
	}
	p.orphansRemoved.Inc()
}
