package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	registry         *prom.Registry
	stageDuration    *prom.HistogramVec
	stageResults     *prom.CounterVec
	buildDuration    prom.Histogram
	buildOutcome     *prom.CounterVec
	retries          *prom.CounterVec
	retriesExhausted *prom.CounterVec
	callbackResults  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "appforge",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "appforge",
			Name:      "build_duration_seconds",
			Help:      "Total pipeline duration per job",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final state",
		}, []string{"outcome"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "retry_attempts_total",
			Help:      "Retry attempts per external operation",
		}, []string{"op"})
		pr.retriesExhausted = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "retry_exhausted_total",
			Help:      "Operations that exhausted their retry budget",
		}, []string{"op"})
		pr.callbackResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "callback_deliveries_total",
			Help:      "Evaluation callback delivery results",
		}, []string{"result"})
		reg.MustRegister(pr.stageDuration, pr.stageResults, pr.buildDuration,
			pr.buildOutcome, pr.retries, pr.retriesExhausted, pr.callbackResults)
	})
	return pr
}

// Handler returns an HTTP handler exposing the recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRetryAttempt(op string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted(op string) {
	if p == nil || p.retriesExhausted == nil {
		return
	}
	p.retriesExhausted.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) IncCallbackDelivery(delivered bool) {
	if p == nil || p.callbackResults == nil {
		return
	}
	label := "delivered"
	if !delivered {
		label = "failed"
	}
	p.callbackResults.WithLabelValues(label).Inc()
}
