package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trending_digest"

// Metrics 流水线的 Prometheus 指标，nil 接收者上的方法都是空操作
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	repos         *prometheus.CounterVec
	degraded      prometheus.Counter
	emails        *prometheus.CounterVec
	triggers      *prometheus.CounterVec
}

// New 使用独立的 registry，避免测试里重复注册
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		repos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repos_total",
			Help:      "Repositories flowing through each pipeline stage.",
		}, []string{"stage"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_degraded_total",
			Help:      "Repositories that fell back to a degraded classification.",
		}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Digest email deliveries by kind and result.",
		}, []string{"kind", "result"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_triggers_total",
			Help:      "Manual trigger requests by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.runs, m.stageDuration, m.repos, m.degraded, m.emails, m.triggers)
	return m
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// ObserveStage 记录从 start 到现在的耗时
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddRepos(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.repos.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) AddDegraded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.degraded.Add(float64(n))
}

// EmailSent kind: user | fallback
func (m *Metrics) EmailSent(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.emails.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Trigger(outcome string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(outcome).Inc()
}
