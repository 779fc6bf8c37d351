package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the server's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ModelLoads      *prometheus.CounterVec
	Inference       *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onco_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onco_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		ModelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onco_model_loads_total",
			Help: "Weight file loads by file and outcome.",
		}, []string{"file", "outcome"}),
		Inference: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onco_inference_duration_milliseconds",
			Help:    "Model inference time reported by the runtime.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}, []string{"model"}),
	}
	reg.MustRegister(m.Requests, m.RequestDuration, m.ModelLoads, m.Inference)
	return m
}

func (m *Metrics) modelLoaded(file string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ModelLoads.WithLabelValues(file, outcome).Inc()
}

func (m *Metrics) inferred(file string, ms float64) {
	if m == nil {
		return
	}
	m.Inference.WithLabelValues(file).Observe(ms)
}
