package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome мітки для bot_dispatches_total.
const (
	OutcomeSuccess         = "success"
	OutcomeBlocked         = "blocked"
	OutcomeExtraction      = "extraction_failed"
	OutcomeNoArtifact      = "no_artifact"
	OutcomeDeliveryFailure = "delivery_failed"
	OutcomePanic           = "panic"
)

// Metrics тримає всі лічильники бота на власному реєстрі, щоб тести могли створювати
// незалежні екземпляри.
type Metrics struct {
	Registry *prometheus.Registry

	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	JobsInFlight     prometheus.Gauge
	JobPanics        prometheus.Counter
	Deliveries       *prometheus.CounterVec
	Updates          *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_dispatches_total",
			Help: "Completed dispatches by outcome",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_dispatch_duration_seconds",
			Help:    "Time from receiving a link to cleanup",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_jobs_in_flight",
			Help: "Background jobs currently running or waiting for a slot",
		}),
		JobPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_job_panics_total",
			Help: "Background jobs that panicked",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_deliveries_total",
			Help: "Outbound media sends by kind, route and result",
		}, []string{"kind", "route", "result"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Inbound updates by type",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.Dispatches, m.DispatchDuration, m.JobsInFlight, m.JobPanics, m.Deliveries, m.Updates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) JobStarted() { m.JobsInFlight.Inc() }

func (m *Metrics) JobFinished(time.Duration) { m.JobsInFlight.Dec() }

func (m *Metrics) JobPanicked() { m.JobPanics.Inc() }

func (m *Metrics) Dispatch(outcome string, d time.Duration) {
	m.Dispatches.WithLabelValues(outcome).Inc()
	m.DispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) Delivery(kind, route string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Deliveries.WithLabelValues(kind, route, result).Inc()
}

func (m *Metrics) Update(kind string) { m.Updates.WithLabelValues(kind).Inc() }
