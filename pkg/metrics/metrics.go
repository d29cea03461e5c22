package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	PassesTotal         *prometheus.CounterVec
	ResolvesTotal       *prometheus.CounterVec
	ResolveDuration     *prometheus.HistogramVec
	InflightTargets     *prometheus.GaugeVec
	MutationEvents      *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_passes_total",
			Help: "Region passes by outcome.",
		}, []string{"region", "outcome"}), // outcome: absent, dropped, completed, failed
		ResolvesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_resolves_total",
			Help: "Side data resolutions by outcome.",
		}, []string{"region", "outcome"}), // outcome: photos, empty, missing_payload, error
		ResolveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enricher_resolve_duration_seconds",
			Help:    "Duration of side data resolutions.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"region"}),
		InflightTargets: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "enricher_inflight_targets",
			Help: "Targets holding a placeholder while their fetch is pending.",
		}, []string{"region"}),
		MutationEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_mutation_events_total",
			Help: "Document mutation notifications received.",
		}, []string{"kind"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) IncPass(region, outcome string) {
	m.PassesTotal.WithLabelValues(region, outcome).Inc()
}

func (m *Metrics) IncResolve(region, outcome string) {
	m.ResolvesTotal.WithLabelValues(region, outcome).Inc()
}

func (m *Metrics) ObserveResolve(region string, seconds float64) {
	m.ResolveDuration.WithLabelValues(region).Observe(seconds)
}

func (m *Metrics) AddInflight(region string, delta float64) {
	m.InflightTargets.WithLabelValues(region).Add(delta)
}

func (m *Metrics) IncMutation(kind string) {
	m.MutationEvents.WithLabelValues(kind).Inc()
}
