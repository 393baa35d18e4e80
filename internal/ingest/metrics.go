package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the ingestion subsystem.
type Metrics struct {
	TicksTotal           *prometheus.CounterVec
	TickDuration         *prometheus.HistogramVec
	TicksCoalescedTotal  prometheus.Counter
	FetchDuration        *prometheus.HistogramVec
	AlertsFetched        prometheus.Histogram
	MalformedTotal       prometheus.Counter
	ClassificationsTotal *prometheus.CounterVec
	EffectsTotal         *prometheus.CounterVec
	PrunedTotal          prometheus.Counter
}

// NewMetrics registers and returns ingestion metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxalerts_ticks_total",
			Help: "Total poll ticks by result.",
		}, []string{"result"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wxalerts_tick_duration_seconds",
			Help:    "Duration of poll ticks in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"result"}),
		TicksCoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wxalerts_ticks_coalesced_total",
			Help: "Timer firings dropped because a tick was still running.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wxalerts_fetch_duration_seconds",
			Help:    "Duration of upstream feed fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"outcome"}),
		AlertsFetched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wxalerts_alerts_fetched",
			Help:    "Valid alerts per fetched snapshot.",
			Buckets: prometheus.LinearBuckets(0, 2, 11), // 0 .. 20
		}),
		MalformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wxalerts_malformed_alerts_total",
			Help: "Feed records rejected at ingestion.",
		}),
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxalerts_classifications_total",
			Help: "Alerts classified by outcome.",
		}, []string{"classification"}),
		EffectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxalerts_effects_total",
			Help: "Side effects performed by kind and status.",
		}, []string{"kind", "status"}),
		PrunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wxalerts_pruned_alerts_total",
			Help: "Stored alerts removed by the retention horizon.",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.TicksCoalescedTotal,
		m.FetchDuration,
		m.AlertsFetched,
		m.MalformedTotal,
		m.ClassificationsTotal,
		m.EffectsTotal,
		m.PrunedTotal,
	)

	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnTick: func(result string, duration float64) {
			m.TicksTotal.WithLabelValues(result).Inc()
			m.TickDuration.WithLabelValues(result).Observe(duration)
		},
		OnCoalesced: m.TicksCoalescedTotal.Inc,
		OnFetch: func(duration float64, alerts, rejected int, err error) {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			m.FetchDuration.WithLabelValues(outcome).Observe(duration)
			if err == nil {
				m.AlertsFetched.Observe(float64(alerts))
				m.MalformedTotal.Add(float64(rejected))
			}
		},
		OnClassify: func(c Classification) {
			m.ClassificationsTotal.WithLabelValues(string(c)).Inc()
		},
		OnEffect: func(kind EffectKind, err error) {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.EffectsTotal.WithLabelValues(string(kind), status).Inc()
		},
		OnPrune: func(n int) {
			m.PrunedTotal.Add(float64(n))
		},
	}
}
