package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/watchtower/internal/poller"
	"github.com/linnemanlabs/watchtower/internal/scope"
	"github.com/linnemanlabs/watchtower/internal/tower"
)

// Metrics holds Prometheus metrics for polling, the tower and acknowledgment.
type Metrics struct {
	PollsTotal         *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	StaleDiscarded     prometheus.Counter
	ScopeChanges       prometheus.Counter
	TowerUnacked       prometheus.Gauge
	TowerEvents        *prometheus.CounterVec
	AcknowledgedTotal  prometheus.Counter
	SideEffectFailures *prometheus.CounterVec
	EscalationsTotal   *prometheus.CounterVec
}

// NewMetrics registers and returns the metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_polls_total",
			Help: "Alert polls by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchtower_poll_duration_seconds",
			Help:    "Duration of alert fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		StaleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchtower_stale_responses_discarded_total",
			Help: "Alert responses discarded because the scope changed while in flight.",
		}),
		ScopeChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchtower_scope_changes_total",
			Help: "Scope selection changes, including hierarchy clamps.",
		}),
		TowerUnacked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchtower_tower_unacknowledged",
			Help: "Unacknowledged tower alarms.",
		}),
		TowerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_tower_events_total",
			Help: "Tower ledger notifications by kind.",
		}, []string{"kind"}),
		AcknowledgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchtower_acknowledgments_total",
			Help: "Tower alarms newly acknowledged.",
		}),
		SideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_side_effect_failures_total",
			Help: "Best-effort side-effect failures by collaborator.",
		}, []string{"collaborator"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_escalations_total",
			Help: "Escalation notifications by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.PollsTotal,
		m.PollDuration,
		m.StaleDiscarded,
		m.ScopeChanges,
		m.TowerUnacked,
		m.TowerEvents,
		m.AcknowledgedTotal,
		m.SideEffectFailures,
		m.EscalationsTotal,
	)

	return m
}

// PollerHooks returns poller hooks that feed the poll metrics.
func (m *Metrics) PollerHooks() poller.Hooks {
	return poller.Hooks{
		OnPoll: func(outcome string, dur time.Duration) {
			m.PollsTotal.WithLabelValues(outcome).Inc()
			if outcome == poller.OutcomeStale {
				m.StaleDiscarded.Inc()
				return
			}
			m.PollDuration.Observe(dur.Seconds())
		},
		OnScopeChange: func(_, _ scope.Selection) {
			m.ScopeChanges.Inc()
		},
	}
}

// Hooks returns service hooks that feed the acknowledgment metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnAcknowledge: func(changed int) {
			m.AcknowledgedTotal.Add(float64(changed))
		},
		OnSideEffectFailure: func(collaborator string) {
			m.SideEffectFailures.WithLabelValues(collaborator).Inc()
		},
	}
}

// ObserveEscalation counts one escalation attempt.
func (m *Metrics) ObserveEscalation(result string) {
	m.EscalationsTotal.WithLabelValues(result).Inc()
}

// WatchTower keeps the tower gauges current and returns the unsubscribe func.
func (m *Metrics) WatchTower(s *tower.Store) func() {
	m.TowerUnacked.Set(float64(s.Summary().Count))
	return s.Subscribe(func(ev tower.Event) {
		m.TowerEvents.WithLabelValues(string(ev.Kind)).Inc()
		m.TowerUnacked.Set(float64(ev.Summary.Count))
	})
}
