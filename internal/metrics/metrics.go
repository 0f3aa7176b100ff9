package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeClosed labels sessions that reached a verified or operator close.
	OutcomeClosed = "closed"
	// OutcomeEscalated labels sessions handed off to a human.
	OutcomeEscalated = "escalated"
)

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "sessions_total",
			Help:      "Total number of incident sessions completed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	phaseSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "responder",
			Name:      "phase_seconds",
			Help:      "Time spent in each lifecycle phase in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	investigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "investigations_total",
			Help:      "Investigator runs, partitioned by investigator and result status.",
		},
		[]string{"investigator", "status"},
	)

	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "approvals_total",
			Help:      "Approval signals resolved, partitioned by result.",
		},
		[]string{"result"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "actions_total",
			Help:      "Remediation actions executed, partitioned by action type and outcome.",
		},
		[]string{"action", "outcome"},
	)
)

// Register attaches responder collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		sessionsTotal,
		phaseSeconds,
		investigationsTotal,
		approvalsTotal,
		actionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSession records a completed session outcome.
func ObserveSession(outcome string) {
	if outcome != OutcomeEscalated {
		outcome = OutcomeClosed
	}
	sessionsTotal.WithLabelValues(outcome).Inc()
}

// ObservePhase records the time spent in a lifecycle phase.
func ObservePhase(phase string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	phaseSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObserveInvestigation records an investigator run result.
func ObserveInvestigation(investigator, status string) {
	investigationsTotal.WithLabelValues(investigator, status).Inc()
}

// ObserveApproval records an approval resolution.
func ObserveApproval(result string) {
	approvalsTotal.WithLabelValues(result).Inc()
}

// ObserveAction records an executed remediation action.
func ObserveAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}
