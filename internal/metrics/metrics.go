// Package metrics holds the Prometheus collectors shared by the operation log,
// the checker and the run harness.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tpc"

type Metrics struct {
	Appends             *prometheus.CounterVec
	AppendFailures      prometheus.Counter
	Replayed            prometheus.Counter
	ParticipantsChecked prometheus.Counter
	Violations          *prometheus.CounterVec
	Transactions        *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg leaves them
// unregistered, which is what tests that only read values back want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oplog",
			Name:      "appends_total",
			Help:      "Messages durably appended to an operation log.",
		}, []string{"kind"}),
		AppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oplog",
			Name:      "append_failures_total",
			Help:      "Appends that failed to write or sync the backing file.",
		}),
		Replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oplog",
			Name:      "replayed_messages_total",
			Help:      "Messages loaded while reconstructing logs from disk.",
		}),
		ParticipantsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "participants_checked_total",
			Help:      "Participant logs audited against the coordinator log.",
		}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "violations_total",
			Help:      "Invariant violations found by the checker.",
		}, []string{"invariant"}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sim",
			Name:      "transactions_total",
			Help:      "Transactions decided by the in-process coordinator.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Appends,
			m.AppendFailures,
			m.Replayed,
			m.ParticipantsChecked,
			m.Violations,
			m.Transactions,
		)
	}

	return m
}
