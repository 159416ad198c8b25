package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"ridecontract/internal/domain"
)

// Metrics counts contract transitions and escrow movements.
// A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	escrowMoved *prometheus.CounterVec
}

// NewMetrics creates the contract metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ride_contract",
			Name:      "transitions_total",
			Help:      "Ride contract operations by outcome (ok or the contract error code).",
		}, []string{"operation", "outcome"}),
		escrowMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ride_contract",
			Name:      "escrow_moved_total",
			Help:      "Value moved in or out of ride escrows.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.escrowMoved)
	}
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = ErrorCode(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	m.transitions.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) moved(kind domain.TransferKind, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.escrowMoved.WithLabelValues(string(kind)).Add(float64(amount))
}
