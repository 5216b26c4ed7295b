package dispatch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Metrics counts dispatch attempts by operation and outcome.
type Metrics struct {
	attempts *prometheus.CounterVec
}

// NewMetrics registers dispatch collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "steelworks_dispatch_attempts_total",
		Help: "Dispatch mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	registerer.MustRegister(attempts)
	return &Metrics{attempts: attempts}
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOverDispatch):
		return "over_dispatch"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrConstraint), errors.Is(err, shared.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}
