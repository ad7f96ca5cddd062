package vault

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts vault activity. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	migrations *prometheus.CounterVec
	recoveries *prometheus.CounterVec
}

// NewMetrics creates the vault counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Vault operations by name and outcome.",
		}, []string{"op", "result"}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_migrations_total",
			Help: "Legacy records rewritten with the current cipher.",
		}, []string{"kind"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_recoveries_total",
			Help: "PIN anchor recovery attempts by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.operations, m.migrations, m.recoveries)
	return m
}

func (m *Metrics) operation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) migration(kind string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(kind).Inc()
}

func (m *Metrics) recovery(result string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(result).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrWrongPin):
		return "wrong_pin"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, ErrInvalidScope), errors.Is(err, ErrInvalidPin):
		return "invalid"
	default:
		return "error"
	}
}
