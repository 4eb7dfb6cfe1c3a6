package accounts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registration progress, provider calls and reconciliation
// outcomes. A nil *Metrics records nothing.
type Metrics struct {
	StepTransitions   *prometheus.CounterVec
	ProviderCalls     *prometheus.CounterVec
	Reconciliations   *prometheus.CounterVec
	GraphLoadDuration prometheus.Histogram
}

// NewMetrics registers the metrics with reg, the default registerer when nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		StepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_registration_step_transitions_total",
			Help: "Registration step transitions by source and target step",
		}, []string{"from", "to"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_identity_provider_calls_total",
			Help: "Identity provider calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_reconciliations_total",
			Help: "Reconciliation attempts by outcome",
		}, []string{"outcome"}),
		GraphLoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accounts_graph_load_duration_seconds",
			Help:    "Duration of user graph loads",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncStepTransition records a step change.
func (m *Metrics) IncStepTransition(from, to Step) {
	if m == nil {
		return
	}
	m.StepTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// IncProviderCall records a provider call, outcome is "ok" or the error text code.
func (m *Metrics) IncProviderCall(operation string, err error) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

// IncReconciliation records a reconciliation outcome.
func (m *Metrics) IncReconciliation(err error) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcomeLabel(err)).Inc()
}

// ObserveGraphLoad records the duration of a graph load started at start.
func (m *Metrics) ObserveGraphLoad(start time.Time) {
	if m == nil {
		return
	}
	m.GraphLoadDuration.Observe(time.Since(start).Seconds())
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, code := range []string{
		TextCodeDuplicateIdentity,
		TextCodeWeakCredential,
		TextCodeInvalidCode,
		TextCodeCodeExpired,
		TextCodeProviderUnavailable,
		TextCodeUserAlreadyExists,
		TextCodeInvalidInput,
		TextCodePersistenceUnavailable,
	} {
		if HasTextCode(err, code) {
			return code
		}
	}
	return "error"
}
