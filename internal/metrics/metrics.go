// Package metrics provides Prometheus metrics for the setup gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	SetupOperations *prometheus.CounterVec
	TenantRPCs      *prometheus.HistogramVec
	OnboardingRuns  *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SetupOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuttiud_setup_operations_total",
				Help: "Setup gateway operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		TenantRPCs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tuttiud_tenant_rpc_duration_seconds",
				Help:    "Duration of tenant-store RPC calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"procedure"},
		),
		OnboardingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuttiud_onboarding_chain_runs_total",
				Help: "Onboarding validation chain runs by final step status",
			},
			[]string{"status"},
		),
	}

	for _, c := range []prometheus.Collector{m.SetupOperations, m.TenantRPCs, m.OnboardingRuns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordSetupOperation counts one gateway operation result.
func (m *Metrics) RecordSetupOperation(operation, outcome string) {
	m.SetupOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveTenantRPC records the duration of one tenant-store RPC.
func (m *Metrics) ObserveTenantRPC(procedure string, seconds float64) {
	m.TenantRPCs.WithLabelValues(procedure).Observe(seconds)
}

// RecordChainRun counts one completed validation chain by outcome.
func (m *Metrics) RecordChainRun(status string) {
	m.OnboardingRuns.WithLabelValues(status).Inc()
}
