package operator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports the control summary's aggregate posture as Prometheus
// gauges, generalizing the teacher's metrics collector onto the
// operator's rollout-gate/health-state roll-up.
type Metrics struct {
	rolloutGateHold   prometheus.Gauge
	healthStateRank   prometheus.Gauge
	componentGateHold *prometheus.GaugeVec
	componentHealth   *prometheus.GaugeVec
}

// NewMetrics registers the operator's gauges under the given namespace
// on reg (pass prometheus.DefaultRegisterer for the global registry).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rolloutGateHold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "rollout_gate_hold",
			Help:      "1 if the aggregate rollout gate is hold, 0 if go.",
		}),
		healthStateRank: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "health_state_rank",
			Help:      "Aggregate health rank: 0=healthy, 1=degraded, 2=failing.",
		}),
		componentGateHold: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "component_rollout_gate_hold",
			Help:      "1 if a component's rollout gate is hold, 0 if go.",
		}, []string{"component"}),
		componentHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "component_health_rank",
			Help:      "A component's health rank: 0=healthy, 1=degraded, 2=failing.",
		}, []string{"component"}),
	}
}

// Observe publishes a Snapshot's posture onto the registered gauges.
func (m *Metrics) Observe(snap Snapshot) {
	if m == nil {
		return
	}
	if snap.RolloutGate == GateHold {
		m.rolloutGateHold.Set(1)
	} else {
		m.rolloutGateHold.Set(0)
	}
	m.healthStateRank.Set(float64(healthRank(snap.HealthState)))

	for _, row := range snap.Rows {
		gateValue := 0.0
		if row.RolloutGate == GateHold {
			gateValue = 1.0
		}
		m.componentGateHold.WithLabelValues(string(row.Component)).Set(gateValue)
		m.componentHealth.WithLabelValues(string(row.Component)).Set(float64(healthRank(row.HealthState)))
	}
}
