// Package operator implements the control-summary aggregation and
// drift-diff of spec §4.6, collecting per-component health/rollout
// state into one gated posture the way the teacher's agent/observability
// dashboard rolls up subsystem health, generalized across components.
package operator

import (
	"encoding/json"
	"os"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/internal/atomicfile"
)

// Component is the closed tag set of runtimes the operator summary
// aggregates.
type Component string

const (
	ComponentEvents         Component = "events"
	ComponentDashboard      Component = "dashboard"
	ComponentMultiChannel   Component = "multi_channel"
	ComponentMultiAgent     Component = "multi_agent"
	ComponentGateway        Component = "gateway"
	ComponentDeployment     Component = "deployment"
	ComponentCustomCommand  Component = "custom_command"
	ComponentVoice          Component = "voice"
	ComponentDaemon         Component = "daemon"
	ComponentReleaseChannel Component = "release_channel"
)

// AllComponents is the fixed scan order §4.6 names.
var AllComponents = []Component{
	ComponentEvents,
	ComponentDashboard,
	ComponentMultiChannel,
	ComponentMultiAgent,
	ComponentGateway,
	ComponentDeployment,
	ComponentCustomCommand,
	ComponentVoice,
}

// RolloutGate is the closed tag set for a component's release gate.
type RolloutGate string

const (
	GateGo   RolloutGate = "go"
	GateHold RolloutGate = "hold"
)

// ComponentRow is one row of the control summary.
type ComponentRow struct {
	Component      Component           `json:"component"`
	StatePath      string              `json:"state_path"`
	HealthState    channel.HealthState `json:"health_state"`
	HealthReason   string              `json:"health_reason"`
	RolloutGate    RolloutGate         `json:"rollout_gate"`
	ReasonCode     string              `json:"reason_code,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
	QueueDepth     int                 `json:"queue_depth"`
	FailureStreak  int                 `json:"failure_streak"`
}

// PolicyPosture captures the cross-cutting policy knobs §4.6 names.
type PolicyPosture struct {
	PairingStrictMode          bool `json:"pairing_strict_mode"`
	ProviderSubscriptionStrict bool `json:"provider_subscription_strict"`
	GatewayRemoteProfileGate   bool `json:"gateway_remote_profile_gate"`
}

// Snapshot is the full control-summary document persisted between runs.
type Snapshot struct {
	SchemaVersion   int                 `json:"schema_version"`
	GeneratedUnixMs int64               `json:"generated_unix_ms"`
	Rows            []ComponentRow      `json:"rows"`
	PolicyPosture   PolicyPosture       `json:"policy_posture"`
	RolloutGate     RolloutGate         `json:"rollout_gate"`
	HealthState     channel.HealthState `json:"health_state"`
}

const CurrentSnapshotSchemaVersion = 1

// healthRank orders healthy<degraded<failing for the aggregate max and
// for drift rank-change arithmetic.
func healthRank(s channel.HealthState) int {
	switch s {
	case channel.HealthHealthy:
		return 0
	case channel.HealthDegraded:
		return 1
	case channel.HealthFailing:
		return 2
	default:
		return 2
	}
}

func gateRank(g RolloutGate) int {
	if g == GateHold {
		return 1
	}
	return 0
}

// StateReader loads a component's persisted RuntimeState from its state
// file, abstracting over the concrete file layout per component.
type StateReader func(component Component) (path string, state channel.RuntimeState, err error)

// CollectRow builds one ComponentRow from a component's state file.
// A missing or unparsable state file reports health_state=failing,
// rollout_gate=hold, reason_code=state_unavailable per §4.6.
func CollectRow(component Component, read StateReader, opts channel.ClassifyOptions) ComponentRow {
	path, state, err := read(component)
	if err != nil {
		return ComponentRow{
			Component:      component,
			StatePath:      path,
			HealthState:    channel.HealthFailing,
			HealthReason:   "state_unavailable",
			RolloutGate:    GateHold,
			ReasonCode:     "state_unavailable",
			Recommendation: "restore or reinitialize the component state file",
		}
	}

	classification := channel.Classify(state.Health, opts)
	gate := GateGo
	reasonCode := ""
	if classification.State != channel.HealthHealthy {
		gate = GateHold
		reasonCode = classification.Reason
	}

	return ComponentRow{
		Component:      component,
		StatePath:      path,
		HealthState:    classification.State,
		HealthReason:   classification.Reason,
		RolloutGate:    gate,
		ReasonCode:     reasonCode,
		Recommendation: classification.Recommendation,
		QueueDepth:     state.Health.QueueDepth,
		FailureStreak:  state.Health.FailureStreak,
	}
}

// BuildSnapshot collects a row per known component plus the daemon and
// release-channel rows, and derives the aggregate gate/health.
func BuildSnapshot(nowUnixMs int64, read StateReader, opts channel.ClassifyOptions, posture PolicyPosture) Snapshot {
	rows := make([]ComponentRow, 0, len(AllComponents)+2)
	for _, c := range AllComponents {
		rows = append(rows, CollectRow(c, read, opts))
	}
	rows = append(rows, CollectRow(ComponentDaemon, read, opts))
	rows = append(rows, CollectRow(ComponentReleaseChannel, read, opts))

	aggregateGate := GateGo
	aggregateHealth := channel.HealthHealthy
	for _, row := range rows {
		if row.RolloutGate == GateHold {
			aggregateGate = GateHold
		}
		if healthRank(row.HealthState) > healthRank(aggregateHealth) {
			aggregateHealth = row.HealthState
		}
	}

	return Snapshot{
		SchemaVersion:   CurrentSnapshotSchemaVersion,
		GeneratedUnixMs: nowUnixMs,
		Rows:            rows,
		PolicyPosture:   posture,
		RolloutGate:     aggregateGate,
		HealthState:     aggregateHealth,
	}
}

// FileStateReader reads a component's RuntimeState from
// <root>/<component>-state.json, matching the channel runtime's state
// file naming.
func FileStateReader(root string) StateReader {
	return func(component Component) (string, channel.RuntimeState, error) {
		path := root + "/" + string(component) + "-state.json"
		var state channel.RuntimeState
		err := atomicfile.ReadJSON(path, &state)
		return path, state, err
	}
}

// SaveSnapshot persists a Snapshot atomically to path.
func SaveSnapshot(path string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}

// LoadSnapshot reads a persisted Snapshot, tolerating a missing file by
// returning the zero value.
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	err := atomicfile.ReadJSON(path, &snap)
	if err != nil && os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	return snap, err
}
