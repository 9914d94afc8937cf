package operator

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/njfio/tau/channel"
)

// stableFields projects the subset of ComponentRow that §4.6's
// equality tuple is defined over.
type stableFields struct {
	HealthState    channel.HealthState
	RolloutGate    RolloutGate
	ReasonCode     string
	Recommendation string
	QueueDepth     int
	FailureStreak  int
}

func projectStable(row ComponentRow) stableFields {
	return stableFields{
		HealthState:    row.HealthState,
		RolloutGate:    row.RolloutGate,
		ReasonCode:     row.ReasonCode,
		Recommendation: row.Recommendation,
		QueueDepth:     row.QueueDepth,
		FailureStreak:  row.FailureStreak,
	}
}

// DriftState is the closed tag set for one component's drift
// classification between a baseline and current snapshot.
type DriftState string

const (
	DriftStable    DriftState = "stable"
	DriftRegressed DriftState = "regressed"
	DriftImproved  DriftState = "improved"
	DriftChanged   DriftState = "changed"
)

// RiskLevel is the closed tag set for overall drift risk.
type RiskLevel string

const (
	RiskHigh     RiskLevel = "high"
	RiskModerate RiskLevel = "moderate"
	RiskLow      RiskLevel = "low"
)

// ComponentDrift is one component's baseline-to-current comparison.
type ComponentDrift struct {
	Component      Component  `json:"component"`
	State          DriftState `json:"state"`
	AddedReasons   []string   `json:"added_reasons,omitempty"`
	RemovedReasons []string   `json:"removed_reasons,omitempty"`
}

// DriftReport is the full diff between two snapshots.
type DriftReport struct {
	Components []ComponentDrift `json:"components"`
	Risk       RiskLevel        `json:"risk"`
}

// rowsStable reports whether the row-equality tuple is unchanged, per §4.6:
// (health_state, rollout_gate, reason_code, recommendation, queue_depth,
// failure_streak) all equal.
func rowsStable(before, after ComponentRow) bool {
	return cmp.Equal(projectStable(before), projectStable(after))
}

// classifyDrift derives a component's DriftState from its rank change:
// rank_change = (health_rank_after - health_rank_before) + (gate_after -
// gate_before). Positive means worse (regressed), negative better
// (improved), zero with some other field changed is "changed".
func classifyDrift(before, after ComponentRow) DriftState {
	if rowsStable(before, after) {
		return DriftStable
	}
	rankChange := (healthRank(after.HealthState) - healthRank(before.HealthState)) +
		(gateRank(after.RolloutGate) - gateRank(before.RolloutGate))
	switch {
	case rankChange > 0:
		return DriftRegressed
	case rankChange < 0:
		return DriftImproved
	default:
		return DriftChanged
	}
}

// diffStringSet returns elements added/removed between two ordered sets,
// preserving the "after"/"before" order respectively (stable ordering).
func diffStringSet(before, after []string) (added, removed []string) {
	beforeSet := make(map[string]bool, len(before))
	for _, b := range before {
		beforeSet[b] = true
	}
	afterSet := make(map[string]bool, len(after))
	for _, a := range after {
		afterSet[a] = true
	}
	for _, a := range after {
		if !beforeSet[a] {
			added = append(added, a)
		}
	}
	for _, b := range before {
		if !afterSet[b] {
			removed = append(removed, b)
		}
	}
	return added, removed
}

// Diff compares a baseline snapshot to a current one and derives the
// per-component drift set and overall risk.
func Diff(baseline, current Snapshot) DriftReport {
	beforeByComponent := make(map[Component]ComponentRow, len(baseline.Rows))
	for _, row := range baseline.Rows {
		beforeByComponent[row.Component] = row
	}

	var components []ComponentDrift
	anyRegressed := false
	for _, after := range current.Rows {
		before, ok := beforeByComponent[after.Component]
		if !ok {
			components = append(components, ComponentDrift{
				Component: after.Component,
				State:     DriftChanged,
			})
			continue
		}
		state := classifyDrift(before, after)
		if state == DriftRegressed {
			anyRegressed = true
		}
		added, removed := diffStringSet(
			[]string{before.ReasonCode, before.Recommendation},
			[]string{after.ReasonCode, after.Recommendation},
		)
		components = append(components, ComponentDrift{
			Component:      after.Component,
			State:          state,
			AddedReasons:   added,
			RemovedReasons: removed,
		})
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Component < components[j].Component })

	risk := RiskLow
	switch {
	case anyRegressed && current.RolloutGate == GateHold:
		risk = RiskHigh
	case anyRegressed || current.HealthState == channel.HealthDegraded:
		risk = RiskModerate
	}

	return DriftReport{Components: components, Risk: risk}
}
