package operator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/njfio/tau/channel"
	"github.com/stretchr/testify/require"
)

func healthyReader(queueDepth, failureStreak int) StateReader {
	return func(component Component) (string, channel.RuntimeState, error) {
		return string(component) + "-state.json", channel.RuntimeState{
			Health: channel.TransportHealthSnapshot{
				QueueDepth:    queueDepth,
				FailureStreak: failureStreak,
			},
		}, nil
	}
}

func TestCollectRowReportsStateUnavailableOnMissingFile(t *testing.T) {
	read := func(component Component) (string, channel.RuntimeState, error) {
		return "missing.json", channel.RuntimeState{}, os.ErrNotExist
	}
	row := CollectRow(ComponentGateway, read, channel.DefaultClassifyOptions())
	require.Equal(t, channel.HealthFailing, row.HealthState)
	require.Equal(t, GateHold, row.RolloutGate)
	require.Equal(t, "state_unavailable", row.ReasonCode)
}

func TestBuildSnapshotAggregateGateHoldsIfAnyRowHolds(t *testing.T) {
	opts := channel.DefaultClassifyOptions()
	read := func(component Component) (string, channel.RuntimeState, error) {
		if component == ComponentVoice {
			return "voice-state.json", channel.RuntimeState{
				Health: channel.TransportHealthSnapshot{FailureStreak: 5},
			}, nil
		}
		return healthyReader(0, 0)(component)
	}
	snap := BuildSnapshot(1000, read, opts, PolicyPosture{})
	require.Equal(t, GateHold, snap.RolloutGate)
	require.Equal(t, channel.HealthFailing, snap.HealthState)
}

func TestBuildSnapshotAllHealthyYieldsGoGate(t *testing.T) {
	read := healthyReader(0, 0)
	snap := BuildSnapshot(1000, read, channel.DefaultClassifyOptions(), PolicyPosture{})
	require.Equal(t, GateGo, snap.RolloutGate)
	require.Equal(t, channel.HealthHealthy, snap.HealthState)
}

func TestSaveLoadSnapshotRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap := BuildSnapshot(1000, healthyReader(0, 0), channel.DefaultClassifyOptions(), PolicyPosture{PairingStrictMode: true})

	require.NoError(t, SaveSnapshot(path, snap))
	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, snap, loaded)
}

func TestLoadSnapshotToleratesMissingFile(t *testing.T) {
	loaded, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Equal(t, Snapshot{}, loaded)
}

func TestDiffReportsStableWhenRowsUnchanged(t *testing.T) {
	snap := BuildSnapshot(1000, healthyReader(0, 0), channel.DefaultClassifyOptions(), PolicyPosture{})
	report := Diff(snap, snap)
	for _, c := range report.Components {
		require.Equal(t, DriftStable, c.State)
	}
	require.Equal(t, RiskLow, report.Risk)
}

func TestDiffClassifiesRegressionAsHighRiskWhenGateHolds(t *testing.T) {
	before := BuildSnapshot(1000, healthyReader(0, 0), channel.DefaultClassifyOptions(), PolicyPosture{})
	after := BuildSnapshot(2000, func(c Component) (string, channel.RuntimeState, error) {
		if c == ComponentGateway {
			return "gateway-state.json", channel.RuntimeState{
				Health: channel.TransportHealthSnapshot{FailureStreak: 5},
			}, nil
		}
		return healthyReader(0, 0)(c)
	}, channel.DefaultClassifyOptions(), PolicyPosture{})

	report := Diff(before, after)
	require.Equal(t, RiskHigh, report.Risk)

	var gatewayDrift ComponentDrift
	for _, c := range report.Components {
		if c.Component == ComponentGateway {
			gatewayDrift = c
		}
	}
	require.Equal(t, DriftRegressed, gatewayDrift.State)
}
