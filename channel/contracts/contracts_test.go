package contracts_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/channel/contracts"
	"github.com/njfio/tau/tauerrors"
)

func TestValidateFixtureRejectsDuplicateCaseID(t *testing.T) {
	fixture := &contracts.ContractFixture{
		SchemaVersion: contracts.CurrentFixtureSchemaVersion,
		Cases: []contracts.ContractCase{
			{CaseID: "a", ExpectedOutcome: channel.OutcomeSuccess, Fields: map[string]any{"route": "r1"}},
			{CaseID: "a", ExpectedOutcome: channel.OutcomeSuccess, Fields: map[string]any{"route": "r2"}},
		},
	}
	err := contracts.ValidateFixture(fixture, contracts.GatewayValidator{})
	require.Error(t, err)
	require.Equal(t, tauerrors.CodeDuplicateCaseID, tauerrors.CodeOf(err))
}

func TestValidateFixtureRequiresRetryFlagAgreement(t *testing.T) {
	fixture := &contracts.ContractFixture{
		SchemaVersion: contracts.CurrentFixtureSchemaVersion,
		Cases: []contracts.ContractCase{
			{CaseID: "a", ExpectedOutcome: channel.OutcomeSuccess, SimulateRetryableFailure: true, Fields: map[string]any{"route": "r1"}},
		},
	}
	err := contracts.ValidateFixture(fixture, contracts.GatewayValidator{})
	require.Error(t, err)
}

func TestValidateFixtureRequiresSupportedErrorCode(t *testing.T) {
	fixture := &contracts.ContractFixture{
		SchemaVersion: contracts.CurrentFixtureSchemaVersion,
		Cases: []contracts.ContractCase{
			{CaseID: "a", ExpectedOutcome: channel.OutcomeMalformedInput, ExpectedErrorCode: "not_a_real_code"},
		},
	}
	err := contracts.ValidateFixture(fixture, contracts.GatewayValidator{})
	require.Error(t, err)
	require.Equal(t, tauerrors.CodeUnsupportedError, tauerrors.CodeOf(err))
}

func TestDeploymentValidatorRequiresWasmField(t *testing.T) {
	v := contracts.DeploymentValidator{}
	err := v.ValidateCaseFields(contracts.ContractCase{
		CaseID:          "d1",
		ExpectedOutcome: channel.OutcomeSuccess,
		Fields:          map[string]any{},
	})
	require.Error(t, err)

	err = v.ValidateCaseFields(contracts.ContractCase{
		CaseID:          "d2",
		ExpectedOutcome: channel.OutcomeSuccess,
		Fields:          map[string]any{"wasm_module": "mod.wasm"},
	})
	require.NoError(t, err)
}

func TestMemoryValidatorRequiresPriorEntriesOnRetrieve(t *testing.T) {
	v := contracts.MemoryValidator{}
	err := v.ValidateCaseFields(contracts.ContractCase{
		CaseID:          "m1",
		ExpectedOutcome: channel.OutcomeSuccess,
		Fields:          map[string]any{"operation": "retrieve"},
	})
	require.Error(t, err)
}

func TestGatewayEvaluatorRoundTripsExpectedOutcomes(t *testing.T) {
	eval := contracts.NewGatewayEvaluator()

	success, err := eval.EvaluateCase(channel.Case{
		CaseID:          "s1",
		ExpectedOutcome: channel.OutcomeSuccess,
		Payload:         map[string]any{"route": "Echo"},
	})
	require.NoError(t, err)
	require.Equal(t, channel.OutcomeSuccess, success.Outcome)
	require.Equal(t, map[string]any{"route": "echo", "accepted": true}, success.ResponseBody)

	malformed, err := eval.EvaluateCase(channel.Case{
		CaseID:            "m1",
		ExpectedOutcome:   channel.OutcomeMalformedInput,
		ExpectedErrorCode: "missing_required_field",
	})
	require.NoError(t, err)
	require.Equal(t, channel.OutcomeMalformedInput, malformed.Outcome)
	require.Equal(t, "missing_required_field", malformed.ErrorCode)
}

func TestRankMemoryEntriesOrdersByScoreThenTieBreakers(t *testing.T) {
	entries := []contracts.MemoryEntry{
		{MemoryID: "low", Summary: "nothing relevant here", RecencyWeightBps: 100, ConfidenceBps: 100},
		{MemoryID: "tagged", Summary: "x", Tags: []string{"golang"}, RecencyWeightBps: 100, ConfidenceBps: 100},
		{MemoryID: "summary-hit", Summary: "a note about golang routing", RecencyWeightBps: 50, ConfidenceBps: 50},
		{MemoryID: "fact-hit", Summary: "x", Facts: []string{"uses golang internally"}, RecencyWeightBps: 100, ConfidenceBps: 100},
		{MemoryID: "tie-a", Summary: "golang", RecencyWeightBps: 10, ConfidenceBps: 10},
		{MemoryID: "tie-b", Summary: "golang", RecencyWeightBps: 10, ConfidenceBps: 10},
	}

	ranked := contracts.RankMemoryEntries([]string{"golang"}, entries, 10)
	require.Len(t, ranked, 6)
	// tagged (+3) ranks first; summary-hit, tie-a and tie-b all score +2,
	// and summary-hit wins on recency_weight_bps (50 vs 10).
	require.Equal(t, "tagged", ranked[0].MemoryID)
	require.Equal(t, "summary-hit", ranked[1].MemoryID)
	// tie-a and tie-b score identically on every field except memory_id.
	require.Equal(t, "tie-a", ranked[2].MemoryID)
	require.Equal(t, "tie-b", ranked[3].MemoryID)
	// fact-hit (+1) ranks below every +2 entry, above low (0).
	require.Equal(t, "fact-hit", ranked[4].MemoryID)
	require.Equal(t, "low", ranked[5].MemoryID)
}

func TestRankMemoryEntriesTruncatesToLimit(t *testing.T) {
	entries := []contracts.MemoryEntry{
		{MemoryID: "a", Summary: "golang"},
		{MemoryID: "b", Summary: "golang"},
		{MemoryID: "c", Summary: "golang"},
	}
	ranked := contracts.RankMemoryEntries([]string{"golang"}, entries, 2)
	require.Len(t, ranked, 2)
}
