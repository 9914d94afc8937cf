package channel_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njfio/tau/channel"
)

// fixtureEvaluator reproduces the deterministic evaluator contract: given
// a Case, it always returns the outcome baked into the case itself.
type fixtureEvaluator struct {
	calls map[string]int
}

func newFixtureEvaluator() *fixtureEvaluator {
	return &fixtureEvaluator{calls: map[string]int{}}
}

func (e *fixtureEvaluator) EvaluateCase(c channel.Case) (channel.EvalResult, error) {
	e.calls[c.CaseID]++
	switch c.ExpectedOutcome {
	case channel.OutcomeSuccess:
		return channel.EvalResult{Outcome: channel.OutcomeSuccess, StatusCode: 200, RoutedKey: c.CaseID, ReplyText: "ok"}, nil
	case channel.OutcomeMalformedInput:
		return channel.EvalResult{Outcome: channel.OutcomeMalformedInput, StatusCode: 400, ErrorCode: c.ExpectedErrorCode}, nil
	case channel.OutcomeRetryableFailure:
		return channel.EvalResult{Outcome: channel.OutcomeRetryableFailure, StatusCode: 503}, nil
	default:
		return channel.EvalResult{Outcome: channel.OutcomeSuccess}, nil
	}
}

type recordingHandler struct {
	successes []string
	malformed []string
}

func (h *recordingHandler) OnSuccess(_ context.Context, c channel.Case, _ channel.EvalResult) (string, any, error) {
	h.successes = append(h.successes, c.CaseID)
	return c.CaseID, map[string]string{"case_id": c.CaseID}, nil
}

func (h *recordingHandler) OnMalformed(_ context.Context, c channel.Case, _ channel.EvalResult) error {
	h.malformed = append(h.malformed, c.CaseID)
	return nil
}

func boundaryFixture() []channel.Case {
	return []channel.Case{
		{
			CaseID:          "case-success",
			Kind:            channel.EventKindMessage,
			EventID:         "evt-success",
			ConversationID:  "conv-1",
			ExpectedOutcome: channel.OutcomeSuccess,
		},
		{
			CaseID:            "case-malformed",
			Kind:              channel.EventKindMessage,
			EventID:           "evt-malformed",
			ConversationID:    "conv-1",
			ExpectedOutcome:   channel.OutcomeMalformedInput,
			ExpectedErrorCode: "missing_required_field",
		},
		{
			CaseID:                   "case-retryable",
			Kind:                     channel.EventKindMessage,
			EventID:                  "evt-retryable",
			ConversationID:           "conv-1",
			ExpectedOutcome:          channel.OutcomeRetryableFailure,
			SimulateRetryableFailure: true,
		},
	}
}

func TestRunOnceBoundaryScenario(t *testing.T) {
	dir := t.TempDir()
	cfg := channel.DefaultRuntimeConfig("gateway")
	cfg.RetryMaxAttempts = 2
	cfg.RetryBaseDelayMs = 0
	rt := channel.NewRuntime(dir, cfg, nil)

	state, err := rt.LoadState()
	require.NoError(t, err)

	evaluator := newFixtureEvaluator()
	handler := &recordingHandler{}

	report, err := rt.RunOnce(context.Background(), boundaryFixture(), evaluator, handler, state)
	require.NoError(t, err)

	require.Equal(t, 3, report.Discovered)
	require.Equal(t, 3, report.Queued)
	require.Equal(t, 1, report.Applied)
	require.Equal(t, 1, report.Malformed)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 0, report.Duplicates)
	require.Equal(t, 1, report.RetryAttempts)
	require.Equal(t, 1, report.FailureStreak)
	require.ElementsMatch(t, []channel.ReasonCode{
		channel.ReasonMalformedObserved,
		channel.ReasonRetryAttempted,
		channel.ReasonRetryableObserved,
		channel.ReasonCaseProcessingFailed,
		channel.ReasonRoutedCasesUpdated,
	}, report.ReasonCodes)

	require.Equal(t, []string{"case-success"}, handler.successes)
	require.Equal(t, []string{"case-malformed"}, handler.malformed)
	require.Equal(t, 2, evaluator.calls["case-retryable"])
	require.Equal(t, 1, evaluator.calls["case-success"])
	require.Equal(t, 1, evaluator.calls["case-malformed"])

	require.True(t, state.ProcessedKeys.Contains(channel.EventKey("message:evt-success")))
	require.True(t, state.ProcessedKeys.Contains(channel.EventKey("message:evt-malformed")))
	require.False(t, state.ProcessedKeys.Contains(channel.EventKey("message:evt-retryable")))

	// Second cycle on the same fixture: the resolved cases are skipped as
	// duplicates, the unresolved retryable case is re-evaluated and fails
	// again.
	evaluator2 := newFixtureEvaluator()
	handler2 := &recordingHandler{}
	report2, err := rt.RunOnce(context.Background(), boundaryFixture(), evaluator2, handler2, state)
	require.NoError(t, err)

	require.Equal(t, 2, report2.Duplicates)
	require.Equal(t, 0, report2.Applied)
	require.Equal(t, 0, report2.Malformed)
	require.Equal(t, 1, report2.Failed)
	require.Equal(t, 2, report2.FailureStreak)

	_, err = os.Stat(dir + "/gateway-events.jsonl")
	require.NoError(t, err)
	_, err = os.Stat(dir + "/state.json")
	require.NoError(t, err)
}

func TestRunOnceQueueBackpressure(t *testing.T) {
	dir := t.TempDir()
	cfg := channel.DefaultRuntimeConfig("gateway")
	cfg.QueueLimit = 1
	rt := channel.NewRuntime(dir, cfg, nil)

	state, err := rt.LoadState()
	require.NoError(t, err)

	cases := []channel.Case{
		{CaseID: "a", Kind: channel.EventKindMessage, EventID: "evt-a", ExpectedOutcome: channel.OutcomeSuccess},
		{CaseID: "b", Kind: channel.EventKindMessage, EventID: "evt-b", ExpectedOutcome: channel.OutcomeSuccess},
	}

	report, err := rt.RunOnce(context.Background(), cases, newFixtureEvaluator(), &recordingHandler{}, state)
	require.NoError(t, err)

	require.Equal(t, 2, report.Discovered)
	require.Equal(t, 1, report.Queued)
	require.Equal(t, 1, report.Applied)
	require.Contains(t, report.ReasonCodes, channel.ReasonQueueBackpressure)
}

func TestRunOnceRateLimitsAdmissionWithoutDroppingCases(t *testing.T) {
	dir := t.TempDir()
	cfg := channel.DefaultRuntimeConfig("gateway")
	cfg.QueueRatePerSec = 1000 // high enough to never block this test
	rt := channel.NewRuntime(dir, cfg, nil)

	state, err := rt.LoadState()
	require.NoError(t, err)

	cases := []channel.Case{
		{CaseID: "a", Kind: channel.EventKindMessage, EventID: "evt-a", ExpectedOutcome: channel.OutcomeSuccess},
		{CaseID: "b", Kind: channel.EventKindMessage, EventID: "evt-b", ExpectedOutcome: channel.OutcomeSuccess},
	}

	report, err := rt.RunOnce(context.Background(), cases, newFixtureEvaluator(), &recordingHandler{}, state)
	require.NoError(t, err)
	require.Equal(t, 2, report.Discovered)
	require.Equal(t, 2, report.Queued)
	require.Equal(t, 2, report.Applied)
}

func TestRunOnceRateLimitAbortsOnCanceledContext(t *testing.T) {
	dir := t.TempDir()
	cfg := channel.DefaultRuntimeConfig("gateway")
	cfg.QueueRatePerSec = 1
	cfg.QueueLimit = 5
	rt := channel.NewRuntime(dir, cfg, nil)

	state, err := rt.LoadState()
	require.NoError(t, err)

	fiveCases := func(prefix string) []channel.Case {
		cases := make([]channel.Case, 0, 5)
		for i := 0; i < 5; i++ {
			id := prefix + string(rune('a'+i))
			cases = append(cases, channel.Case{CaseID: id, Kind: channel.EventKindMessage, EventID: id, ExpectedOutcome: channel.OutcomeSuccess})
		}
		return cases
	}

	// The first cycle consumes the full initial burst immediately.
	_, err = rt.RunOnce(context.Background(), fiveCases("first-"), newFixtureEvaluator(), &recordingHandler{}, state)
	require.NoError(t, err)

	// The second cycle needs the bucket to refill over several seconds;
	// a canceled context must fail admission rather than block.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rt.RunOnce(ctx, fiveCases("second-"), newFixtureEvaluator(), &recordingHandler{}, state)
	require.Error(t, err)
}

func TestRunOnceContractDriftAbortsCycle(t *testing.T) {
	dir := t.TempDir()
	rt := channel.NewRuntime(dir, channel.DefaultRuntimeConfig("gateway"), nil)

	state, err := rt.LoadState()
	require.NoError(t, err)

	// Evaluator always returns success, but the case expects malformed
	// input: a drift between contract expectation and evaluator output.
	cases := []channel.Case{
		{CaseID: "a", Kind: channel.EventKindMessage, EventID: "evt-a", ExpectedOutcome: channel.OutcomeMalformedInput},
	}
	evaluator := &alwaysSuccessEvaluator{}

	_, err = rt.RunOnce(context.Background(), cases, evaluator, &recordingHandler{}, state)
	require.Error(t, err)
}

type alwaysSuccessEvaluator struct{}

func (alwaysSuccessEvaluator) EvaluateCase(c channel.Case) (channel.EvalResult, error) {
	return channel.EvalResult{Outcome: channel.OutcomeSuccess, RoutedKey: c.CaseID}, nil
}
