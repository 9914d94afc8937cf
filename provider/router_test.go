package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	err  *RouteError
	resp CompletionResponse
}

func (c *scriptedClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	r := c.responses[idx]
	if r.err != nil {
		return CompletionResponse{}, r.err
	}
	r.resp.Model = req.Model
	return r.resp, nil
}

func (c *scriptedClient) CompleteStream(ctx context.Context, req CompletionRequest, onDelta func(Delta)) (CompletionResponse, error) {
	resp, err := c.Complete(ctx, req)
	if err == nil {
		onDelta(Delta{Model: resp.Model, Content: resp.Content, Done: true})
	}
	return resp, err
}

func TestFallbackOnRetryableStatus(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{{err: &RouteError{Kind: ErrorKindHTTPStatus, Status: 429}}}}
	secondary := &scriptedClient{responses: []scriptedResponse{{resp: CompletionResponse{Content: "ok"}}}}

	router := NewRouter([]Route{
		{Provider: "openai", Model: "openai/gpt-4o-mini", Client: primary},
		{Provider: "anthropic", Model: "anthropic/claude-sonnet-4", Client: secondary},
	}, DefaultBreakerConfig(), nil)

	var events []Event
	resp, err := router.Complete(context.Background(), CompletionRequest{}, func(e Event) { events = append(events, e) })
	require.NoError(t, err)
	require.Equal(t, "anthropic/claude-sonnet-4", resp.Model)

	var fallback *Event
	for i := range events {
		if events[i].Kind == EventFallback {
			fallback = &events[i]
		}
	}
	require.NotNil(t, fallback)
	require.Equal(t, "openai/gpt-4o-mini", fallback.FromModel)
	require.Equal(t, "anthropic/claude-sonnet-4", fallback.ToModel)
	require.Equal(t, string(ErrorKindHTTPStatus), fallback.ErrorKind)
	require.Equal(t, 429, fallback.Status)
	require.Equal(t, 1, fallback.FallbackIndex)
}

func TestNonRetryableErrorReturnsImmediately(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{{err: &RouteError{Kind: ErrorKindHTTPStatus, Status: 401}}}}
	secondary := &scriptedClient{responses: []scriptedResponse{{resp: CompletionResponse{Content: "unreached"}}}}

	router := NewRouter([]Route{
		{Provider: "openai", Model: "m1", Client: primary},
		{Provider: "anthropic", Model: "m2", Client: secondary},
	}, DefaultBreakerConfig(), nil)

	_, err := router.Complete(context.Background(), CompletionRequest{}, nil)
	require.Error(t, err)
	require.Equal(t, 0, secondary.calls)
}

func TestCircuitBreakerOpensAndReclaimsAfterCooldown(t *testing.T) {
	failing := &scriptedClient{responses: []scriptedResponse{
		{err: &RouteError{Kind: ErrorKindHTTPStatus, Status: 503}},
	}}
	backup := &scriptedClient{responses: []scriptedResponse{{resp: CompletionResponse{Content: "ok"}}}}

	router := NewRouter([]Route{
		{Provider: "p", Model: "m1", Client: failing},
		{Provider: "backup", Model: "m2", Client: backup},
	}, BreakerConfig{FailureThreshold: 2, CooldownMs: 5000}, nil)

	fakeNow := time.Unix(1_700_000_000, 0)
	router.now = func() time.Time { return fakeNow }

	var skipEvents int
	sink := func(e Event) {
		if e.Kind == EventCircuitSkip {
			skipEvents++
		}
	}

	// Two consecutive 503s open the route.
	_, err := router.Complete(context.Background(), CompletionRequest{}, sink)
	require.NoError(t, err) // first call falls back to backup and succeeds
	_, err = router.Complete(context.Background(), CompletionRequest{}, sink)
	require.NoError(t, err)

	require.Equal(t, 0, skipEvents)

	// Still within cooldown: route skipped.
	_, err = router.Complete(context.Background(), CompletionRequest{}, sink)
	require.NoError(t, err)
	require.Equal(t, 1, skipEvents)

	// After cooldown elapses, route is attempted again.
	fakeNow = fakeNow.Add(5*time.Second + time.Millisecond)
	failing.responses = []scriptedResponse{{err: &RouteError{Kind: ErrorKindHTTPStatus, Status: 503}}}
	failing.calls = 0
	_, err = router.Complete(context.Background(), CompletionRequest{}, sink)
	require.NoError(t, err)
	require.Equal(t, 1, failing.calls, "route must be retried once cooldown elapses")
}

func TestNonRetryable401NeverOpensCircuit(t *testing.T) {
	failing := &scriptedClient{responses: []scriptedResponse{
		{err: &RouteError{Kind: ErrorKindHTTPStatus, Status: 401}},
	}}
	router := NewRouter([]Route{{Provider: "p", Model: "m1", Client: failing}}, BreakerConfig{FailureThreshold: 1, CooldownMs: 5000}, nil)

	_, err := router.Complete(context.Background(), CompletionRequest{}, nil)
	require.Error(t, err)

	// Route must still be attempted (not skipped) on a second call.
	_, err = router.Complete(context.Background(), CompletionRequest{}, nil)
	require.Error(t, err)
	require.Equal(t, 2, failing.calls)
}

func TestAllRoutesOpenFailsFast(t *testing.T) {
	failing := &scriptedClient{responses: []scriptedResponse{{err: &RouteError{Kind: ErrorKindHTTPStatus, Status: 500}}}}
	router := NewRouter([]Route{{Provider: "p", Model: "m1", Client: failing}}, BreakerConfig{FailureThreshold: 1, CooldownMs: 60_000}, nil)

	_, err := router.Complete(context.Background(), CompletionRequest{}, nil)
	require.Error(t, err)

	_, err = router.Complete(context.Background(), CompletionRequest{}, nil)
	require.Error(t, err)
	_, isAllOpen := err.(*ErrAllRoutesOpen)
	require.True(t, isAllOpen)
}

func TestStreamingDeltasFromFailedRouteDoNotLeak(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{{err: &RouteError{Kind: ErrorKindHTTPStatus, Status: 429}}}}
	secondary := &scriptedClient{responses: []scriptedResponse{{resp: CompletionResponse{Content: "secondary-content"}}}}

	router := NewRouter([]Route{
		{Provider: "p", Model: "m1", Client: primary},
		{Provider: "backup", Model: "m2", Client: secondary},
	}, DefaultBreakerConfig(), nil)

	var deltas []Delta
	_, err := router.CompleteWithStream(context.Background(), CompletionRequest{}, func(d Delta) {
		deltas = append(deltas, d)
	}, nil)
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	require.Equal(t, "m2", deltas[0].Model)
}
