// Package provider implements the Provider Fallback Router of
// specification §4.2: a single LLM-client contract that retries over an
// ordered list of (provider, model, client) routes, protected by a
// per-route circuit breaker grounded on the teacher's
// llm/circuitbreaker package.
package provider

import "context"

// CompletionRequest is the request shape the router forwards to each
// route's client, after substituting the route's model name. The wire
// shape of a concrete provider's HTTP request is an out-of-scope
// collaborator per §1; only the fields the router needs to reason about
// are modeled here.
type CompletionRequest struct {
	Model    string
	Messages []Message
}

// Message is a minimal chat message; concrete provider clients translate
// this into their own wire format.
type Message struct {
	Role    string
	Content string
}

// CompletionResponse is the generalized response returned by a route's
// client.
type CompletionResponse struct {
	Model   string
	Content string
}

// Delta is one streaming chunk forwarded to the caller's on_delta
// callback.
type Delta struct {
	Model   string
	Content string
	Done    bool
}

// Client is the minimal contract a concrete LLM provider client must
// satisfy to participate in the fallback router. Concrete clients
// (OpenAI, Anthropic, ...) are out-of-scope collaborators.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	CompleteStream(ctx context.Context, req CompletionRequest, onDelta func(Delta)) (CompletionResponse, error)
}

// Route is one (provider, model, client) entry in the fallback chain.
type Route struct {
	Provider string
	Model    string
	Client   Client
}
