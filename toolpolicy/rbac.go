package toolpolicy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// RBACDecision is the structured outcome of an RBAC check.
type RBACDecision struct {
	Allowed        bool
	MatchedRole    string
	MatchedPattern string
	ReasonCode     string
}

// RBACChecker evaluates "(principal, action, payload)" against a policy.
type RBACChecker interface {
	Check(ctx context.Context, principal, action string, payload map[string]any) (RBACDecision, error)
}

// AllowAllRBAC is the no-op RBAC checker used when no policy path is
// configured.
type AllowAllRBAC struct{}

func (AllowAllRBAC) Check(context.Context, string, string, map[string]any) (RBACDecision, error) {
	return RBACDecision{Allowed: true}, nil
}

// OPARBACChecker evaluates a rego policy module at PolicyPath against
// "data.tau.rbac.allow", expecting the policy to also bind
// "data.tau.rbac.matched_role" / "data.tau.rbac.matched_pattern" when it
// denies, mirroring the teacher's RBAC-gate shape generalized onto OPA
// per the kubernaut-style authorization wiring.
type OPARBACChecker struct {
	PolicyPath string
	Query      string // defaults to "data.tau.rbac"
}

func (c OPARBACChecker) query() string {
	if c.Query != "" {
		return c.Query
	}
	return "data.tau.rbac"
}

// Check compiles and evaluates the configured rego module against the
// input document {principal, action, payload}.
func (c OPARBACChecker) Check(ctx context.Context, principal, action string, payload map[string]any) (RBACDecision, error) {
	input := map[string]any{
		"principal": principal,
		"action":    action,
		"payload":   payload,
	}

	r := rego.New(
		rego.Query(c.query()),
		rego.Load([]string{c.PolicyPath}, nil),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return RBACDecision{}, fmt.Errorf("rbac policy compile: %w", err)
	}
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return RBACDecision{}, fmt.Errorf("rbac policy eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return RBACDecision{Allowed: false, ReasonCode: "rbac_policy_empty_result"}, nil
	}

	bindings, _ := results[0].Expressions[0].Value.(map[string]any)
	decision := RBACDecision{ReasonCode: "rbac_denied"}
	if allowed, ok := bindings["allow"].(bool); ok {
		decision.Allowed = allowed
	}
	if role, ok := bindings["matched_role"].(string); ok {
		decision.MatchedRole = role
	}
	if pattern, ok := bindings["matched_pattern"].(string); ok {
		decision.MatchedPattern = pattern
	}
	return decision, nil
}
