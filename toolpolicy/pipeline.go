package toolpolicy

import (
	"context"
)

// Collaborators bundles the pluggable gate implementations the pipeline
// composes; callers supply no-op defaults when a feature is unconfigured.
type Collaborators struct {
	RBAC       RBACChecker
	Approvals  ApprovalService
	Extensions ExtensionHooks
	Resolve    func(string) (string, error) // cwd canonicalization
	LookPath   func(string) (string, error)
}

// DefaultCollaborators returns the no-op set used when nothing is
// configured: allow-all RBAC, auto-approve, no extensions, identity cwd
// resolution.
func DefaultCollaborators() Collaborators {
	return Collaborators{
		RBAC:       AllowAllRBAC{},
		Approvals:  AutoApprove{},
		Extensions: NoExtensions{},
		Resolve:    func(s string) (string, error) { return s, nil },
	}
}

// Evaluate runs the invocation through the nine-gate chain in order,
// stopping at the first denial. When p.ToolPolicyTrace is set, every gate
// evaluated up to and including the terminal one is recorded in
// Result.Trace regardless of outcome.
func Evaluate(ctx context.Context, p Policy, inv Invocation, collab Collaborators) Result {
	if collab.Resolve == nil {
		collab.Resolve = func(s string) (string, error) { return s, nil }
	}
	if collab.RBAC == nil {
		collab.RBAC = AllowAllRBAC{}
	}
	if collab.Approvals == nil {
		collab.Approvals = AutoApprove{}
	}
	if collab.Extensions == nil {
		collab.Extensions = NoExtensions{}
	}

	var trace []TraceEntry
	record := func(check string, r gateResult) {
		if p.ToolPolicyTrace {
			trace = append(trace, TraceEntry{Check: check, Outcome: r.decision, Detail: r.detail})
		}
	}

	denyResult := func(check string, r gateResult) Result {
		record(check, r)
		res := Result{
			PolicyDecision: DecisionDeny,
			PolicyRule:     r.reasonCode,
			ReasonCode:     r.reasonCode,
			Error:          r.detail,
			Trace:          trace,
		}
		attachHint(&res, r.reasonCode)
		return res
	}

	// 1. length
	if r := lengthGate(p, inv); r.decision == DecisionDeny {
		return denyResult("max_command_length", r)
	} else {
		record("max_command_length", r)
	}

	// 2. newlines
	if r := newlineGate(p, inv); r.decision == DecisionDeny {
		return denyResult("command_newlines", r)
	} else {
		record("command_newlines", r)
	}

	// 3. allowlist
	if r := allowlistGate(p, inv); r.decision == DecisionDeny {
		return denyResult("allowlist", r)
	} else {
		record("allowlist", r)
	}

	// 4. cwd containment
	if r := cwdContainmentGate(p, inv, collab.Resolve); r.decision == DecisionDeny {
		return denyResult("cwd_containment", r)
	} else {
		record("cwd_containment", r)
	}

	// 5. RBAC
	principal := p.RBACPrincipal
	rbacDecision, err := collab.RBAC.Check(ctx, principal, "tool:"+string(inv.Tool), inv.Payload)
	if err != nil {
		r := deny("rbac_check_failed", err.Error())
		return denyResult("rbac", r)
	}
	if !rbacDecision.Allowed {
		reasonCode := rbacDecision.ReasonCode
		if reasonCode == "" {
			reasonCode = "rbac_denied"
		}
		r := deny(reasonCode, "rbac policy denied action")
		record("rbac", r)
		res := Result{
			PolicyDecision: DecisionDeny,
			PolicyRule:     reasonCode,
			ReasonCode:     reasonCode,
			MatchedRole:    rbacDecision.MatchedRole,
			MatchedPattern: rbacDecision.MatchedPattern,
			Trace:          trace,
		}
		attachHint(&res, reasonCode)
		return res
	}
	record("rbac", allow("rbac allowed"))

	// 6. approval
	approvalDecision, err := collab.Approvals.RequestApproval(ctx, inv.Tool, inv)
	if err != nil {
		r := deny("approval_check_failed", err.Error())
		return denyResult("approval", r)
	}
	if !approvalDecision.Allowed {
		reasonCode := approvalDecision.ReasonCode
		if reasonCode == "" {
			reasonCode = "approval_denied"
		}
		r := deny(reasonCode, "approval was not granted")
		record("approval", r)
		res := Result{
			PolicyDecision:    DecisionDeny,
			PolicyRule:        reasonCode,
			ReasonCode:        reasonCode,
			ApprovalRequestID: approvalDecision.ApprovalRequestID,
			ApprovalRuleID:    approvalDecision.ApprovalRuleID,
			Trace:             trace,
		}
		attachHint(&res, reasonCode)
		return res
	}
	record("approval", allow("approved"))

	// 7. extension override
	extDecision, err := collab.Extensions.Evaluate(ctx, inv.Tool, inv)
	if err != nil {
		r := deny("extension_check_failed", err.Error())
		return denyResult("extension", r)
	}
	if !extDecision.Allowed {
		reasonCode := "extension_denied"
		r := deny(reasonCode, extDecision.Reason)
		record("extension", r)
		res := Result{
			PolicyDecision:   DecisionDeny,
			PolicyRule:       reasonCode,
			ReasonCode:       reasonCode,
			DeniedBy:         extDecision.DeniedBy,
			Diagnostics:      extDecision.Diagnostics,
			PermissionDenied: extDecision.PermissionDenied,
			Trace:            trace,
		}
		attachHint(&res, reasonCode)
		return res
	}
	record("extension", allow("no extension override"))

	// 8. OS sandbox resolution
	resolved, err := ResolveSandbox(p, "/bin/bash", inv.Command, inv.Cwd, collab.LookPath)
	if err != nil {
		r := deny("sandbox_unavailable", err.Error())
		return denyResult("os_sandbox", r)
	}
	record("os_sandbox", allow(sandboxDetail(resolved)))

	// Dry-run short-circuits before the execution gate but still reports
	// the full trace, matching the pipeline's allow-path shape.
	if inv.DryRun {
		record("execute", allow("dry run, not executed"))
		return Result{
			PolicyDecision: DecisionAllow,
			WouldExecute:   true,
			Success:        true,
			Trace:          trace,
		}
	}

	// 9. execute
	execRes, err := runCommand(ctx, p, resolved)
	if err != nil {
		r := deny("execution_failed", err.Error())
		return denyResult("execute", r)
	}
	if execRes.TimedOut {
		r := deny("command_timed_out", "command exceeded bash_timeout_ms")
		record("execute", r)
		res := Result{
			PolicyDecision: DecisionDeny,
			PolicyRule:     "command_timed_out",
			ReasonCode:     "command_timed_out",
			Stdout:         execRes.Stdout,
			Stderr:         execRes.Stderr,
			Trace:          trace,
		}
		return res
	}
	record("execute", allow("executed"))
	status := execRes.Status
	return Result{
		PolicyDecision: DecisionAllow,
		Success:        execRes.Success,
		Status:         &status,
		Stdout:         execRes.Stdout,
		Stderr:         execRes.Stderr,
		Trace:          trace,
	}
}

func sandboxDetail(r ResolvedCommand) string {
	if r.Sandboxed {
		return "resolved sandboxed launcher"
	}
	return "no sandbox applied"
}

// attachHint attaches the documented remediation pointer for denial
// reason codes that have an operator-facing follow-up command.
func attachHint(res *Result, reasonCode string) {
	switch reasonCode {
	case "rbac_denied":
		res.Hint = "see `/rbac check` for the principal's effective role bindings"
	case "approval_denied":
		res.Hint = "see `/approvals approve` to grant this action"
	}
}
