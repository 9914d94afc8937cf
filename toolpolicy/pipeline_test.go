package toolpolicy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateDeniesOverlongCommandWithTrace(t *testing.T) {
	p := Policy{
		MaxCommandLength: 12,
		ToolPolicyTrace:  true,
	}
	inv := Invocation{Tool: ToolBash, Command: "echo hello world longer"}

	res := Evaluate(context.Background(), p, inv, DefaultCollaborators())

	require.Equal(t, DecisionDeny, res.PolicyDecision)
	require.Equal(t, "max_command_length", res.PolicyRule)
	require.Len(t, res.Trace, 1)
	require.Equal(t, DecisionDeny, res.Trace[0].Outcome)
	require.Equal(t, "max_command_length", res.Trace[0].Check)
}

func TestEvaluateDeniesDisallowedExecutable(t *testing.T) {
	p := Policy{AllowedCommands: []string{"echo", "ls*"}, ToolPolicyTrace: true}
	inv := Invocation{Tool: ToolBash, Command: "rm -rf /tmp/x"}

	res := Evaluate(context.Background(), p, inv, DefaultCollaborators())

	require.Equal(t, DecisionDeny, res.PolicyDecision)
	require.Equal(t, "command_not_allowlisted", res.PolicyRule)
}

func TestEvaluateAllowsDryRunWithoutExecuting(t *testing.T) {
	p := Policy{ToolPolicyTrace: true}
	inv := Invocation{Tool: ToolBash, Command: "echo hi", DryRun: true}

	res := Evaluate(context.Background(), p, inv, DefaultCollaborators())

	require.Equal(t, DecisionAllow, res.PolicyDecision)
	require.True(t, res.WouldExecute)
	require.True(t, res.Success)
	require.Nil(t, res.Status)
}

type denyAllRBAC struct{}

func (denyAllRBAC) Check(context.Context, string, string, map[string]any) (RBACDecision, error) {
	return RBACDecision{Allowed: false, ReasonCode: "rbac_denied", MatchedRole: "viewer"}, nil
}

func TestEvaluateDeniesOnRBACRejection(t *testing.T) {
	p := Policy{ToolPolicyTrace: true, RBACPrincipal: "user-1"}
	inv := Invocation{Tool: ToolBash, Command: "echo hi", DryRun: true}

	collab := DefaultCollaborators()
	collab.RBAC = denyAllRBAC{}

	res := Evaluate(context.Background(), p, inv, collab)

	require.Equal(t, DecisionDeny, res.PolicyDecision)
	require.Equal(t, "rbac_denied", res.PolicyRule)
	require.Equal(t, "viewer", res.MatchedRole)
	require.Contains(t, res.Hint, "/rbac check")
}

type denyAllApprovals struct{}

func (denyAllApprovals) RequestApproval(context.Context, ToolKind, Invocation) (ApprovalDecision, error) {
	return ApprovalDecision{Allowed: false, ApprovalRequestID: "req-1", ReasonCode: "approval_denied"}, nil
}

func TestEvaluateDeniesOnApprovalRejection(t *testing.T) {
	p := Policy{ToolPolicyTrace: true}
	inv := Invocation{Tool: ToolBash, Command: "echo hi", DryRun: true}

	collab := DefaultCollaborators()
	collab.Approvals = denyAllApprovals{}

	res := Evaluate(context.Background(), p, inv, collab)

	require.Equal(t, DecisionDeny, res.PolicyDecision)
	require.Equal(t, "approval_denied", res.PolicyRule)
	require.Equal(t, "req-1", res.ApprovalRequestID)
	require.Contains(t, res.Hint, "/approvals approve")
}

func TestEvaluateDeniesCwdOutsideAllowedRoots(t *testing.T) {
	p := Policy{AllowedRoots: []string{"/workspace"}, ToolPolicyTrace: true}
	inv := Invocation{Tool: ToolBash, Command: "echo hi", Cwd: "/etc"}

	res := Evaluate(context.Background(), p, inv, DefaultCollaborators())

	require.Equal(t, DecisionDeny, res.PolicyDecision)
	require.Equal(t, "cwd_outside_allowed_roots", res.PolicyRule)
}

func TestLeadingExecutableSkipsEnvAssignments(t *testing.T) {
	require.Equal(t, "python3", leadingExecutable("FOO=bar BAZ=1 python3 script.py"))
	require.Equal(t, "echo", leadingExecutable("echo hi"))
}
