package toolpolicy

import "context"

// ApprovalDecision is the structured outcome of an approval-gate check.
type ApprovalDecision struct {
	Allowed           bool
	ApprovalRequestID string
	ApprovalRuleID    string
	ReasonCode        string
}

// ApprovalService submits a typed tool action for human-in-the-loop
// approval, generalizing the teacher's agent/hitl gate.
type ApprovalService interface {
	RequestApproval(ctx context.Context, tool ToolKind, inv Invocation) (ApprovalDecision, error)
}

// AutoApprove approves every request; used when no approval rules are
// configured.
type AutoApprove struct{}

func (AutoApprove) RequestApproval(context.Context, ToolKind, Invocation) (ApprovalDecision, error) {
	return ApprovalDecision{Allowed: true}, nil
}

// ExtensionDecision is the structured outcome of the extension-policy
// override gate.
type ExtensionDecision struct {
	Allowed          bool
	DeniedBy         string
	Reason           string
	Diagnostics      string
	PermissionDenied bool
}

// ExtensionHooks invokes configured extension hooks with a structured
// action; the first denier wins.
type ExtensionHooks interface {
	Evaluate(ctx context.Context, tool ToolKind, inv Invocation) (ExtensionDecision, error)
}

// NoExtensions is the no-op extension-hook set used when no override
// root is configured.
type NoExtensions struct{}

func (NoExtensions) Evaluate(context.Context, ToolKind, Invocation) (ExtensionDecision, error) {
	return ExtensionDecision{Allowed: true}, nil
}
