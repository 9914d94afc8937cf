// Package toolpolicy implements the ordered tool-invocation gate chain
// of spec §4.5, grounded on the teacher's agent/guardrails and
// agent/hitl packages (the teacher's own approval-gate and RBAC-style
// guardrail chain, generalized to the full nine-gate pipeline).
package toolpolicy

// ToolKind is the closed tag set of tool action kinds the approval and
// extension gates discriminate on.
type ToolKind string

const (
	ToolBash    ToolKind = "ToolBash"
	ToolWrite   ToolKind = "ToolWrite"
	ToolEdit    ToolKind = "ToolEdit"
	ToolCommand ToolKind = "Command"
)

// SandboxMode is the closed tag set for OS sandbox resolution.
type SandboxMode string

const (
	SandboxOff   SandboxMode = "off"
	SandboxAuto  SandboxMode = "auto"
	SandboxForce SandboxMode = "force"
)

// Policy is the immutable per-invocation tool policy of spec §3.
type Policy struct {
	AllowedRoots                []string
	AllowedCommands             []string
	BashProfile                 string
	OSSandboxMode               SandboxMode
	OSSandboxCommandTemplate    string
	EnforceRegularFiles         bool
	BashTimeoutMs               int
	MaxCommandLength            int
	MaxCommandOutputBytes       int
	MaxOutputBytesPerSec        int
	MaxFileReadBytes            int
	MaxFileWriteBytes           int
	AllowCommandNewlines        bool
	RBACPrincipal               string
	RBACPolicyPath              string
	ExtensionPolicyOverrideRoot string
	ToolPolicyTrace             bool
}

// Invocation is one tool call submitted to the pipeline.
type Invocation struct {
	Tool    ToolKind
	Command string
	Cwd     string
	DryRun  bool
	Payload map[string]any
}

// Decision is the closed tag set for a gate or overall outcome.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// TraceEntry is one gate's recorded outcome, in evaluation order.
type TraceEntry struct {
	Check   string   `json:"check"`
	Outcome Decision `json:"outcome"`
	Detail  string   `json:"detail,omitempty"`
}

// Result is the pipeline's final payload.
type Result struct {
	PolicyDecision Decision     `json:"policy_decision"`
	PolicyRule     string       `json:"policy_rule,omitempty"`
	ReasonCode     string       `json:"reason_code,omitempty"`
	Error          string       `json:"error,omitempty"`
	Trace          []TraceEntry `json:"policy_trace,omitempty"`

	WouldExecute bool   `json:"would_execute,omitempty"`
	Success      bool   `json:"success,omitempty"`
	Status       *int   `json:"status,omitempty"`
	Stdout       string `json:"stdout,omitempty"`
	Stderr       string `json:"stderr,omitempty"`

	// Denial detail fields, populated by whichever gate denied.
	MatchedRole       string `json:"matched_role,omitempty"`
	MatchedPattern    string `json:"matched_pattern,omitempty"`
	ApprovalRequestID string `json:"approval_request_id,omitempty"`
	ApprovalRuleID    string `json:"approval_rule_id,omitempty"`
	DeniedBy          string `json:"denied_by,omitempty"`
	Diagnostics       string `json:"diagnostics,omitempty"`
	PermissionDenied  bool   `json:"permission_denied,omitempty"`
	Hint              string `json:"hint,omitempty"`
}
