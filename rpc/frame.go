// Package rpc implements the versioned JSON-RPC/NDJSON frame schema,
// capability negotiation, and run lifecycle state machine of spec §4.4,
// grounded on the teacher's api/ JSON handler conventions and its
// agentflow.go request/response envelope shapes.
package rpc

import (
	"encoding/json"

	"github.com/njfio/tau/tauerrors"
)

// CurrentSchemaVersion is the current RPC frame schema version. 0 is
// accepted only during capability negotiation.
const CurrentSchemaVersion = 1

// Kind is the closed tag set of frame kinds.
type Kind string

// Request kinds.
const (
	KindCapabilitiesRequest Kind = "capabilities.request"
	KindRunStart            Kind = "run.start"
	KindRunCancel           Kind = "run.cancel"
	KindRunComplete         Kind = "run.complete"
	KindRunFail             Kind = "run.fail"
	KindRunTimeout          Kind = "run.timeout"
	KindRunStatus           Kind = "run.status"
)

// Response kinds.
const (
	KindCapabilitiesResponse Kind = "capabilities.response"
	KindRunAccepted          Kind = "run.accepted"
	KindRunStatusResponse    Kind = "run.status"
	KindRunCompleted         Kind = "run.completed"
	KindRunFailed            Kind = "run.failed"
	KindRunTimedOut          Kind = "run.timed_out"
	KindRunCancelled         Kind = "run.cancelled"
	KindError                Kind = "error"
)

// Stream-event kinds.
const (
	KindStreamToolEvents    Kind = "run.stream.tool_events"
	KindStreamAssistantText Kind = "run.stream.assistant_text"
)

// RequestKinds is the canonical ordered set advertised during
// capability negotiation.
var RequestKinds = []Kind{
	KindCapabilitiesRequest, KindRunStart, KindRunCancel, KindRunComplete,
	KindRunFail, KindRunTimeout, KindRunStatus,
}

// ResponseKinds is the canonical ordered set advertised during
// capability negotiation.
var ResponseKinds = []Kind{
	KindCapabilitiesResponse, KindRunAccepted, KindRunStatusResponse,
	KindRunCompleted, KindRunFailed, KindRunTimedOut, KindRunCancelled, KindError,
}

// StreamEventKinds is the canonical ordered set advertised during
// capability negotiation.
var StreamEventKinds = []Kind{KindStreamToolEvents, KindStreamAssistantText}

// TerminalState is the closed tag set a Run settles into.
type TerminalState string

const (
	TerminalCompleted TerminalState = "completed"
	TerminalFailed    TerminalState = "failed"
	TerminalTimedOut  TerminalState = "timed_out"
	TerminalCancelled TerminalState = "cancelled"
)

// TerminalStates is the canonical ordered set advertised during
// capability negotiation.
var TerminalStates = []TerminalState{TerminalCompleted, TerminalFailed, TerminalTimedOut, TerminalCancelled}

// terminalKindFor maps a terminal state to its canonical response kind
// on both the request-response channel and the stream-event echo.
var terminalKindFor = map[TerminalState]Kind{
	TerminalCompleted: KindRunCompleted,
	TerminalFailed:    KindRunFailed,
	TerminalTimedOut:  KindRunTimedOut,
	TerminalCancelled: KindRunCancelled,
}

// Frame is one RPC message, request or response, exchanged one-per-line
// as NDJSON.
type Frame struct {
	SchemaVersion int            `json:"schema_version"`
	RequestID     string         `json:"request_id,omitempty"`
	Kind          Kind           `json:"kind"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// ErrorFrame is the payload shape carried on a kind="error" Frame.
type ErrorFrame struct {
	Code      tauerrors.Code `json:"code"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
}

// NewErrorFrame builds an error-kind Frame for requestID.
func NewErrorFrame(requestID string, code tauerrors.Code, message string) Frame {
	return Frame{
		SchemaVersion: CurrentSchemaVersion,
		RequestID:     requestID,
		Kind:          KindError,
		Payload: map[string]any{
			"code":       string(code),
			"request_id": requestID,
			"message":    message,
		},
	}
}

// ParseFrame decodes one JSON line into a Frame.
func ParseFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, tauerrors.New(tauerrors.CodeInvalidJSON, "invalid rpc frame json").WithCause(err)
	}
	return f, nil
}

// Encode marshals the frame as a single JSON line (no trailing newline).
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
