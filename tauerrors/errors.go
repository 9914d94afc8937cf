// Package tauerrors is the unified error taxonomy for the Tau control
// plane, generalizing the teacher's types.Error pattern to the
// contract/validation, policy-denial, transport/runtime, secret/credential
// and RPC error classes of the specification.
package tauerrors

import "fmt"

// Code identifies a machine-readable error class shared across components.
type Code string

// Contract / validation codes.
const (
	CodeUnsupportedSchema  Code = "unsupported_schema"
	CodeDuplicateCaseID    Code = "duplicate_case_id"
	CodeUnsupportedOutcome Code = "unsupported_outcome"
	CodeUnsupportedError   Code = "unsupported_error_code"
	CodeMissingField       Code = "missing_required_field"
)

// Policy denial codes.
const (
	CodePolicyDenied       Code = "policy_denied"
	CodeRBACDenied         Code = "rbac_denied"
	CodeApprovalDenied     Code = "approval_denied"
	CodeExtensionDenied    Code = "extension_denied"
	CodeSandboxUnavailable Code = "sandbox_unavailable"
)

// Transport / runtime codes.
const (
	CodeRetryableFailure    Code = "retryable_failure"
	CodeNonRetryableFailure Code = "non_retryable_failure"
	CodeParseFailure        Code = "parse_failure"
	CodeIdempotencyConflict Code = "idempotency_conflict"
	CodeQueueOverflow       Code = "queue_overflow"
)

// Secret / credential codes.
const (
	CodeEmptyKey         Code = "empty_key_material"
	CodeShortKey         Code = "short_key_material"
	CodeTagMismatch      Code = "tag_mismatch"
	CodeTruncatedPayload Code = "truncated_payload"
	CodeNonUTF8Plaintext Code = "non_utf8_plaintext"
	CodeEmptyPlaintext   Code = "empty_plaintext"
	CodeMissingPrefix    Code = "missing_enc_prefix"
	CodeReauthRequired   Code = "reauth_required"
)

// RPC codes — the canonical set referenced by capabilities.response.
const (
	CodeInvalidJSON     Code = "invalid_json"
	CodeInvalidPayload  Code = "invalid_payload"
	CodeUnsupportedKind Code = "unsupported_kind"
)

// CanonicalRPCCodes is the closed error-code set advertised during
// capability negotiation (§4.4). Order is stable for deterministic output.
var CanonicalRPCCodes = []Code{
	CodeInvalidPayload,
	CodeUnsupportedSchema,
	CodeUnsupportedKind,
	CodeInvalidJSON,
}

// Error is a structured error carrying a Code, a human message, an
// optional remediation hint, and an optional wrapped cause. It never
// embeds secret material — callers constructing credential errors must
// pass only non-sensitive context.
type Error struct {
	Code      Code
	Message   string
	Hint      string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHint attaches a remediation hint surfaced to operators/tool callers.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithRetryable marks whether the caller should retry.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
