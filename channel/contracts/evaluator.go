package contracts

import (
	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

// ResponseBuilder constructs the domain-specific success response body
// for a case, normalizing enums to lowercase and trimming strings as
// spec §4.3 requires of every contract evaluator.
type ResponseBuilder func(c channel.Case) (any, error)

// DomainEvaluator is the shared replay-engine shape every domain
// evaluator is built from: it reproduces the case's expected outcome
// deterministically, attaching a domain-specific response body on
// success. It is a pure function of its input Case.
type DomainEvaluator struct {
	Domain          string
	BuildResponse   ResponseBuilder
	SuccessStatus   int
	MalformedStatus int
	FailureStatus   int
}

// EvaluateCase implements channel.Evaluator.
func (d DomainEvaluator) EvaluateCase(c channel.Case) (channel.EvalResult, error) {
	successStatus := d.SuccessStatus
	if successStatus == 0 {
		successStatus = 200
	}
	malformedStatus := d.MalformedStatus
	if malformedStatus == 0 {
		malformedStatus = 400
	}
	failureStatus := d.FailureStatus
	if failureStatus == 0 {
		failureStatus = 503
	}

	switch c.ExpectedOutcome {
	case channel.OutcomeSuccess:
		var body any
		var err error
		if d.BuildResponse != nil {
			body, err = d.BuildResponse(c)
			if err != nil {
				return channel.EvalResult{}, err
			}
		}
		return channel.EvalResult{
			Outcome:      channel.OutcomeSuccess,
			StatusCode:   successStatus,
			ResponseBody: body,
			RoutedKey:    d.Domain + ":" + c.CaseID,
			ReplyText:    "ok",
		}, nil

	case channel.OutcomeMalformedInput:
		return channel.EvalResult{
			Outcome:    channel.OutcomeMalformedInput,
			StatusCode: malformedStatus,
			ErrorCode:  c.ExpectedErrorCode,
		}, nil

	case channel.OutcomeRetryableFailure:
		return channel.EvalResult{
			Outcome:    channel.OutcomeRetryableFailure,
			StatusCode: failureStatus,
			ErrorCode:  "retryable_failure",
		}, nil

	default:
		return channel.EvalResult{}, tauerrors.Newf(tauerrors.CodeUnsupportedOutcome, "%s evaluator: unsupported outcome %q", d.Domain, c.ExpectedOutcome)
	}
}

// stringField reads a string field from a case's payload, defaulting to
// "" when absent or not a string.
func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolField(payload map[string]any, key string) bool {
	if payload == nil {
		return false
	}
	if v, ok := payload[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func sliceField(payload map[string]any, key string) []any {
	if payload == nil {
		return nil
	}
	if v, ok := payload[key]; ok {
		if s, ok := v.([]any); ok {
			return s
		}
	}
	return nil
}
