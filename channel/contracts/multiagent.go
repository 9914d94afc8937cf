package contracts

import (
	"strings"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

var multiAgentSupportedErrors = map[string]bool{
	"unknown_agent_role":     true,
	"invalid_payload":        true,
	"missing_required_field": true,
}

// MultiAgentValidator requires success cases to name a non-empty agent
// role and task.
type MultiAgentValidator struct{}

func (MultiAgentValidator) SupportedErrorCodes() map[string]bool { return multiAgentSupportedErrors }

func (MultiAgentValidator) ValidateCaseFields(c ContractCase) error {
	if c.ExpectedOutcome != channel.OutcomeSuccess {
		return nil
	}
	if strings.TrimSpace(stringField(c.Fields, "agent_role")) == "" {
		return tauerrors.Newf(tauerrors.CodeMissingField, "multi-agent case %q: success cases require agent_role", c.CaseID)
	}
	if strings.TrimSpace(stringField(c.Fields, "task")) == "" {
		return tauerrors.Newf(tauerrors.CodeMissingField, "multi-agent case %q: success cases require task", c.CaseID)
	}
	return nil
}

func multiAgentResponse(c channel.Case) (any, error) {
	role := strings.ToLower(strings.TrimSpace(stringField(c.Payload, "agent_role")))
	task := strings.TrimSpace(stringField(c.Payload, "task"))
	return map[string]any{
		"agent_role": role,
		"task":       task,
		"dispatched": true,
	}, nil
}

// NewMultiAgentEvaluator builds the multi-agent domain's replay evaluator.
func NewMultiAgentEvaluator() DomainEvaluator {
	return DomainEvaluator{Domain: "multi_agent", BuildResponse: multiAgentResponse}
}
