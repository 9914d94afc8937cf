package contracts

import (
	"strings"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

// gatewaySupportedErrors is the closed set of malformed-input error
// codes the gateway runtime's fixtures may name.
var gatewaySupportedErrors = map[string]bool{
	"missing_required_field": true,
	"invalid_payload":        true,
	"unsupported_schema":     true,
}

// GatewayValidator checks gateway-specific fixture invariants.
type GatewayValidator struct{}

func (GatewayValidator) SupportedErrorCodes() map[string]bool { return gatewaySupportedErrors }

// ValidateCaseFields requires success cases to name a non-empty route
// (the evaluator lowercases it; the validator does not check case).
func (GatewayValidator) ValidateCaseFields(c ContractCase) error {
	if c.ExpectedOutcome == channel.OutcomeSuccess {
		route := stringField(c.Fields, "route")
		if strings.TrimSpace(route) == "" {
			return tauerrors.Newf(tauerrors.CodeMissingField, "gateway case %q: success cases require a non-empty route", c.CaseID)
		}
	}
	return nil
}

// gatewayResponse builds the normalized {route, accepted} response body
// for a successful gateway replay case.
func gatewayResponse(c channel.Case) (any, error) {
	route := strings.ToLower(strings.TrimSpace(stringField(c.Payload, "route")))
	return map[string]any{
		"route":    route,
		"accepted": true,
	}, nil
}

// NewGatewayEvaluator builds the gateway domain's replay evaluator.
func NewGatewayEvaluator() DomainEvaluator {
	return DomainEvaluator{Domain: "gateway", BuildResponse: gatewayResponse}
}
