package contracts

import (
	"strings"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

var multiChannelSupportedErrors = map[string]bool{
	"unsupported_transport":  true,
	"invalid_payload":        true,
	"missing_required_field": true,
}

// MultiChannelValidator requires success cases to name a supported
// canonical transport.
type MultiChannelValidator struct{}

func (MultiChannelValidator) SupportedErrorCodes() map[string]bool {
	return multiChannelSupportedErrors
}

func (MultiChannelValidator) ValidateCaseFields(c ContractCase) error {
	if c.ExpectedOutcome != channel.OutcomeSuccess {
		return nil
	}
	transport := strings.ToLower(strings.TrimSpace(stringField(c.Fields, "transport")))
	switch channel.Transport(transport) {
	case channel.TransportTelegram, channel.TransportDiscord, channel.TransportWhatsApp, channel.TransportSlack:
		return nil
	default:
		return tauerrors.Newf(tauerrors.CodeMissingField, "multi-channel case %q: unsupported or missing transport %q", c.CaseID, transport)
	}
}

func multiChannelResponse(c channel.Case) (any, error) {
	transport := strings.ToLower(strings.TrimSpace(stringField(c.Payload, "transport")))
	return map[string]any{
		"transport": transport,
		"relayed":   true,
	}, nil
}

// NewMultiChannelEvaluator builds the multi-channel domain's replay
// evaluator.
func NewMultiChannelEvaluator() DomainEvaluator {
	return DomainEvaluator{Domain: "multi_channel", BuildResponse: multiChannelResponse}
}
