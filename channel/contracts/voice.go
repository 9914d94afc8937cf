package contracts

import (
	"strings"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

var voiceSupportedErrors = map[string]bool{
	"missing_audio_payload":  true,
	"unsupported_codec":      true,
	"missing_required_field": true,
}

// VoiceValidator requires success cases to carry a non-empty transcript
// or an audio_ref.
type VoiceValidator struct{}

func (VoiceValidator) SupportedErrorCodes() map[string]bool { return voiceSupportedErrors }

func (VoiceValidator) ValidateCaseFields(c ContractCase) error {
	if c.ExpectedOutcome != channel.OutcomeSuccess {
		return nil
	}
	transcript := stringField(c.Fields, "transcript")
	audioRef := stringField(c.Fields, "audio_ref")
	if strings.TrimSpace(transcript) == "" && strings.TrimSpace(audioRef) == "" {
		return tauerrors.Newf(tauerrors.CodeMissingField, "voice case %q: success cases require transcript or audio_ref", c.CaseID)
	}
	return nil
}

func voiceResponse(c channel.Case) (any, error) {
	transcript := strings.TrimSpace(stringField(c.Payload, "transcript"))
	return map[string]any{
		"transcript":  transcript,
		"synthesized": transcript != "",
	}, nil
}

// NewVoiceEvaluator builds the voice domain's replay evaluator.
func NewVoiceEvaluator() DomainEvaluator {
	return DomainEvaluator{Domain: "voice", BuildResponse: voiceResponse}
}
