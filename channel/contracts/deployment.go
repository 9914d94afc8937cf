package contracts

import (
	"strings"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

var deploymentSupportedErrors = map[string]bool{
	"missing_wasm_artifact":  true,
	"invalid_payload":        true,
	"missing_required_field": true,
}

// DeploymentValidator enforces the WASM contract supplemented from
// original_source's deployment_contract.rs: a success case must carry
// either wasm_module or wasm_manifest.
type DeploymentValidator struct{}

func (DeploymentValidator) SupportedErrorCodes() map[string]bool { return deploymentSupportedErrors }

func (DeploymentValidator) ValidateCaseFields(c ContractCase) error {
	if c.ExpectedOutcome != channel.OutcomeSuccess {
		return nil
	}
	module := stringField(c.Fields, "wasm_module")
	manifest := stringField(c.Fields, "wasm_manifest")
	if strings.TrimSpace(module) == "" && strings.TrimSpace(manifest) == "" {
		return tauerrors.Newf(tauerrors.CodeMissingField, "deployment case %q: success cases require wasm_module or wasm_manifest", c.CaseID)
	}
	return nil
}

func deploymentResponse(c channel.Case) (any, error) {
	module := strings.TrimSpace(stringField(c.Payload, "wasm_module"))
	manifest := strings.TrimSpace(stringField(c.Payload, "wasm_manifest"))
	kind := "module"
	if module == "" {
		kind = "manifest"
	}
	return map[string]any{
		"kind":          kind,
		"wasm_module":   module,
		"wasm_manifest": manifest,
		"deployed":      true,
	}, nil
}

// NewDeploymentEvaluator builds the deployment domain's replay evaluator.
func NewDeploymentEvaluator() DomainEvaluator {
	return DomainEvaluator{Domain: "deployment", BuildResponse: deploymentResponse}
}
