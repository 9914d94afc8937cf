// Package contracts implements the deterministic, pure contract
// evaluators for each channel domain (gateway, deployment, voice,
// multi-agent, multi-channel, memory), grounded on the teacher's
// agent/guardrails fixture-driven test harness and generalized to
// channel.Evaluator.
package contracts

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

// ContractFixture is an ordered list of ContractCase a runtime must
// reproduce exactly, per spec §3.
type ContractFixture struct {
	SchemaVersion int            `json:"schema_version" yaml:"schema_version"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Cases         []ContractCase `json:"cases" yaml:"cases"`
}

// ContractCase is one fixture case.
type ContractCase struct {
	CaseID                   string          `json:"case_id" yaml:"case_id"`
	ExpectedOutcome          channel.Outcome `json:"outcome" yaml:"outcome"`
	ExpectedErrorCode        string          `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	SimulateRetryableFailure bool            `json:"simulate_retryable_failure" yaml:"simulate_retryable_failure"`
	Fields                   map[string]any  `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// CurrentFixtureSchemaVersion is the only accepted fixture schema version.
const CurrentFixtureSchemaVersion = 1

// LoadFixture reads a YAML or JSON contract fixture from path, chosen by
// extension (".yaml"/".yml" vs everything else treated as JSON).
func LoadFixture(path string) (*ContractFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fixture ContractFixture
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &fixture); err != nil {
			return nil, tauerrors.New(tauerrors.CodeParseFailure, "failed to parse contract fixture yaml").WithCause(err)
		}
	} else {
		if err := json.Unmarshal(data, &fixture); err != nil {
			return nil, tauerrors.New(tauerrors.CodeParseFailure, "failed to parse contract fixture json").WithCause(err)
		}
	}
	return &fixture, nil
}

// Validator is implemented by each domain to check fixture cases use
// only supported error codes and satisfy domain-specific cross-field
// constraints, per spec §4.3.
type Validator interface {
	SupportedErrorCodes() map[string]bool
	ValidateCaseFields(c ContractCase) error
}

// ValidateFixture checks the universal invariants (schema version,
// unique case ids, simulate_retryable_failure agreement, malformed
// cases naming a supported error code) plus domain-specific constraints
// via validator.
func ValidateFixture(fixture *ContractFixture, validator Validator) error {
	if fixture.SchemaVersion != CurrentFixtureSchemaVersion {
		return tauerrors.Newf(tauerrors.CodeUnsupportedSchema, "unsupported contract fixture schema version %d", fixture.SchemaVersion)
	}

	seen := make(map[string]bool, len(fixture.Cases))
	for _, c := range fixture.Cases {
		if seen[c.CaseID] {
			return tauerrors.Newf(tauerrors.CodeDuplicateCaseID, "duplicate case_id %q", c.CaseID)
		}
		seen[c.CaseID] = true

		wantsRetry := c.ExpectedOutcome == channel.OutcomeRetryableFailure
		if c.SimulateRetryableFailure != wantsRetry {
			return tauerrors.Newf(tauerrors.CodeUnsupportedOutcome,
				"case %q: simulate_retryable_failure=%v must equal (outcome==retryable_failure)", c.CaseID, c.SimulateRetryableFailure)
		}

		switch c.ExpectedOutcome {
		case channel.OutcomeSuccess, channel.OutcomeMalformedInput, channel.OutcomeRetryableFailure:
			// supported
		default:
			return tauerrors.Newf(tauerrors.CodeUnsupportedOutcome, "case %q: unsupported outcome %q", c.CaseID, c.ExpectedOutcome)
		}

		if c.ExpectedOutcome == channel.OutcomeMalformedInput {
			if c.ExpectedErrorCode == "" || (validator != nil && !validator.SupportedErrorCodes()[c.ExpectedErrorCode]) {
				return tauerrors.Newf(tauerrors.CodeUnsupportedError, "case %q: unsupported or missing error_code %q", c.CaseID, c.ExpectedErrorCode)
			}
		}

		if validator != nil {
			if err := validator.ValidateCaseFields(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToRuntimeCases converts an ordered fixture's cases to channel.Case
// values sorted by case_id (the runtime re-sorts, but sorting here keeps
// fixture replay deterministic independent of file order too).
func ToRuntimeCases(fixture *ContractFixture, kind channel.EventKind, conversationID string) []channel.Case {
	cases := make([]channel.Case, len(fixture.Cases))
	for i, c := range fixture.Cases {
		cases[i] = channel.Case{
			CaseID:                   c.CaseID,
			Kind:                     kind,
			EventID:                  c.CaseID,
			ConversationID:           conversationID,
			ExpectedOutcome:          c.ExpectedOutcome,
			ExpectedErrorCode:        c.ExpectedErrorCode,
			SimulateRetryableFailure: c.SimulateRetryableFailure,
			Payload:                  c.Fields,
		}
	}
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].CaseID < cases[j].CaseID })
	return cases
}
