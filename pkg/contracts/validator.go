// Package contracts validates downstream response payloads against the JSON
// schemas declared for each target. The gateway treats a violation as a
// warning signal, never as a request failure: upstream teams change payloads
// without notice, and the contract check is how the gateway notices first.
package contracts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schemas.yaml
var embeddedContracts []byte

// ContractSpec is the contract document declaring per-target response schemas
type ContractSpec struct {
	Contracts string                    `yaml:"contracts"`
	Info      ContractInfo              `yaml:"info"`
	Targets   map[string]TargetContract `yaml:"targets"`
}

// ContractInfo contains the contract document info section
type ContractInfo struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// TargetContract declares the response schema for one downstream target
type TargetContract struct {
	Description string      `yaml:"description"`
	Schema      interface{} `yaml:"schema"`
}

// ResponseValidator validates downstream response bodies against per-target
// schemas
type ResponseValidator struct {
	schemas  map[string]*jsonschema.Schema
	compiler *jsonschema.Compiler
	info     ContractInfo
}

// NewResponseValidator creates a validator from the embedded contract document
func NewResponseValidator() (*ResponseValidator, error) {
	return NewResponseValidatorFromBytes(embeddedContracts)
}

// NewResponseValidatorFromBytes creates a validator from contract document bytes
func NewResponseValidatorFromBytes(specBytes []byte) (*ResponseValidator, error) {
	var spec ContractSpec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse contract document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema)

	for target, contract := range spec.Targets {
		if contract.Schema == nil {
			continue
		}

		// Round-trip through JSON so the schema document carries JSON value
		// types regardless of how the YAML decoder typed it.
		schemaJSON, err := json.Marshal(contract.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for target %s: %w", target, err)
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to decode schema for target %s: %w", target, err)
		}

		schemaURI := fmt.Sprintf("contracts://targets/%s", target)
		if err := compiler.AddResource(schemaURI, doc); err != nil {
			return nil, fmt.Errorf("failed to register schema for target %s: %w", target, err)
		}

		compiled, err := compiler.Compile(schemaURI)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for target %s: %w", target, err)
		}

		schemas[target] = compiled
	}

	return &ResponseValidator{
		schemas:  schemas,
		compiler: compiler,
		info:     spec.Info,
	}, nil
}

// Validate checks a response body against the target's declared schema.
// Targets without a declared contract always validate; contract coverage is
// opt-in per target.
func (v *ResponseValidator) Validate(target string, payload []byte) error {
	schema, ok := v.schemas[target]
	if !ok {
		return nil
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("response from %s is not valid JSON: %w", target, err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("response contract violation for %s: %w", target, err)
	}

	return nil
}

// HasContract reports whether a schema is declared for the target
func (v *ResponseValidator) HasContract(target string) bool {
	_, ok := v.schemas[target]
	return ok
}

// Targets returns all targets that have declared contracts
func (v *ResponseValidator) Targets() []string {
	targets := make([]string, 0, len(v.schemas))
	for target := range v.schemas {
		targets = append(targets, target)
	}
	return targets
}

// Info returns the contract document info section
func (v *ResponseValidator) Info() ContractInfo {
	return v.info
}

// RegisterSchema adds a schema for a target from raw JSON schema bytes,
// replacing any declared contract
func (v *ResponseValidator) RegisterSchema(target string, schemaJSON []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("failed to decode schema: %w", err)
	}

	schemaURI := fmt.Sprintf("contracts://custom/%s", target)
	if err := v.compiler.AddResource(schemaURI, doc); err != nil {
		return fmt.Errorf("failed to register schema: %w", err)
	}

	compiled, err := v.compiler.Compile(schemaURI)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	v.schemas[target] = compiled
	return nil
}
