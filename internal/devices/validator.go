package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/switch-descriptors-v1.json
var switchDescriptorsSchemaJSON string

// Validator checks descriptor documents against the embedded JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("switch-descriptors-v1.json",
		strings.NewReader(switchDescriptorsSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("switch-descriptors-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDescriptors validates a raw descriptor document.
func (v *Validator) ValidateDescriptors(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// DecodeDescriptors validates and decodes a descriptor document.
func (v *Validator) DecodeDescriptors(data []byte) ([]types.SwitchDescriptor, error) {
	if err := v.ValidateDescriptors(data); err != nil {
		return nil, err
	}

	var descriptors []types.SwitchDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal descriptors: %w", err)
	}

	return descriptors, nil
}
