package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/invoicetools/extraction-service/internal/entity"
)

// BuildFieldSchema returns a JSON-Schema map derived from the configured
// field specs. Types are deliberately loose: the model may emit a number
// where a string default was given, or null for a missing date, because
// the field normalizer owns strict coercion. Extra keys are filtered out
// downstream and missing keys degrade to nil there too, so neither is a
// schema error; the schema only pins down the value shape of known fields.
func BuildFieldSchema(specs []entity.FieldSpec) map[string]any {
	props := make(map[string]any, len(specs))
	for _, f := range specs {
		props[f.Name] = map[string]any{
			"type": []string{"string", "number", "boolean", "null"},
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
