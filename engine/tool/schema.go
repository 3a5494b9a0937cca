package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	kjsonschema "github.com/kaptinlin/jsonschema"
)

// SchemaFor reflects a parameter struct into a JSON-schema map suitable for
// a Definition. Reflection failures fall back to an open object schema so a
// tool never becomes uncallable over schema trouble.
func SchemaFor(params any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(params)
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	return out
}

// ValidateParams checks params against the definition's schema. A nil or
// empty schema accepts anything.
func ValidateParams(def Definition, params map[string]any) error {
	if len(def.Parameters) == 0 {
		return nil
	}
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool: marshal schema for %q: %w", def.Name, err)
	}
	compiled, err := kjsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return fmt.Errorf("tool: compile schema for %q: %w", def.Name, err)
	}
	result := compiled.Validate(params)
	if !result.Valid {
		return fmt.Errorf("tool: invalid parameters for %q: %v", def.Name, result.Errors)
	}
	return nil
}
