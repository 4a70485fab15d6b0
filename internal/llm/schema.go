package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema describes the JSON object a call expects, sent as a structured output
// format when the backend supports it.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// SchemaFor reflects T into a strict JSON schema.
func SchemaFor[T any](name, description string) *Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	strictObject(m)
	return &Schema{Name: name, Description: description, Definition: m}
}

// strictObject marks every object closed and every property required.
func strictObject(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			schema["required"] = required
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, prop := range props {
			if m, ok := prop.(map[string]any); ok {
				strictObject(m)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		strictObject(items)
	}
}
