package tool

import (
	"encoding/json"
	"sort"
)

// ParameterSpec describes a single argument in an InputSchema.
type ParameterSpec struct {
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Items       *ParameterSpec `json:"items,omitempty"`
	Enum        []string       `json:"enum,omitempty"`
}

// InputSchema is the JSON schema of a tool's arguments. It is always an object.
type InputSchema struct {
	Type                 string         `json:"type"`
	Properties           map[string]any `json:"properties"`
	Required             []string       `json:"required"`
	Defs                 map[string]any `json:"$defs,omitempty"`
	AdditionalProperties *bool          `json:"additionalProperties,omitempty"`
}

// Object builds an InputSchema from parameter specs.
func Object(props map[string]ParameterSpec, required ...string) InputSchema {
	s := InputSchema{
		Type:       "object",
		Properties: make(map[string]any, len(props)),
		Required:   required,
	}
	for name, spec := range props {
		s.Properties[name] = spec
	}
	return s
}

// MarshalJSON always emits type, properties and required.
func (s InputSchema) MarshalJSON() ([]byte, error) {
	type alias InputSchema
	out := alias(s)
	out.Type = "object"
	if out.Properties == nil {
		out.Properties = map[string]any{}
	}
	if out.Required == nil {
		out.Required = []string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any JSON schema object, keeping the fields InputSchema models.
func (s *InputSchema) UnmarshalJSON(data []byte) error {
	type alias InputSchema
	var in alias
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = InputSchema(in)
	if s.Type == "" {
		s.Type = "object"
	}
	return nil
}

// Map returns the schema as a generic JSON object.
func (s InputSchema) Map() map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

// PropertyNames returns the property names in sorted order.
func (s InputSchema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Strict returns a copy in which every property is required and no
// additional properties are allowed.
func (s InputSchema) Strict() InputSchema {
	out := s
	out.Required = s.PropertyNames()
	no := false
	out.AdditionalProperties = &no
	return out
}
