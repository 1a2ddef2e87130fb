package segue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToolDescriptor describes one tool declared by a remote tool server.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      InputSchema
}

// InputSchema is the JSON-Schema-shaped input declaration of a tool.
// Order preserves the property declaration order from the wire form so
// argument assembly is deterministic.
type InputSchema struct {
	Properties map[string]Property
	Order      []string
	Required   []string
}

// Property is one declared input parameter.
type Property struct {
	Type        string     `json:"type"`
	Enum        []any      `json:"enum,omitempty"`
	Description string     `json:"description,omitempty"`
	Default     any        `json:"default,omitempty"`
	AnyOf       []Property `json:"anyOf,omitempty"`
}

// EnumValues returns the property's enum, looking under anyOf branches when
// the top level declares none.
func (p Property) EnumValues() []any {
	if len(p.Enum) > 0 {
		return p.Enum
	}
	for _, alt := range p.AnyOf {
		if len(alt.Enum) > 0 {
			return alt.Enum
		}
	}
	return nil
}

// IsRequired reports whether name appears in the schema's required list.
func (s InputSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// HasProperty reports whether the schema declares name.
func (s InputSchema) HasProperty(name string) bool {
	_, ok := s.Properties[name]
	return ok
}

// ParseInputSchema decodes a raw JSON schema, preserving property order.
// Unknown or absent schemas parse to an empty InputSchema rather than
// failing: some servers declare tools with no inputs.
func ParseInputSchema(raw json.RawMessage) (InputSchema, error) {
	schema := InputSchema{Properties: map[string]Property{}}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return schema, nil
	}

	var envelope struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return schema, fmt.Errorf("input schema: %w", err)
	}
	schema.Required = envelope.Required

	if len(envelope.Properties) == 0 {
		return schema, nil
	}

	// Token-walk the properties object so declaration order survives.
	dec := json.NewDecoder(bytes.NewReader(envelope.Properties))
	tok, err := dec.Token()
	if err != nil {
		return schema, fmt.Errorf("input schema properties: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return schema, fmt.Errorf("input schema properties: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return schema, fmt.Errorf("input schema properties: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return schema, fmt.Errorf("input schema properties: non-string key %v", keyTok)
		}
		var prop Property
		if err := dec.Decode(&prop); err != nil {
			return schema, fmt.Errorf("input schema property %q: %w", name, err)
		}
		schema.Properties[name] = prop
		schema.Order = append(schema.Order, name)
	}
	return schema, nil
}
