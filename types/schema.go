package types

import (
	"encoding/json"
	"fmt"
)

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// JSONSchema represents a JSON Schema definition used as the structured
// output contract for a request.
type JSONSchema struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Type SchemaType `json:"type,omitempty"`

	// Object properties
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	// Array items
	Items *JSONSchema `json:"items,omitempty"`

	// Enum values
	Enum []any `json:"enum,omitempty"`

	// Numeric constraints
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
}

// NewObjectSchema creates a new object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       SchemaTypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeArray, Items: items}
}

// AddProperty adds a property to an object schema.
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired adds required field names.
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// ToJSON serializes the schema to JSON.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ToJSONIndent serializes the schema to indented JSON, the form embedded in
// schema instruction blocks.
func (s *JSONSchema) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// SchemaFromJSON deserializes a schema from JSON.
func SchemaFromJSON(data []byte) (*JSONSchema, error) {
	var schema JSONSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON schema: %w", err)
	}
	return &schema, nil
}

// SchemaFromFields builds an object schema from a flat field-name to type
// description, the shape callers supply as a response_schema. Every listed
// field is required. Supported type names: string, number (or float),
// integer (or int), boolean (or bool), list (array of strings).
func SchemaFromFields(fields map[string]string) (*JSONSchema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("response schema has no fields")
	}
	schema := NewObjectSchema()
	for name, typ := range fields {
		var prop *JSONSchema
		switch typ {
		case "string", "str", "text":
			prop = &JSONSchema{Type: SchemaTypeString}
		case "number", "float":
			prop = &JSONSchema{Type: SchemaTypeNumber}
		case "integer", "int":
			prop = &JSONSchema{Type: SchemaTypeInteger}
		case "boolean", "bool":
			prop = &JSONSchema{Type: SchemaTypeBoolean}
		case "list", "array":
			prop = NewArraySchema(&JSONSchema{Type: SchemaTypeString})
		default:
			return nil, fmt.Errorf("field %q: unsupported type %q", name, typ)
		}
		schema.AddProperty(name, prop)
		schema.AddRequired(name)
	}
	return schema, nil
}
