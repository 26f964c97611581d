// Package structured parses and validates provider output against a JSON
// Schema contract, and builds the instruction blocks that steer providers
// toward conforming output.
package structured

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fanoutllm/fanout/types"
)

// ParseError represents a validation error with a field path.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Validator checks decoded JSON values against a types.JSONSchema.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates JSON data against a schema. A nil schema accepts
// anything.
func (v *Validator) Validate(data []byte, schema *types.JSONSchema) error {
	if schema == nil {
		return nil
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{
			Errors: []ParseError{{Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}

	var errs []ParseError
	v.validateValue(value, schema, "", &errs)
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func (v *Validator) validateValue(value any, schema *types.JSONSchema, path string, errs *[]ParseError) {
	if schema == nil {
		return
	}

	if len(schema.Enum) > 0 {
		found := false
		for _, enumVal := range schema.Enum {
			if equalValues(value, enumVal) {
				found = true
				break
			}
		}
		if !found {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value must be one of: %v", schema.Enum)})
		}
	}

	switch schema.Type {
	case types.SchemaTypeString:
		if _, ok := value.(string); !ok {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected string, got %s", jsonTypeName(value))})
		}
	case types.SchemaTypeBoolean:
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected boolean, got %s", jsonTypeName(value))})
		}
	case types.SchemaTypeNumber:
		num, ok := value.(float64)
		if !ok {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected number, got %s", jsonTypeName(value))})
			return
		}
		v.validateBounds(num, schema, path, errs)
	case types.SchemaTypeInteger:
		num, ok := value.(float64)
		if !ok || num != math.Trunc(num) {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected integer, got %s", jsonTypeName(value))})
			return
		}
		v.validateBounds(num, schema, path, errs)
	case types.SchemaTypeObject:
		v.validateObject(value, schema, path, errs)
	case types.SchemaTypeArray:
		v.validateArray(value, schema, path, errs)
	}
}

func (v *Validator) validateBounds(num float64, schema *types.JSONSchema, path string, errs *[]ParseError) {
	if schema.Minimum != nil && num < *schema.Minimum {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value %v is less than minimum %v", num, *schema.Minimum)})
	}
	if schema.Maximum != nil && num > *schema.Maximum {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value %v exceeds maximum %v", num, *schema.Maximum)})
	}
}

func (v *Validator) validateObject(value any, schema *types.JSONSchema, path string, errs *[]ParseError) {
	obj, ok := value.(map[string]any)
	if !ok {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected object, got %s", jsonTypeName(value))})
		return
	}

	for _, name := range schema.Required {
		if _, present := obj[name]; !present {
			*errs = append(*errs, ParseError{Path: joinPath(path, name), Message: "required field is missing"})
		}
	}

	for name, propSchema := range schema.Properties {
		if propValue, present := obj[name]; present {
			v.validateValue(propValue, propSchema, joinPath(path, name), errs)
		}
	}

	if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
		for name := range obj {
			if _, declared := schema.Properties[name]; !declared {
				*errs = append(*errs, ParseError{Path: joinPath(path, name), Message: "additional field is not allowed"})
			}
		}
	}
}

func (v *Validator) validateArray(value any, schema *types.JSONSchema, path string, errs *[]ParseError) {
	arr, ok := value.([]any)
	if !ok {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected array, got %s", jsonTypeName(value))})
		return
	}
	if schema.Items != nil {
		for i, item := range arr {
			v.validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	}
}

func equalValues(a, b any) bool {
	// JSON decoding yields float64 for all numbers; normalize before compare.
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
