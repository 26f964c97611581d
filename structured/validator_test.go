package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanoutllm/fanout/types"
)

func movieSchema(t *testing.T) *types.JSONSchema {
	t.Helper()
	schema, err := types.SchemaFromFields(map[string]string{
		"title": "string",
		"year":  "integer",
		"tags":  "list",
	})
	require.NoError(t, err)
	return schema
}

func TestValidateAccepted(t *testing.T) {
	v := NewValidator()
	data := []byte(`{"title":"Arrival","year":2016,"tags":["sci-fi","drama"]}`)
	assert.NoError(t, v.Validate(data, movieSchema(t)))
}

func TestValidateMissingRequiredField(t *testing.T) {
	v := NewValidator()
	err := v.Validate([]byte(`{"title":"Arrival","tags":[]}`), movieSchema(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "year")
	assert.Contains(t, err.Error(), "missing")
}

func TestValidateTypeMismatch(t *testing.T) {
	v := NewValidator()
	err := v.Validate([]byte(`{"title":"Arrival","year":"2016","tags":[]}`), movieSchema(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integer")
}

func TestValidateIntegerRejectsFraction(t *testing.T) {
	v := NewValidator()
	err := v.Validate([]byte(`{"title":"Arrival","year":2016.5,"tags":[]}`), movieSchema(t))
	assert.Error(t, err)
}

func TestValidateArrayItems(t *testing.T) {
	v := NewValidator()
	err := v.Validate([]byte(`{"title":"Arrival","year":2016,"tags":["ok",7]}`), movieSchema(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tags[1]")
}

func TestValidateInvalidJSON(t *testing.T) {
	v := NewValidator()
	err := v.Validate([]byte(`{"title":`), movieSchema(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestValidateEnum(t *testing.T) {
	v := NewValidator()
	schema := types.NewObjectSchema().
		AddProperty("level", &types.JSONSchema{Type: types.SchemaTypeString, Enum: []any{"low", "high"}}).
		AddRequired("level")

	assert.NoError(t, v.Validate([]byte(`{"level":"low"}`), schema))
	assert.Error(t, v.Validate([]byte(`{"level":"medium"}`), schema))
}

func TestValidateNumericBounds(t *testing.T) {
	v := NewValidator()
	min, max := 0.0, 1.0
	schema := types.NewObjectSchema().
		AddProperty("score", &types.JSONSchema{Type: types.SchemaTypeNumber, Minimum: &min, Maximum: &max}).
		AddRequired("score")

	assert.NoError(t, v.Validate([]byte(`{"score":0.5}`), schema))
	assert.Error(t, v.Validate([]byte(`{"score":1.5}`), schema))
	assert.Error(t, v.Validate([]byte(`{"score":-0.1}`), schema))
}

func TestValidateNilSchemaAcceptsAnything(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate([]byte(`"free text"`), nil))
}
