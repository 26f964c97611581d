package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFromFields(t *testing.T) {
	schema, err := SchemaFromFields(map[string]string{
		"title":   "string",
		"year":    "integer",
		"score":   "number",
		"watched": "boolean",
		"tags":    "list",
	})
	require.NoError(t, err)

	assert.Equal(t, SchemaTypeObject, schema.Type)
	assert.Len(t, schema.Properties, 5)
	assert.ElementsMatch(t, []string{"title", "year", "score", "watched", "tags"}, schema.Required)
	assert.Equal(t, SchemaTypeInteger, schema.Properties["year"].Type)
	assert.Equal(t, SchemaTypeArray, schema.Properties["tags"].Type)
	assert.Equal(t, SchemaTypeString, schema.Properties["tags"].Items.Type)
}

func TestSchemaFromFieldsRejectsUnknownType(t *testing.T) {
	_, err := SchemaFromFields(map[string]string{"x": "blob"})
	assert.Error(t, err)

	_, err = SchemaFromFields(nil)
	assert.Error(t, err)
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("name", &JSONSchema{Type: SchemaTypeString}).
		AddRequired("name")

	data, err := schema.ToJSON()
	require.NoError(t, err)

	parsed, err := SchemaFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, SchemaTypeObject, parsed.Type)
	assert.Equal(t, SchemaTypeString, parsed.Properties["name"].Type)
	assert.Equal(t, []string{"name"}, parsed.Required)
}

func TestValidateMessages(t *testing.T) {
	assert.Error(t, ValidateMessages(nil))
	assert.Error(t, ValidateMessages([]Message{{Role: "robot", Content: "hi"}}))
	assert.Error(t, ValidateMessages([]Message{{Role: RoleUser}}))
	assert.NoError(t, ValidateMessages([]Message{
		NewSystemMessage("you are helpful"),
		NewUserMessage("hi"),
	}))
}
