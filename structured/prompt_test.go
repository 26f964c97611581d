package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanoutllm/fanout/types"
)

func TestInstructionMessage(t *testing.T) {
	schema, err := types.SchemaFromFields(map[string]string{"title": "string"})
	require.NoError(t, err)

	msg, err := InstructionMessage(schema)
	require.NoError(t, err)
	assert.Equal(t, types.RoleSystem, msg.Role)
	assert.Contains(t, msg.Content, "JSON Schema")
	assert.Contains(t, msg.Content, `"title"`)
}

func TestInstructionMessageDeterministic(t *testing.T) {
	schema, err := types.SchemaFromFields(map[string]string{"a": "string", "b": "integer"})
	require.NoError(t, err)

	m1, err := InstructionMessage(schema)
	require.NoError(t, err)
	m2, err := InstructionMessage(schema)
	require.NoError(t, err)
	assert.Equal(t, m1, m2, "instruction block must be byte-stable for prefix grouping")
}

func TestCorrectiveMessage(t *testing.T) {
	msg := CorrectiveMessage(&ValidationErrors{Errors: []ParseError{{Path: "year", Message: "required field is missing"}}})
	assert.Equal(t, types.RoleUser, msg.Role)
	assert.Contains(t, msg.Content, "year")
	assert.Contains(t, msg.Content, "corrected JSON")
}
