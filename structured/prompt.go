package structured

import (
	"fmt"
	"strings"

	"github.com/fanoutllm/fanout/types"
)

// InstructionMessage builds the system message that constrains a provider
// to schema-conforming JSON. The planner places it first in the message
// sequence so it becomes part of the cacheable prefix.
func InstructionMessage(schema *types.JSONSchema) (types.Message, error) {
	schemaJSON, err := schema.ToJSONIndent()
	if err != nil {
		return types.Message{}, fmt.Errorf("marshal schema: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You must respond with valid JSON conforming to the schema below.\n")
	sb.WriteString("Do not include any text before or after the JSON. ")
	sb.WriteString("Do not wrap the JSON in markdown code blocks. ")
	sb.WriteString("All required fields must be present with valid values.\n\n")
	sb.WriteString("JSON Schema:\n")
	sb.Write(schemaJSON)

	return types.NewSystemMessage(sb.String()), nil
}

// CorrectiveMessage builds the follow-up user instruction appended after an
// invalid reply, naming the concrete validation failures.
func CorrectiveMessage(validationErr error) types.Message {
	var sb strings.Builder
	sb.WriteString("The previous response was not valid JSON for the required schema")
	if validationErr != nil {
		sb.WriteString(": ")
		sb.WriteString(validationErr.Error())
	}
	sb.WriteString(". Respond again with only the corrected JSON object.")
	return types.NewUserMessage(sb.String())
}
