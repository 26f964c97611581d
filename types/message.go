// Package types provides core types shared across the fanout module.
// This package has ZERO dependencies on other fanout packages to avoid
// circular imports. All other packages should import types from here.
package types

import "fmt"

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents one turn of a conversation sent to a provider.
// Messages are value types and are compared byte-for-byte when grouping
// requests for prefix caching, so they carry no timestamps or metadata.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ValidateMessages checks that a message sequence is well formed: non-empty,
// every role valid, every content present.
func ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("message sequence is empty")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("message %d: empty content", i)
		}
	}
	return nil
}
