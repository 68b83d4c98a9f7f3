package core

import "github.com/google/uuid"

// Conversation roles used throughout the framework.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single entry of conversational history passed to models.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage is a convenience constructor for a user-authored message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage is a convenience constructor for an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Entity is a structured record produced by the entity extraction step.
// All fields are optional; empty strings mean the model did not recognize
// that attribute.
type Entity struct {
	DeviceName   string `json:"device_name,omitempty"`
	DeviceType   string `json:"device_type,omitempty"`
	FaultType    string `json:"fault_type,omitempty"`
	VoltageLevel string `json:"voltage_level,omitempty"`
}

// NewID generates a new unique identifier for runs and branches.
func NewID() string { return uuid.NewString() }
