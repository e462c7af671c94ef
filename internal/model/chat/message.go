package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation. Messages are immutable once
// appended and keep strict insertion order.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	SpeakerName string    `json:"speakerName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
