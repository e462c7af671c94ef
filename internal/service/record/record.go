package record

import "context"

// Row is one persisted conversation event. Content already carries the
// "{speaker}: {text}" formatting; ChatbotType is the speaking profile's id
// or one of the sentinels below.
type Row struct {
	ConversationID    string
	Condition         string
	InvitationCode    string
	ParticipantStance string
	UserID            string
	Date              string // YYYY-MM-DD, stamped on append when empty
	Hour              string // HH:MM:SS, stamped on append when empty
	Content           string
	ChatbotType       string
}

// Sentinel ChatbotType values for rows not spoken by an agent.
const (
	TypeUserMessage       = "user_message"
	TypeSystemInstruction = "System_Instruction"
)

// Writer appends rows to the destination log. Implementations must be safe
// for concurrent use across sessions sharing a destination.
type Writer interface {
	Append(ctx context.Context, row Row) error
}
