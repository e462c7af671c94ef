package chat

import (
	"time"

	"github.com/zhouzirui/chatlab/backend/internal/model/agent"
)

// State tracks where a session is in the conversation bootstrap cycle.
type State string

const (
	StateNotStarted        State = "not_started"
	StateInstructionsShown State = "instructions_shown"
	StateAwaitingExchange  State = "awaiting_initial_exchange"
	StateIdle              State = "idle"
	StateProcessing        State = "processing_user_turn"
)

// Session captures one participant's conversation. The ID doubles as the
// conversation identifier in persisted rows and never changes after creation.
type Session struct {
	ID                string          `json:"id"`
	Condition         agent.Condition `json:"condition"`
	InvitationCode    string          `json:"invitationCode"`
	ParticipantStance string          `json:"participantStance"`
	UserID            string          `json:"userId"`
	ParticipantName   string          `json:"participantName"`
	State             State           `json:"state"`
	ChatStarted       bool            `json:"chatStarted"`
	NeedsInitialExchange bool         `json:"needsInitialExchange"`
	AgentA            agent.Profile   `json:"agentA"`
	AgentB            agent.Profile   `json:"agentB"`
	CreatedAt         time.Time       `json:"createdAt"`
}
