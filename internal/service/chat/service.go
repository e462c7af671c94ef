package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/chatlab/backend/internal/model/agent"
	"github.com/zhouzirui/chatlab/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyContent    = errors.New("message content is required")
)

// Defaults used when the surrounding form supplied nothing usable. Kept as
// recognizable sentinels so downstream analysis can filter them.
const (
	UnknownUserID         = "unknown_user_id"
	UnknownInvitationCode = "unknown_invitation_code"
	UnknownStance         = "unknown_participant_stance"
)

// Params carries the opaque identifiers the gating form resolved for a
// participant. All fields may be empty.
type Params struct {
	Condition         string
	InvitationCode    string
	ParticipantStance string
	UserID            string
}

// Service owns per-participant session state and transcripts. Durable
// history lives in the record log, not here.
type Service struct {
	mu       sync.RWMutex
	rng      *rand.Rand
	sessions map[string]chat.Session
	messages map[string][]chat.Message
}

// NewService bootstraps the in-memory session store. The rand source drives
// the one-time condition fallback and agent slot binding per session.
func NewService(rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		rng:      rng,
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

// CreateSession provisions a session: resolves the condition (uniformly
// random when absent or invalid), binds the two profiles to the A/B slots
// by coin flip, and fixes both for the session lifetime.
func (s *Service) CreateSession(_ context.Context, params Params) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cond, ok := agent.ParseCondition(params.Condition)
	if !ok {
		cond = agent.RandomCondition(s.rng)
	}

	invitation := params.InvitationCode
	if invitation == "" {
		invitation = UnknownInvitationCode
	}
	userID := params.UserID
	if userID == "" {
		userID = UnknownUserID
	}

	participantName := "You"
	if invitation != UnknownInvitationCode {
		participantName = fmt.Sprintf("%s (You)", invitation)
	}

	first, second := agent.ProfilesFor(cond, invitation)
	// Unbiased coin flip decides which profile fills slot A.
	if s.rng.Float64() < 0.5 {
		first, second = second, first
	}

	session := chat.Session{
		ID:                   uuid.NewString(),
		Condition:            cond,
		InvitationCode:       invitation,
		ParticipantStance:    normalizeStance(params.ParticipantStance),
		UserID:               userID,
		ParticipantName:      participantName,
		State:                chat.StateNotStarted,
		NeedsInitialExchange: false,
		AgentA:               first,
		AgentB:               second,
		CreatedAt:            time.Now().UTC(),
	}

	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// AppendMessage adds one turn to the session transcript and returns the
// stored message. Transcript order is strict insertion order.
func (s *Service) AppendMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	if message.Content == "" {
		return chat.Message{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return message, nil
}

// LoadTranscript returns a copy of the stored messages for a session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// UpdateSession applies a mutation to the stored session under the lock and
// returns the updated value.
func (s *Service) UpdateSession(_ context.Context, sessionID string, mutate func(*chat.Session)) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	mutate(&session)
	s.sessions[sessionID] = session
	return session, nil
}

// UserTurnCount reports how many participant messages the transcript holds.
func (s *Service) UserTurnCount(_ context.Context, sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages[sessionID] {
		if m.Role == chat.RoleUser {
			count++
		}
	}
	return count
}

// normalizeStance maps the gating form's single-letter stance tag onto the
// label recorded in the log.
func normalizeStance(raw string) string {
	switch raw {
	case "O":
		return "Oppose"
	case "S":
		return "Support"
	case "Oppose", "Support":
		return raw
	default:
		return UnknownStance
	}
}
