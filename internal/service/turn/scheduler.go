package turn

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatlab/backend/internal/config"
	"github.com/zhouzirui/chatlab/backend/internal/model/agent"
	"github.com/zhouzirui/chatlab/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatlab/backend/internal/service/chat"
	"github.com/zhouzirui/chatlab/backend/internal/service/completion"
	"github.com/zhouzirui/chatlab/backend/internal/service/record"
)

// Gateway is the completion surface the scheduler depends on.
// *completion.Gateway satisfies it.
type Gateway interface {
	Complete(ctx context.Context, messages []*schema.Message) (completion.Reply, error)
}

// Rand covers the scheduler's chance draws, injected so tests can force
// outcomes.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// lockedRand is the default Rand. One source serves every session, and turns
// for different sessions run on their own goroutines, so draws must be
// serialized.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Intn(n)
}

// Sleeper performs the pacing delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// Deps wires a Scheduler. Rand and Sleep default to real sources.
type Deps struct {
	Sessions *chatservice.Service
	Gateway  Gateway
	Recorder record.Writer
	Broker   *Broker
	Config   config.StudyConfig
	Logger   *zap.Logger
	Rand     Rand
	Sleep    Sleeper
}

// Scheduler is the conversation state machine: it decides who speaks,
// assembles model context, paces the reveal, and keeps transcript, event
// feed and persisted rows in one shared order.
type Scheduler struct {
	sessions *chatservice.Service
	gateway  Gateway
	recorder record.Writer
	broker   *Broker
	cfg      config.StudyConfig
	logger   *zap.Logger
	rng      Rand
	sleep    Sleeper

	mu    sync.Mutex
	turns map[string]*turnLock
}

// turnLock is one session's turn mutex plus the count of holders and
// waiters, tracked so idle entries can be pruned.
type turnLock struct {
	mu   sync.Mutex
	refs int
}

// New builds a Scheduler from its dependencies.
func New(d Deps) *Scheduler {
	if d.Rand == nil {
		d.Rand = &lockedRand{src: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	if d.Sleep == nil {
		d.Sleep = func(ctx context.Context, dur time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dur):
				return nil
			}
		}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Broker == nil {
		d.Broker = NewBroker()
	}
	return &Scheduler{
		sessions: d.Sessions,
		gateway:  d.Gateway,
		recorder: d.Recorder,
		broker:   d.Broker,
		cfg:      d.Config,
		logger:   d.Logger.With(zap.String("component", "turn_scheduler")),
		rng:      d.Rand,
		sleep:    d.Sleep,
		turns:    make(map[string]*turnLock),
	}
}

// Broker exposes the event bus for handler subscriptions.
func (s *Scheduler) Broker() *Broker {
	return s.broker
}

// Advance drives one bootstrap transition and returns the resulting state:
// NotStarted shows the instruction, InstructionsShown runs the scripted
// initial exchange. From Idle onward it is a no-op.
func (s *Scheduler) Advance(ctx context.Context, sessionID string) (chat.State, error) {
	unlock := s.lockTurn(sessionID)
	defer unlock()

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	switch session.State {
	case chat.StateNotStarted:
		return s.showInstructions(ctx, session)
	case chat.StateInstructionsShown:
		return s.runInitialExchange(ctx, session)
	default:
		return session.State, nil
	}
}

// showInstructions appends and persists the topic prompt so it renders
// before any blocking model call.
func (s *Scheduler) showInstructions(ctx context.Context, session chat.Session) (chat.State, error) {
	msg := chat.Message{
		SessionID:   session.ID,
		Role:        chat.RoleSystem,
		Content:     agent.InstructionText,
		SpeakerName: "Instructions",
	}
	if err := s.commit(ctx, session, msg, record.TypeSystemInstruction,
		fmt.Sprintf("Instructions: %s", agent.InstructionText)); err != nil {
		return "", err
	}

	updated, err := s.sessions.UpdateSession(ctx, session.ID, func(sess *chat.Session) {
		sess.State = chat.StateInstructionsShown
		sess.ChatStarted = true
		sess.NeedsInitialExchange = true
	})
	if err != nil {
		return "", err
	}
	s.publishState(updated)
	return updated.State, nil
}

// runInitialExchange posts Agent A's scripted opener, then asks Agent B to
// answer it. The opener is fixed text keyed by stance so every participant
// sees a deterministic start.
func (s *Scheduler) runInitialExchange(ctx context.Context, session chat.Session) (chat.State, error) {
	if _, err := s.sessions.UpdateSession(ctx, session.ID, func(sess *chat.Session) {
		sess.State = chat.StateAwaitingExchange
	}); err != nil {
		return "", err
	}

	opener := agent.OpenerFor(session.Condition.Stance())
	openerMsg := chat.Message{
		SessionID:   session.ID,
		Role:        chat.RoleAssistant,
		Content:     opener,
		SpeakerName: session.AgentA.DisplayName,
	}
	if err := s.commit(ctx, session, openerMsg, session.AgentA.ID,
		fmt.Sprintf("%s: %s", session.AgentA.DisplayName, opener)); err != nil {
		return "", err
	}

	bContext := []*schema.Message{
		schema.SystemMessage(session.AgentB.SystemInstruction),
		schema.UserMessage(opener),
	}
	reply, err := s.gateway.Complete(ctx, bContext)
	content := strings.TrimSpace(reply.Content)
	if err != nil || content == "" {
		// An empty reply is as unusable as a failed one; the exchange must
		// still complete so the session reaches idle.
		s.logger.Warn("initial exchange completion unusable, using scripted fallback",
			zap.String("session_id", session.ID), zap.Error(err))
		content = agent.InitialExchangeFallback
	}

	replyMsg := chat.Message{
		SessionID:   session.ID,
		Role:        chat.RoleAssistant,
		Content:     content,
		SpeakerName: session.AgentB.DisplayName,
	}
	if err := s.commit(ctx, session, replyMsg, session.AgentB.ID,
		fmt.Sprintf("%s: %s", session.AgentB.DisplayName, content)); err != nil {
		return "", err
	}

	updated, err := s.sessions.UpdateSession(ctx, session.ID, func(sess *chat.Session) {
		sess.State = chat.StateIdle
		sess.NeedsInitialExchange = false
	})
	if err != nil {
		return "", err
	}
	s.publishState(updated)
	return updated.State, nil
}

// HandleParticipantTurn runs one full turn: the participant message is
// committed immediately, a first responder is drawn at random, and with the
// configured probability the other agent follows up. Completion failures
// degrade to fillers; the conversation never surfaces an error.
func (s *Scheduler) HandleParticipantTurn(ctx context.Context, sessionID, text string) error {
	if text == "" {
		return chatservice.ErrEmptyContent
	}

	unlock := s.lockTurn(sessionID)
	defer unlock()

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	// A session that was never bootstrapped catches up first.
	for session.State == chat.StateNotStarted || session.State == chat.StateInstructionsShown {
		if session.State == chat.StateNotStarted {
			if _, err := s.showInstructions(ctx, session); err != nil {
				return err
			}
		} else {
			if _, err := s.runInitialExchange(ctx, session); err != nil {
				return err
			}
		}
		if session, err = s.sessions.GetSession(ctx, sessionID); err != nil {
			return err
		}
	}

	if _, err := s.sessions.UpdateSession(ctx, sessionID, func(sess *chat.Session) {
		sess.State = chat.StateProcessing
	}); err != nil {
		return err
	}

	userMsg := chat.Message{
		SessionID:   sessionID,
		Role:        chat.RoleUser,
		Content:     text,
		SpeakerName: session.ParticipantName,
	}
	if err := s.commit(ctx, session, userMsg, record.TypeUserMessage,
		fmt.Sprintf("%s: %s", session.ParticipantName, text)); err != nil {
		s.backToIdle(ctx, sessionID)
		return err
	}

	first, second := session.AgentA, session.AgentB
	if s.rng.Float64() >= 0.5 {
		first, second = second, first
	}

	preDelay := s.window(s.cfg.ReplyDelayMin, s.cfg.ReplyDelayMax)
	if s.sessions.UserTurnCount(ctx, sessionID) == 1 {
		preDelay = s.window(s.cfg.FirstReplyDelayMin, s.cfg.FirstReplyDelayMax)
	}
	if err := s.sleep(ctx, preDelay); err != nil {
		s.backToIdle(ctx, sessionID)
		return err
	}

	if err := s.agentReply(ctx, session, first); err != nil {
		s.backToIdle(ctx, sessionID)
		return err
	}

	if s.rng.Float64() < s.cfg.SecondReplyProbability {
		if err := s.sleep(ctx, s.window(s.cfg.ReadDelayMin, s.cfg.ReadDelayMax)); err != nil {
			s.backToIdle(ctx, sessionID)
			return err
		}
		if err := s.agentReply(ctx, session, second); err != nil {
			s.backToIdle(ctx, sessionID)
			return err
		}
	}

	s.backToIdle(ctx, sessionID)
	return nil
}

// agentReply shows the typing placeholder, obtains the agent's text (model
// or filler), paces the reveal by the agent's typing speed and commits the
// message.
func (s *Scheduler) agentReply(ctx context.Context, session chat.Session, speaker agent.Profile) error {
	s.broker.Publish(Event{
		Type:      EventTyping,
		SessionID: session.ID,
		Speaker:   speaker.DisplayName,
	})

	transcript, err := s.sessions.LoadTranscript(ctx, session.ID)
	if err != nil {
		return err
	}

	reply, err := s.gateway.Complete(ctx, buildContext(speaker, transcript))
	content := strings.TrimSpace(reply.Content)
	if err != nil || content == "" {
		content = speaker.Fillers[s.rng.Intn(len(speaker.Fillers))]
		s.logger.Warn("agent turn degraded to filler",
			zap.String("session_id", session.ID),
			zap.String("agent", speaker.ID),
			zap.Error(err))
	}

	if err := s.sleep(ctx, typingDuration(content, speaker.TypingSpeed)); err != nil {
		return err
	}

	msg := chat.Message{
		SessionID:   session.ID,
		Role:        chat.RoleAssistant,
		Content:     content,
		SpeakerName: speaker.DisplayName,
	}
	return s.commit(ctx, session, msg, speaker.ID,
		fmt.Sprintf("%s: %s", speaker.DisplayName, content))
}

// buildContext prepends the speaker's instruction to the transcript so far,
// reduced to role and content.
func buildContext(speaker agent.Profile, transcript []chat.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(transcript)+1)
	msgs = append(msgs, schema.SystemMessage(speaker.SystemInstruction))
	for _, m := range transcript {
		switch m.Role {
		case chat.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case chat.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case chat.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		}
	}
	return msgs
}

// commit appends to the transcript, persists the row, then publishes the
// event, in that order, so all three views share one message order. A
// persistence failure is logged and swallowed; losing a row must not stop
// the conversation.
func (s *Scheduler) commit(ctx context.Context, session chat.Session, msg chat.Message, chatbotType, rowContent string) error {
	stored, err := s.sessions.AppendMessage(ctx, msg)
	if err != nil {
		return err
	}

	if err := s.recorder.Append(ctx, record.Row{
		ConversationID:    session.ID,
		Condition:         string(session.Condition),
		InvitationCode:    session.InvitationCode,
		ParticipantStance: session.ParticipantStance,
		UserID:            session.UserID,
		Content:           rowContent,
		ChatbotType:       chatbotType,
	}); err != nil {
		s.logger.Warn("row not persisted, conversation continues",
			zap.String("session_id", session.ID),
			zap.String("chatbot_type", chatbotType))
	}

	s.broker.Publish(Event{
		Type:      EventMessage,
		SessionID: session.ID,
		Role:      stored.Role,
		Speaker:   stored.SpeakerName,
		Content:   stored.Content,
		At:        stored.CreatedAt,
	})
	return nil
}

func (s *Scheduler) backToIdle(ctx context.Context, sessionID string) {
	updated, err := s.sessions.UpdateSession(ctx, sessionID, func(sess *chat.Session) {
		sess.State = chat.StateIdle
	})
	if err != nil {
		return
	}
	s.publishState(updated)
}

func (s *Scheduler) publishState(session chat.Session) {
	s.broker.Publish(Event{
		Type:      EventState,
		SessionID: session.ID,
		State:     session.State,
	})
}

// lockTurn serializes turns per session: no two agent replies for the same
// session may be in flight, since each depends on the transcript so far.
// Entries are refcounted and removed once the last holder releases, so the
// map does not grow with session count over the process lifetime.
func (s *Scheduler) lockTurn(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.turns[sessionID]
	if !ok {
		l = &turnLock{}
		s.turns[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.turns, sessionID)
		}
		s.mu.Unlock()
	}
}

// window draws a duration uniformly from [min, max].
func (s *Scheduler) window(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Float64()*float64(max-min))
}

// typingDuration converts reply length into the hold applied before the
// reveal, simulating the agent typing it out.
func typingDuration(content string, charsPerSecond float64) time.Duration {
	if charsPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(len(content)) / charsPerSecond * float64(time.Second))
}
