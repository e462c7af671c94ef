package turn

import (
	"sync"
	"time"

	"github.com/zhouzirui/chatlab/backend/internal/model/chat"
)

// EventType labels what a session event carries.
type EventType string

const (
	// EventMessage delivers a finished message; it also clears any typing
	// placeholder shown for the same speaker.
	EventMessage EventType = "message"
	// EventTyping shows the "{speaker} is typing..." placeholder.
	EventTyping EventType = "typing"
	// EventState reports a scheduler state transition.
	EventState EventType = "state"
)

// Event is one item on a session's ordered feed to the UI layer.
type Event struct {
	Type      EventType  `json:"type"`
	SessionID string     `json:"sessionId"`
	Role      chat.Role  `json:"role,omitempty"`
	Speaker   string     `json:"speaker,omitempty"`
	Content   string     `json:"content,omitempty"`
	State     chat.State `json:"state,omitempty"`
	At        time.Time  `json:"at"`
}

const subscriberBuffer = 64

// Broker fans session events out to websocket/SSE subscribers. Publishing
// never blocks the scheduler: a subscriber that stops draining loses events
// rather than stalling the conversation.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[int]chan Event
	next int
}

// NewBroker builds an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a listener for one session. The returned cancel
// function must be called to release the channel.
func (b *Broker) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan Event)
	}
	id := b.next
	b.next++

	ch := make(chan Event, subscriberBuffer)
	b.subs[sessionID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[sessionID][id]; ok {
			delete(b.subs[sessionID], id)
			close(sub)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its session.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than block the turn.
		}
	}
}
