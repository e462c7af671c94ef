package chat_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/zhouzirui/chatlab/backend/internal/model/agent"
	chatmodel "github.com/zhouzirui/chatlab/backend/internal/model/chat"
	chat "github.com/zhouzirui/chatlab/backend/internal/service/chat"
)

func newService() *chat.Service {
	return chat.NewService(rand.New(rand.NewSource(1)))
}

func TestCreateSessionBindsBothAgents(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, chat.Params{
		Condition:         "RS",
		InvitationCode:    "INV7",
		ParticipantStance: "O",
		UserID:            "u1",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if session.Condition != agent.RepublicanSupport {
		t.Fatalf("condition: %s", session.Condition)
	}
	if session.State != chatmodel.StateNotStarted {
		t.Fatalf("initial state: %s", session.State)
	}
	if session.ParticipantStance != "Oppose" {
		t.Fatalf("stance: %s", session.ParticipantStance)
	}
	if session.ParticipantName != "INV7 (You)" {
		t.Fatalf("participant name: %s", session.ParticipantName)
	}

	ids := map[string]bool{session.AgentA.ID: true, session.AgentB.ID: true}
	if !ids[agent.RamblerID] || !ids[agent.TerseID] {
		t.Fatalf("both fixed ids must be bound, got %v", ids)
	}
	for _, p := range []agent.Profile{session.AgentA, session.AgentB} {
		if p.Party != "Republican" || p.Stance != "support" {
			t.Fatalf("profile %s has party %s stance %s", p.ID, p.Party, p.Stance)
		}
	}
}

func TestCreateSessionFallsBackToRandomCondition(t *testing.T) {
	svc := newService()

	session, err := svc.CreateSession(context.Background(), chat.Params{Condition: "bogus"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !session.Condition.Valid() {
		t.Fatalf("fallback condition invalid: %s", session.Condition)
	}
	if session.InvitationCode != chat.UnknownInvitationCode {
		t.Fatalf("invitation default: %s", session.InvitationCode)
	}
	if session.UserID != chat.UnknownUserID {
		t.Fatalf("user id default: %s", session.UserID)
	}
	if session.ParticipantName != "You" {
		t.Fatalf("participant name default: %s", session.ParticipantName)
	}
	if session.ParticipantStance != chat.UnknownStance {
		t.Fatalf("stance default: %s", session.ParticipantStance)
	}
}

func TestAppendMessageKeepsInsertionOrder(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, chat.Params{Condition: "DS"})
	contents := []string{"one", "two", "three"}
	for _, c := range contents {
		if _, err := svc.AppendMessage(ctx, chatmodel.Message{
			SessionID: session.ID,
			Role:      chatmodel.RoleUser,
			Content:   c,
		}); err != nil {
			t.Fatalf("AppendMessage %q: %v", c, err)
		}
	}

	transcript, err := svc.LoadTranscript(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	for i, c := range contents {
		if transcript[i].Content != c {
			t.Fatalf("position %d: got %q want %q", i, transcript[i].Content, c)
		}
		if transcript[i].ID == "" {
			t.Fatal("message id not assigned")
		}
	}

	if got := svc.UserTurnCount(ctx, session.ID); got != 3 {
		t.Fatalf("UserTurnCount: %d", got)
	}
}

func TestAppendMessageUnknownSession(t *testing.T) {
	svc := newService()
	if _, err := svc.AppendMessage(context.Background(), chatmodel.Message{
		SessionID: "missing",
		Content:   "hi",
	}); err == nil {
		t.Fatal("expected error for missing session")
	}
}
