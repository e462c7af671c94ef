package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatlab/backend/internal/config"
	chatservice "github.com/zhouzirui/chatlab/backend/internal/service/chat"
	"github.com/zhouzirui/chatlab/backend/internal/service/completion"
	"github.com/zhouzirui/chatlab/backend/internal/service/record"
	"github.com/zhouzirui/chatlab/backend/internal/service/turn"
)

type stubGateway struct{}

func (stubGateway) Complete(_ context.Context, _ []*schema.Message) (completion.Reply, error) {
	return completion.Reply{Content: "Fair point, though the costs add up.", Model: "stub"}, nil
}

type nopRecorder struct{}

func (nopRecorder) Append(_ context.Context, _ record.Row) error { return nil }

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(rand.New(rand.NewSource(11)))
	scheduler := turn.New(turn.Deps{
		Sessions: chatSvc,
		Gateway:  stubGateway{},
		Recorder: nopRecorder{},
		Config:   config.StudyConfig{},
		Sleep:    func(_ context.Context, _ time.Duration) error { return nil },
	})
	handler := New(chatSvc, scheduler)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func createSession(t *testing.T, r *chi.Mux) sessionResponse {
	t.Helper()

	body := map[string]string{
		"condition":         "RS",
		"invitationCode":    "INV42",
		"participantStance": "S",
		"userId":            "user-1",
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	return session
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter()
	session := createSession(t, r)

	if session.ID == "" {
		t.Fatal("expected a session id")
	}
	if session.Condition != "RS" {
		t.Fatalf("expected condition RS, got %s", session.Condition)
	}
	if session.ParticipantName != "INV42 (You)" {
		t.Fatalf("unexpected participant name %q", session.ParticipantName)
	}
	if len(session.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(session.Agents))
	}
	if session.Agents[0].DisplayName == "" {
		t.Fatal("expected agent display names to be populated")
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAdvanceUnknownSession(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/chat/missing/advance", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestPostMessageRequiresFields(t *testing.T) {
	r, _ := setupRouter()

	for name, body := range map[string]map[string]string{
		"missing session": {"content": "hello"},
		"missing content": {"sessionId": "abc"},
	} {
		payload, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/chat/messages", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
	}
}

func TestConversationFlowOverHTTP(t *testing.T) {
	r, _ := setupRouter()
	session := createSession(t, r)

	// Two advances: instruction, then the scripted initial exchange.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat/"+session.ID+"/advance", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("advance %d: expected 200, got %d", i, resp.Code)
		}
	}

	body := map[string]string{"sessionId": session.ID, "content": "I think the aid is worth it."}
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/"+session.ID+"/transcript", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("transcript: expected 200, got %d", resp.Code)
	}

	var messages []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	// Instruction, opener, exchange reply, participant message, one agent reply.
	if len(messages) < 5 {
		t.Fatalf("expected at least 5 transcript entries, got %d", len(messages))
	}
}

func TestTranscriptUnknownSession(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/chat/missing/transcript", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
