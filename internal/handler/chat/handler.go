package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatlab/backend/internal/model/agent"
	chatservice "github.com/zhouzirui/chatlab/backend/internal/service/chat"
	"github.com/zhouzirui/chatlab/backend/internal/service/turn"
	"github.com/zhouzirui/chatlab/backend/pkg/utils"
)

// Handler 会话编排的HTTP处理器
type Handler struct {
	chatSvc   *chatservice.Service
	scheduler *turn.Scheduler
}

// New 创建聊天处理器
func New(chatSvc *chatservice.Service, scheduler *turn.Scheduler) *Handler {
	return &Handler{chatSvc: chatSvc, scheduler: scheduler}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/chat/messages", h.handlePostMessage)
	r.Post("/chat/{sessionID}/advance", h.handleAdvance)
	r.Get("/chat/{sessionID}/transcript", h.handleTranscript)
}

type sessionResponse struct {
	ID                string          `json:"id"`
	Condition         agent.Condition `json:"condition"`
	ParticipantName   string          `json:"participantName"`
	ParticipantStance string          `json:"participantStance"`
	State             string          `json:"state"`
	Agents            []agent.Public  `json:"agents"`
}

// handleCreateSession 创建会话并绑定两个智能体
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Condition         string `json:"condition"`
		InvitationCode    string `json:"invitationCode"`
		ParticipantStance string `json:"participantStance"`
		UserID            string `json:"userId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), chatservice.Params{
		Condition:         payload.Condition,
		InvitationCode:    payload.InvitationCode,
		ParticipantStance: payload.ParticipantStance,
		UserID:            payload.UserID,
	})
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{
		ID:                session.ID,
		Condition:         session.Condition,
		ParticipantName:   session.ParticipantName,
		ParticipantStance: session.ParticipantStance,
		State:             string(session.State),
		Agents:            []agent.Public{session.AgentA.Public(), session.AgentB.Public()},
	})
}

// handleAdvance 推进一次启动状态转移，直到会话进入 idle 前由前端反复调用。
func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	state, err := h.scheduler.Advance(r.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

// handlePostMessage 处理一次参与者发言，完整跑完对应回合后才返回。
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Content   string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if payload.Content == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	if err := h.scheduler.HandleParticipantTurn(r.Context(), payload.SessionID, payload.Content); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "processed"})
}

// handleTranscript 返回会话的全部消息，保持插入顺序。
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}
