package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatlab/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatlab/backend/internal/service/chat"
	"github.com/zhouzirui/chatlab/backend/internal/service/turn"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketHandler WebSocket会话通道处理器
type WebSocketHandler struct {
	chatSvc   *chatservice.Service
	scheduler *turn.Scheduler
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, scheduler *turn.Scheduler, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc:   chatSvc,
		scheduler: scheduler,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/chat/{sessionID}/live", h.handleLive)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Content   string `json:"content,omitempty"`
	State     string `json:"state,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleLive 建立会话的实时通道：推送编排事件，接收参与者发言。
func (h *WebSocketHandler) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := h.scheduler.Broker().Subscribe(sessionID)
	defer unsubscribe()

	go h.writeLoop(ctx, conn, sessionID, events)

	// 连接建立后先把会话推进到 idle：先出指引，再跑开场交流。
	go h.bootstrap(ctx, sessionID)

	h.readLoop(ctx, conn, sessionID)
}

func (h *WebSocketHandler) bootstrap(ctx context.Context, sessionID string) {
	for {
		state, err := h.scheduler.Advance(ctx, sessionID)
		if err != nil {
			h.logger.Warn("session bootstrap failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
			return
		}
		if state != chat.StateNotStarted && state != chat.StateInstructionsShown {
			return
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed",
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Warn("invalid websocket payload",
				zap.String("session_id", sessionID),
				zap.Error(err))
			continue
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}

		if err := h.scheduler.HandleParticipantTurn(ctx, sessionID, msg.Content); err != nil {
			h.logger.Warn("participant turn failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
}

func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sessionID string, events <-chan turn.Event) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			out := outgoingMessage{
				Type:      string(ev.Type),
				SessionID: ev.SessionID,
				Role:      string(ev.Role),
				Speaker:   ev.Speaker,
				Content:   ev.Content,
				State:     string(ev.State),
				Timestamp: ev.At.UnixMilli(),
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(out); err != nil {
				h.logger.Warn("websocket write failed",
					zap.String("session_id", sessionID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
