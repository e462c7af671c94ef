package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatservice "github.com/zhouzirui/chatlab/backend/internal/service/chat"
	"github.com/zhouzirui/chatlab/backend/internal/service/turn"
	"github.com/zhouzirui/chatlab/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler SSE事件流处理器
type Handler struct {
	chatSvc *chatservice.Service
	broker  *turn.Broker
	logger  *zap.Logger
}

// New 创建SSE处理器
func New(chatSvc *chatservice.Service, broker *turn.Broker, logger *zap.Logger) *Handler {
	return &Handler{chatSvc: chatSvc, broker: broker, logger: logger}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// handleStream 把一个会话的编排事件按产生顺序推送给订阅方。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	events, unsubscribe := h.broker.Subscribe(sessionID)
	defer unsubscribe()

	utils.SendSSEEvent(w, flusher, "connected", map[string]string{"sessionId": sessionID})

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			utils.SendSSEEvent(w, flusher, string(ev.Type), ev)
		case <-ticker.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", map[string]int64{"at": time.Now().UnixMilli()})
		}
	}
}
