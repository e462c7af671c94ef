package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	agentHandler "github.com/zhouzirui/chatlab/backend/internal/handler/agent"
	chatHandler "github.com/zhouzirui/chatlab/backend/internal/handler/chat"
	streamHandler "github.com/zhouzirui/chatlab/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/chatlab/backend/internal/middleware"
	chatService "github.com/zhouzirui/chatlab/backend/internal/service/chat"
	"github.com/zhouzirui/chatlab/backend/internal/service/turn"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, scheduler *turn.Scheduler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	agents := agentHandler.New()
	sessions := chatHandler.New(chatSvc, scheduler)
	live := chatHandler.NewWebSocketHandler(chatSvc, scheduler, logger)
	events := streamHandler.New(chatSvc, scheduler.Broker(), logger)

	r.Route("/api", func(api chi.Router) {
		agents.RegisterRoutes(api)
		sessions.RegisterRoutes(api)
		live.RegisterWebSocketRoutes(api)
		events.RegisterRoutes(api)
	})

	return r
}
