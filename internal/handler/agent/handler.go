package agent

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	agentmodel "github.com/zhouzirui/chatlab/backend/internal/model/agent"
	"github.com/zhouzirui/chatlab/backend/pkg/utils"
)

// Handler 智能体档案查询处理器
type Handler struct{}

// New 创建档案处理器
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes 注册档案路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleList)
}

// handleList 返回某个实验条件下会参与对话的两个档案。
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("condition")
	if raw == "" {
		utils.RespondError(w, http.StatusBadRequest, "condition is required")
		return
	}

	cond, ok := agentmodel.ParseCondition(raw)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "unknown condition")
		return
	}

	a, b := agentmodel.ProfilesFor(cond, "participant")
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"condition": cond,
		"agents":    []agentmodel.Public{a.Public(), b.Public()},
	})
}
