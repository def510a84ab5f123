package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/middleware"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
)

// AgentHandler 处理坐席相关的 HTTP 请求
type AgentHandler struct {
	agents *service.AgentService
	chat   *service.ChatService
	log    *zap.Logger
}

// NewAgentHandler 创建坐席处理器
func NewAgentHandler(agents *service.AgentService, chat *service.ChatService, log *zap.Logger) *AgentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AgentHandler{agents: agents, chat: chat, log: log}
}

type changeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type updateProfileRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	MaxSessions int    `json:"maxSessions"`
}

// List 列出全部坐席及其当前负载
func (h *AgentHandler) List(c *gin.Context) {
	views, err := h.agents.List()
	if err != nil {
		h.log.Error("failed to list agents", zap.Error(err))
		InternalError(c, MsgAgentListFailed)
		return
	}
	Success(c, views)
}

// Get 查询单个坐席
func (h *AgentHandler) Get(c *gin.Context) {
	view, err := h.agents.Get(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, view)
}

// ChangeStatus 切换坐席工作状态
//
// 坐席只能切换自己的状态，管理端可以切换任意坐席。
func (h *AgentHandler) ChangeStatus(c *gin.Context) {
	agentID := c.Param("id")
	if !h.canManage(c, agentID) {
		Forbidden(c, MsgPermissionDenied)
		return
	}

	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	view, err := h.agents.ChangeStatus(agentID, domain.AgentStatus(req.Status))
	if err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("agent status changed",
		zap.String("agent_id", agentID),
		zap.String("status", req.Status),
	)

	SuccessWithMsg(c, "状态已切换", view)
}

// Transitions 返回坐席当前可切换到的状态集合
func (h *AgentHandler) Transitions(c *gin.Context) {
	targets, err := h.agents.AvailableTransitions(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, targets)
}

// UpdateProfile 更新坐席资料
func (h *AgentHandler) UpdateProfile(c *gin.Context) {
	agentID := c.Param("id")
	if !h.canManage(c, agentID) {
		Forbidden(c, MsgPermissionDenied)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	view, err := h.agents.UpdateProfile(agentID, req.Name, req.Email, req.MaxSessions)
	if err != nil {
		RespondError(c, err)
		return
	}

	SuccessWithMsg(c, "资料已更新", view)
}

// CreateShareLink 为坐席生成客户直连的分享链接
func (h *AgentHandler) CreateShareLink(c *gin.Context) {
	agentID := c.Param("id")
	if !h.canManage(c, agentID) {
		Forbidden(c, MsgPermissionDenied)
		return
	}

	link, err := h.chat.CreateShareLink(agentID)
	if err != nil {
		h.log.Error("failed to create share link",
			zap.String("agent_id", agentID),
			zap.Error(err))
		RespondError(c, err)
		return
	}

	CreatedWithMsg(c, "分享链接已生成", link)
}

// canManage 坐席本人或管理端才能操作
func (h *AgentHandler) canManage(c *gin.Context, agentID string) bool {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		return false
	}
	if userID == agentID {
		return true
	}
	return domain.IsAdminRole(middleware.RoleFromContext(c))
}
