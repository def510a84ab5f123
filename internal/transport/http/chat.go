package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/middleware"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
)

// ChatHandler 处理会话与消息相关的 HTTP 请求
type ChatHandler struct {
	chat *service.ChatService
	log  *zap.Logger
}

// NewChatHandler 创建会话处理器
func NewChatHandler(chat *service.ChatService, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{chat: chat, log: log}
}

type startSessionRequest struct {
	CustomerName string `json:"customerName"`
	ShareLinkID  string `json:"shareLinkId"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Type    string `json:"type"`
}

type messageListResponse struct {
	Items []domain.ChatMessage `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// StartSession 客户发起会话（公开接口）
// @Summary 发起会话
// @Description 客户发起新会话，指定分享链接时直连对应坐席，否则自动分配
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body startSessionRequest true "会话信息"
// @Success 201 {object} Response "会话已创建"
// @Failure 422 {object} Response "当前没有可用坐席"
// @Router /api/chat/sessions [post]
func (h *ChatHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	session, err := h.chat.StartSession(service.StartSessionInput{
		CustomerName: req.CustomerName,
		ShareLinkID:  req.ShareLinkID,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("chat session started",
		zap.String("session_id", session.ID),
		zap.String("share_link", req.ShareLinkID),
	)

	CreatedWithMsg(c, "会话已创建", session)
}

// GetSession 查询会话详情
func (h *ChatHandler) GetSession(c *gin.Context) {
	session, err := h.chat.Get(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, session)
}

// ListSessions 列出会话，状态参数可选
func (h *ChatHandler) ListSessions(c *gin.Context) {
	var status *domain.SessionStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.SessionStatus(raw)
		status = &s
	}

	sessions, err := h.chat.List(status)
	if err != nil {
		h.log.Error("failed to list sessions", zap.Error(err))
		InternalError(c, MsgSessionListFailed)
		return
	}
	Success(c, sessions)
}

// MySessions 列出当前坐席的会话
func (h *ChatHandler) MySessions(c *gin.Context) {
	agentID := middleware.UserIDFromContext(c)
	if agentID == "" {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	sessions, err := h.chat.ListByAgent(agentID)
	if err != nil {
		h.log.Error("failed to list agent sessions",
			zap.String("agent_id", agentID),
			zap.Error(err))
		InternalError(c, MsgSessionListFailed)
		return
	}
	Success(c, sessions)
}

// Accept 坐席接入等待中的会话
func (h *ChatHandler) Accept(c *gin.Context) {
	agentID := middleware.UserIDFromContext(c)
	if agentID == "" {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	session, err := h.chat.Accept(c.Param("id"), agentID)
	if err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("chat session accepted",
		zap.String("session_id", session.ID),
		zap.String("agent_id", agentID),
	)

	SuccessWithMsg(c, "会话已接入", session)
}

// Close 关闭会话
func (h *ChatHandler) Close(c *gin.Context) {
	session, err := h.chat.Close(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("chat session closed", zap.String("session_id", session.ID))
	SuccessWithMsg(c, "会话已关闭", session)
}

// Messages 分页拉取会话消息（公开接口，客户轮询兜底）
func (h *ChatHandler) Messages(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 50)

	messages, total, err := h.chat.Messages(c.Param("id"), page, limit)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, messageListResponse{
		Items: messages,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// SendMessage 发送消息
//
// 已登录的坐席按坐席身份发送，未登录请求视为客户发送。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	senderID := middleware.UserIDFromContext(c)
	senderType := domain.SenderAgent
	if senderID == "" {
		senderID = "customer"
		senderType = domain.SenderCustomer
	}

	kind := domain.MessageType(req.Type)
	if req.Type == "" {
		kind = domain.MessageText
	}

	message, err := h.chat.SendMessage(service.SendMessageInput{
		SessionID:  c.Param("id"),
		SenderID:   senderID,
		SenderType: senderType,
		Type:       kind,
		Content:    req.Content,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	Created(c, message)
}

// ResolveShareLink 解析分享链接（公开接口）
func (h *ChatHandler) ResolveShareLink(c *gin.Context) {
	link, err := h.chat.ResolveShareLink(c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, link)
}
