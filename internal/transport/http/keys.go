package httptransport

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/middleware"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
)

// KeyHandler 处理密钥管理相关的 HTTP 请求
type KeyHandler struct {
	keys            *service.KeyService
	defaultValidity int // 请求未指定时的有效期天数
	log             *zap.Logger
}

// NewKeyHandler 创建密钥处理器
func NewKeyHandler(keys *service.KeyService, defaultValidityDays int, log *zap.Logger) *KeyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &KeyHandler{keys: keys, defaultValidity: defaultValidityDays, log: log}
}

type issueKeyRequest struct {
	Kind         string  `json:"kind"`
	ValidityDays int     `json:"validityDays"`
	MaxUsage     *int    `json:"maxUsage"`
	OwnerID      *string `json:"ownerId"`
	Notes        string  `json:"notes"`
}

type updateKeyRequest struct {
	Notes     *string    `json:"notes"`
	MaxUsage  *int       `json:"maxUsage"`
	ClearMax  bool       `json:"clearMax"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type keyListResponse struct {
	Items []service.KeyView `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// List 分页列出密钥
// @Summary 密钥列表
// @Tags 密钥
// @Produce json
// @Param status query string false "按状态筛选"
// @Param kind query string false "按类型筛选"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} Response "密钥列表"
// @Router /api/keys [get]
func (h *KeyHandler) List(c *gin.Context) {
	filter := domain.KeyListFilter{
		Page:  queryInt(c, "page", 1),
		Limit: queryInt(c, "limit", 20),
	}

	if raw := c.Query("status"); raw != "" {
		status := domain.KeyStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("kind"); raw != "" {
		kind := domain.KeyKind(raw)
		if !kind.Valid() {
			BadRequest(c, "密钥类型无效")
			return
		}
		filter.Kind = &kind
	}

	views, total, err := h.keys.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("failed to list keys", zap.Error(err))
		InternalError(c, MsgKeyListFailed)
		return
	}

	Success(c, keyListResponse{
		Items: views,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// Generate 签发一把新密钥
// @Summary 生成密钥
// @Tags 密钥
// @Accept json
// @Produce json
// @Param request body issueKeyRequest true "签发参数"
// @Success 201 {object} Response "密钥已生成"
// @Router /api/keys [post]
func (h *KeyHandler) Generate(c *gin.Context) {
	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	kind := domain.KeyKind(req.Kind)
	if req.Kind == "" {
		kind = domain.KeyKindAgent
	}
	if req.ValidityDays == 0 {
		req.ValidityDays = h.defaultValidity
	}

	issuedBy := middleware.UserIDFromContext(c)
	key, err := h.keys.Issue(c.Request.Context(), service.IssueKeyInput{
		Kind:         kind,
		ValidityDays: req.ValidityDays,
		MaxUsage:     req.MaxUsage,
		OwnerID:      req.OwnerID,
		Notes:        req.Notes,
		IssuedBy:     issuedBy,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("key issued",
		zap.String("key_id", key.ID),
		zap.String("kind", string(key.Kind)),
		zap.String("issued_by", issuedBy),
	)

	CreatedWithMsg(c, "密钥已生成", key)
}

// Get 查询单把密钥
func (h *KeyHandler) Get(c *gin.Context) {
	view, err := h.keys.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, view)
}

// Update 更新密钥备注/次数上限/有效期
func (h *KeyHandler) Update(c *gin.Context) {
	var req updateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	key, err := h.keys.Update(c.Request.Context(), c.Param("id"), service.UpdateKeyInput{
		Notes:     req.Notes,
		MaxUsage:  req.MaxUsage,
		ClearMax:  req.ClearMax,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	SuccessWithMsg(c, "密钥已更新", key)
}

// Suspend 暂停密钥
func (h *KeyHandler) Suspend(c *gin.Context) {
	id := c.Param("id")
	if err := h.keys.Suspend(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("key suspended", zap.String("key_id", id))
	SuccessWithMsg(c, "密钥已暂停", nil)
}

// Activate 恢复密钥
//
// 恢复不重置使用计数，过期判定在下一次认证时重新生效。
func (h *KeyHandler) Activate(c *gin.Context) {
	id := c.Param("id")
	if err := h.keys.Activate(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("key activated", zap.String("key_id", id))
	SuccessWithMsg(c, "密钥已恢复", nil)
}

// Delete 删除密钥
func (h *KeyHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.keys.Delete(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}

	h.log.Info("key deleted", zap.String("key_id", id))
	NoContent(c)
}

type usageLogResponse struct {
	Items []domain.KeyUsageLog `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// Logs 分页返回密钥使用日志
func (h *KeyHandler) Logs(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	logs, total, err := h.keys.Logs(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, usageLogResponse{
		Items: logs,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// Statistics 返回密钥状态统计
func (h *KeyHandler) Statistics(c *gin.Context) {
	stats, err := h.keys.Statistics(c.Request.Context())
	if err != nil {
		h.log.Error("failed to compute key statistics", zap.Error(err))
		InternalError(c, MsgStatisticsGetFailed)
		return
	}
	Success(c, stats)
}

// queryInt 读取整型查询参数，非法或缺失时返回默认值
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
