package httptransport

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/auth"
	"github.com/Ayi-pei/yunjvcrm/internal/middleware"
	"github.com/Ayi-pei/yunjvcrm/internal/monitoring"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service       // 认证业务服务
	keyService  *service.KeyService // 密钥服务（非变更校验）
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, keyService *service.KeyService, metrics *monitoring.Metrics, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		keyService:  keyService,
		metrics:     metrics,
		log:         log,
	}
}

type loginRequest struct {
	AccessKey string `json:"accessKey" binding:"required"`
}

type validateKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// Login 处理密钥登录请求
// @Summary 密钥登录
// @Description 使用访问密钥进行身份验证，成功后返回会话令牌和用户信息
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} Response "登录成功"
// @Failure 400 {object} Response "密钥格式不正确"
// @Failure 401 {object} Response "密钥无效或已过期"
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		AccessKey: strings.TrimSpace(req.AccessKey),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordAuthAttempt("failure")
		}
		h.log.Info("login rejected",
			zap.String("ip", c.ClientIP()),
			zap.Error(err))
		RespondLoginError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAuthAttempt("success")
	}
	h.log.Info("login succeeded",
		zap.String("user_id", result.User.ID),
		zap.String("type", string(result.User.Type)),
	)

	SuccessWithMsg(c, "登录成功", result)
}

// ValidateKey 校验密钥有效性，不产生任何状态变更
// @Summary 校验密钥
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body validateKeyRequest true "待校验密钥"
// @Success 200 {object} Response "校验结果"
// @Router /api/auth/validate-key [post]
func (h *AuthHandler) ValidateKey(c *gin.Context) {
	var req validateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.keyService.Validate(c.Request.Context(), strings.TrimSpace(req.Key))
	if err != nil {
		h.log.Error("failed to validate key", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, result)
}

// Logout 处理登出请求
//
// 登出是宽松路径：令牌无效也返回成功，避免客户端卡死在登出态。
func (h *AuthHandler) Logout(c *gin.Context) {
	token := extractBearerToken(c)
	if token != "" {
		h.authService.Logout(token, c.ClientIP(), c.Request.UserAgent())
	}
	SuccessWithMsg(c, "已退出登录", nil)
}

// Me 返回当前登录用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, user)
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}
