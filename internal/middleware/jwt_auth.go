package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/auth/jwt"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

// 上下文键
const (
	ContextUserID   = "userID"
	ContextRole     = "role"
	ContextUserType = "userType"
	ContextKeyID    = "keyID"
)

// JWTAuth JWT认证中间件
type JWTAuth struct {
	jwtManager *jwt.Manager
	log        *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(jwtManager *jwt.Manager, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		jwtManager: jwtManager,
		log:        log,
	}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "未登录或令牌缺失",
			})
			c.Abort()
			return
		}

		claims, err := ja.jwtManager.Verify(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "令牌无效或已过期",
			})
			c.Abort()
			return
		}

		// 将用户信息存储到上下文
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextUserType, claims.Type)
		c.Set(ContextKeyID, claims.KeyID)

		c.Next()
	}
}

// OptionalAuth 可选的JWT认证
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := ja.jwtManager.Verify(token)
		if err == nil {
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextRole, claims.Role)
			c.Set(ContextUserType, claims.Type)
			c.Set(ContextKeyID, claims.KeyID)
			c.Set("authenticated", true)
		}

		c.Next()
	}
}

// extractToken 从请求中提取JWT token
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 cookie 提取
	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}

// RoleFromContext 取出当前请求的角色名
func RoleFromContext(c *gin.Context) string {
	role, _ := c.Get(ContextRole)
	name, _ := role.(string)
	return name
}

// UserIDFromContext 取出当前请求的用户 ID
func UserIDFromContext(c *gin.Context) string {
	id, _ := c.Get(ContextUserID)
	out, _ := id.(string)
	return out
}

// UserTypeFromContext 取出当前请求的用户类型
func UserTypeFromContext(c *gin.Context) domain.UserType {
	v, _ := c.Get(ContextUserType)
	t, _ := v.(domain.UserType)
	return t
}
