package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

// Authz 基于角色目录的访问控制中间件
//
// 依赖 JWTAuth 先行写入上下文的角色名，对照内置角色目录
// 做权限点与层级判定。
type Authz struct{}

// NewAuthz 创建访问控制中间件
func NewAuthz() *Authz {
	return &Authz{}
}

// RequirePermission 要求当前角色持有指定权限点（精确匹配）
func (a *Authz) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := a.currentRole(c)
		if !ok {
			return
		}

		if !role.HasPermission(permission) {
			c.JSON(http.StatusForbidden, gin.H{
				"code": http.StatusForbidden,
				"msg":  "权限不足",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole 要求当前角色属于给定集合
func (a *Authz) RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := a.currentRole(c)
		if !ok {
			return
		}

		for _, name := range allowed {
			if role.Name == name {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"code": http.StatusForbidden,
			"msg":  "权限不足",
		})
		c.Abort()
	}
}

// RequireMinLevel 要求当前角色层级不低于给定值
func (a *Authz) RequireMinLevel(level int) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := a.currentRole(c)
		if !ok {
			return
		}

		if role.Level < level {
			c.JSON(http.StatusForbidden, gin.H{
				"code": http.StatusForbidden,
				"msg":  "权限不足",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin 要求管理类角色
func (a *Authz) RequireAdmin() gin.HandlerFunc {
	return a.RequireRole(domain.RoleSuperAdmin, domain.RoleAdmin)
}

// currentRole 从上下文解析角色；失败时写响应并中止
func (a *Authz) currentRole(c *gin.Context) (*domain.Role, bool) {
	name := RoleFromContext(c)
	if name == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code": http.StatusUnauthorized,
			"msg":  "未登录或令牌缺失",
		})
		c.Abort()
		return nil, false
	}

	role, ok := domain.GetRole(name)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{
			"code": http.StatusForbidden,
			"msg":  "权限不足",
		})
		c.Abort()
		return nil, false
	}
	return role, true
}
