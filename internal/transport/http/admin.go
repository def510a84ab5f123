package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
)

// AdminHandler 处理管理端统计相关的 HTTP 请求
type AdminHandler struct {
	stats *service.StatsService
	log   *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(stats *service.StatsService, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{stats: stats, log: log}
}

// Dashboard 返回管理看板统计数据
// @Summary 管理看板
// @Description 密钥、坐席、会话三类运营统计的聚合快照
// @Tags 管理
// @Produce json
// @Success 200 {object} Response "统计数据"
// @Router /api/admin/dashboard [get]
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.stats.Dashboard(c.Request.Context())
	if err != nil {
		h.log.Error("failed to build dashboard statistics", zap.Error(err))
		InternalError(c, MsgStatisticsGetFailed)
		return
	}
	Success(c, stats)
}

// Roles 返回内置角色及其权限目录
func (h *AdminHandler) Roles(c *gin.Context) {
	roles := make([]*domain.Role, 0, len(domain.BuiltinRoles))
	for _, name := range domain.RoleNames {
		if role, ok := domain.GetRole(name); ok {
			roles = append(roles, role)
		}
	}
	Success(c, gin.H{
		"roles":       roles,
		"permissions": domain.AllPermissions,
	})
}
