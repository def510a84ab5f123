package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/auth"
	jwtpkg "github.com/Ayi-pei/yunjvcrm/internal/auth/jwt"
	"github.com/Ayi-pei/yunjvcrm/internal/config"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/health"
	"github.com/Ayi-pei/yunjvcrm/internal/middleware"
	"github.com/Ayi-pei/yunjvcrm/internal/monitoring"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
	"github.com/Ayi-pei/yunjvcrm/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	AuthService   *auth.Service
	KeyService    *service.KeyService
	AgentService  *service.AgentService
	ChatService   *service.ChatService
	StatsService  *service.StatsService
	JWTManager    *jwtpkg.Manager
	WebSocketHub  *websocket.Hub
	Store         storage.Store
	Metrics       *monitoring.Metrics
	HealthChecker *health.HealthChecker
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(log))
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))

	if deps.Metrics != nil {
		mon := middleware.NewMonitoringMiddleware(deps.Metrics, log)
		router.Use(mon.HTTPMetrics())
		router.Use(mon.BusinessMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	authHandler := NewAuthHandler(deps.AuthService, deps.KeyService, deps.Metrics, log)
	keyHandler := NewKeyHandler(deps.KeyService, deps.Config.Key.DefaultValidityDays, log)
	agentHandler := NewAgentHandler(deps.AgentService, deps.ChatService, log)
	chatHandler := NewChatHandler(deps.ChatService, log)
	adminHandler := NewAdminHandler(deps.StatsService, log)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)
	authz := middleware.NewAuthz()
	rateLimiter := middleware.NewRateLimiter(deps.Store, deps.Config.RateLimit.Requests, deps.Config.RateLimit.Window, log)

	// 健康检查与指标
	if deps.HealthChecker != nil {
		router.GET("/health", gin.WrapH(deps.HealthChecker.Handler()))
		router.GET("/health/detail", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.HealthChecker.CheckHealth())
		})
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	api := router.Group("/api")
	api.Use(rateLimiter.General())
	api.Use(middleware.ValidateContentType("application/json"))
	{
		// ========== Auth Routes ==========
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login",
				rateLimiter.Login(deps.Config.RateLimit.LoginAttempts, deps.Config.RateLimit.LoginWindow),
				authHandler.Login)
			authRoutes.POST("/validate-key", authHandler.ValidateKey)
			authRoutes.POST("/logout", authHandler.Logout)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Key Routes（管理端） ==========
		keyRoutes := api.Group("/keys")
		keyRoutes.Use(jwtAuth.RequireAuth(), authz.RequireAdmin())
		{
			keyRoutes.GET("", keyHandler.List)
			keyRoutes.POST("", keyHandler.Generate)
			keyRoutes.POST("/generate", keyHandler.Generate)
			keyRoutes.GET("/statistics", keyHandler.Statistics)
			keyRoutes.GET("/:id", keyHandler.Get)
			keyRoutes.PUT("/:id", keyHandler.Update)
			keyRoutes.PATCH("/:id", keyHandler.Update)
			keyRoutes.POST("/:id/suspend", keyHandler.Suspend)
			keyRoutes.POST("/:id/activate", keyHandler.Activate)
			// 删除动作只开放给超级管理员
			keyRoutes.DELETE("/:id", authz.RequireRole(domain.RoleSuperAdmin), keyHandler.Delete)
			keyRoutes.GET("/:id/logs", keyHandler.Logs)
		}

		// ========== Agent Routes ==========
		agentRoutes := api.Group("/agents")
		agentRoutes.Use(jwtAuth.RequireAuth())
		{
			agentRoutes.GET("", authz.RequireMinLevel(domain.LevelSupervisor), agentHandler.List)
			agentRoutes.GET("/:id", agentHandler.Get)
			agentRoutes.POST("/:id/status", agentHandler.ChangeStatus)
			agentRoutes.GET("/:id/transitions", agentHandler.Transitions)
			agentRoutes.PATCH("/:id", agentHandler.UpdateProfile)
			agentRoutes.POST("/:id/share-link", agentHandler.CreateShareLink)
		}

		// ========== Chat Routes ==========
		chatRoutes := api.Group("/chat")
		{
			// 公开接口：客户侧无需登录
			chatRoutes.POST("/sessions", chatHandler.StartSession)
			chatRoutes.GET("/sessions/:id", chatHandler.GetSession)
			chatRoutes.GET("/sessions/:id/messages", chatHandler.Messages)
			chatRoutes.POST("/sessions/:id/messages", jwtAuth.OptionalAuth(), chatHandler.SendMessage)
			chatRoutes.GET("/share/:id", chatHandler.ResolveShareLink)

			// 坐席侧
			chatRoutes.GET("/sessions", jwtAuth.RequireAuth(), authz.RequirePermission("chat.history"), chatHandler.ListSessions)
			chatRoutes.GET("/my-sessions", jwtAuth.RequireAuth(), chatHandler.MySessions)
			chatRoutes.POST("/sessions/:id/accept", jwtAuth.RequireAuth(), chatHandler.Accept)
			chatRoutes.POST("/sessions/:id/close", jwtAuth.RequireAuth(), authz.RequirePermission("chat.end"), chatHandler.Close)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			api.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}

		// ========== Admin Routes ==========
		adminRoutes := api.Group("/admin")
		adminRoutes.Use(jwtAuth.RequireAuth(), authz.RequireAdmin())
		// 聚合统计会扫全量密钥，单独加超时兜底
		adminRoutes.Use(middleware.Timeout(15 * time.Second))
		{
			adminRoutes.GET("/dashboard", adminHandler.Dashboard)
			adminRoutes.GET("/roles", adminHandler.Roles)
		}
	}

	return router
}
