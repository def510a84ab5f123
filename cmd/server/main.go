package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ayi-pei/yunjvcrm/internal/auth"
	jwtpkg "github.com/Ayi-pei/yunjvcrm/internal/auth/jwt"
	"github.com/Ayi-pei/yunjvcrm/internal/config"
	"github.com/Ayi-pei/yunjvcrm/internal/health"
	"github.com/Ayi-pei/yunjvcrm/internal/logger"
	"github.com/Ayi-pei/yunjvcrm/internal/monitoring"
	"github.com/Ayi-pei/yunjvcrm/internal/pool"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/hybrid"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/memory"
	httptransport "github.com/Ayi-pei/yunjvcrm/internal/transport/http"
	"github.com/Ayi-pei/yunjvcrm/internal/websocket"
)

// main 启动客服系统 API 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting yunjvcrm server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		hybridStore, err := hybrid.NewStore(&cfg.Database, &cfg.Redis, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize hybrid storage: %v", err))
		}
		defer hybridStore.Close()
		store = hybridStore
		log.Info("using hybrid storage",
			zap.String("database_type", cfg.Database.Type),
			zap.String("redis_address", cfg.Redis.Address),
		)
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)

	// 初始化服务层
	keyService := service.NewKeyService(store, cfg.Admin.Key, log)
	agentService := service.NewAgentService(store, log)
	chatService := service.NewChatService(store, log)
	statsService := service.NewStatsService(store, keyService, log)

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("expiry", cfg.JWT.Expiry),
	)

	// 使用日志异步落库的协程池
	logPool := pool.NewWorkerPool(4, 256, log)

	authService := auth.NewService(store, keyService, jwtManager, logPool, cfg.Chat.MaxSessionsPerAgent, log)

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0))
	alertManager.AddRule(monitoring.StoreConnectionRule(store))
	alertManager.AddRule(monitoring.ExpiringKeysRule(func() int {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stats, err := keyService.Statistics(ctx)
		if err != nil {
			return 0
		}
		return stats.ExpiringSoon
	}, 10))
	log.Info("monitoring system initialized")

	// 创建 WebSocket Hub 并接入实时通知
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, chatService, metrics, log)
	chatService.SetMessageNotifier(wsHub)
	agentService.SetPresenceNotifier(wsHub)
	if keeper, ok := store.(websocket.PresenceKeeper); ok {
		wsHub.SetPresenceKeeper(keeper)
	}

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		AuthService:   authService,
		KeyService:    keyService,
		AgentService:  agentService,
		ChatService:   chatService,
		StatsService:  statsService,
		JWTManager:    jwtManager,
		WebSocketHub:  wsHub,
		Store:         store,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 日志协程池
	logPool.Start(groupCtx)
	defer logPool.Stop()

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定期扫描过期密钥 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		log.Info("starting expired key sweep task", zap.Duration("interval", 10*time.Minute))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("expired key sweep stopped")
				return nil
			case <-ticker.C:
				stats, err := keyService.Statistics(groupCtx)
				if err != nil {
					log.Error("failed to compute key statistics", zap.Error(err))
					continue
				}
				metrics.UpdateKeysActive(stats.Active)
				if stats.ExpiringSoon > 0 {
					log.Info("keys expiring soon", zap.Int("count", stats.ExpiringSoon))
				}
			}
		}
	})

	// 告警监控 goroutine
	group.Go(func() error {
		log.Info("starting monitoring services")
		alertManager.StartMonitoring(groupCtx, 1*time.Minute)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
