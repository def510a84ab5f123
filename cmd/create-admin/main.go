package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/config"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/logger"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/hybrid"
)

// main 初始化管理员账号并签发一把管理员密钥。
//
// 保留密钥 adminayi888 由配置直通认证，不落库；这里签发的是
// 一把常规的 12 位管理员密钥，用于多管理员场景。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.NewDevelopmentLogger()

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Error("database is not configured, set YUNJV_DATABASE_TYPE and YUNJV_DATABASE_DSN")
		os.Exit(1)
	}

	store, err := hybrid.NewStore(&cfg.Database, &cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect storage", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	now := time.Now()
	admin := &domain.User{
		ID:        uuid.New().String(),
		Name:      "管理员",
		RoleName:  domain.RoleSuperAdmin,
		Status:    domain.AgentOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateUser(admin); err != nil {
		log.Error("failed to create admin user", zap.Error(err))
		os.Exit(1)
	}
	log.Info("admin user created", zap.String("user_id", admin.ID))

	keys := service.NewKeyService(store, cfg.Admin.Key, log)
	key, err := keys.Issue(context.Background(), service.IssueKeyInput{
		Kind:         domain.KeyKindAdmin,
		ValidityDays: cfg.Key.DefaultValidityDays,
		OwnerID:      &admin.ID,
		Notes:        "初始管理员密钥",
		IssuedBy:     "system",
	})
	if err != nil {
		log.Error("failed to issue admin key", zap.Error(err))
		os.Exit(1)
	}

	log.Info("admin key issued",
		zap.String("key_id", key.ID),
		zap.Time("expires_at", key.ExpiresAt),
	)
	fmt.Printf("管理员密钥: %s\n", key.Value)
}
