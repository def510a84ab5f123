package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/config"
	"github.com/Ayi-pei/yunjvcrm/internal/logger"
	sqlstore "github.com/Ayi-pei/yunjvcrm/internal/storage/sql"
)

// main 执行数据库表结构迁移。
//
// 建表逻辑由存储层在初始化时完成，这里仅负责连接、触发与校验。
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

	log.Info("running database migration",
		zap.String("database_type", cfg.Database.Type),
	)

	store, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		log.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Health(); err != nil {
		log.Error("database health check failed after migration", zap.Error(err))
		os.Exit(1)
	}

	log.Info("database migration completed")
}
