package hybrid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/config"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/redis"
	sqlstore "github.com/Ayi-pei/yunjvcrm/internal/storage/sql"
)

// Store 混合存储：SQL 承载业务数据，Redis 承载限流计数与坐席在线状态
//
// 限流窗口和在线状态需要在多实例间共享且随 TTL 自动回收，放 Redis；
// 其余读写直接透传给 SQL 存储。
type Store struct {
	*sqlstore.Store
	redis *redis.Client
	log   *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建混合存储实例
func NewStore(dbCfg *config.DatabaseConfig, redisCfg *config.RedisConfig, log *zap.Logger) (*Store, error) {
	dbStore, err := sqlstore.NewStore(
		dbCfg.Type,
		dbCfg.DSN,
		dbCfg.MaxOpenConns,
		dbCfg.MaxIdleConns,
		dbCfg.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient, err := redis.New(redisCfg, log)
	if err != nil {
		dbStore.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		Store: dbStore,
		redis: redisClient,
		log:   log,
	}, nil
}

// Redis 暴露 Redis 客户端，供在线状态等旁路功能使用
func (s *Store) Redis() *redis.Client {
	return s.redis
}

// SetUserOnline 在线翻转同时落 SQL 与 Redis 在线状态
//
// 在线状态只是旁路视图，Redis 写失败不阻断登录/登出，
// 记录告警后以 SQL 结果为准。
func (s *Store) SetUserOnline(id string, online bool, now time.Time) error {
	if err := s.Store.SetUserOnline(id, online, now); err != nil {
		return err
	}

	ctx, cancel := presenceContext()
	defer cancel()

	var err error
	if online {
		err = s.redis.SetAgentPresence(ctx, id, string(domain.AgentOnline), redis.DefaultPresenceTTL)
	} else {
		err = s.redis.ClearAgentPresence(ctx, id)
	}
	if err != nil {
		s.log.Warn("failed to update agent presence",
			zap.String("user_id", id), zap.Bool("online", online), zap.Error(err))
	}
	return nil
}

// UpdateAgentStatus 状态切换同步刷新 Redis 在线状态
func (s *Store) UpdateAgentStatus(id string, status domain.AgentStatus) error {
	if err := s.Store.UpdateAgentStatus(id, status); err != nil {
		return err
	}

	ctx, cancel := presenceContext()
	defer cancel()

	var err error
	if value, keep := presenceValue(status); keep {
		err = s.redis.SetAgentPresence(ctx, id, value, redis.DefaultPresenceTTL)
	} else {
		err = s.redis.ClearAgentPresence(ctx, id)
	}
	if err != nil {
		s.log.Warn("failed to update agent presence",
			zap.String("user_id", id), zap.String("status", string(status)), zap.Error(err))
	}
	return nil
}

// TouchAgentPresence 心跳续期在线状态的 TTL
func (s *Store) TouchAgentPresence(id string) {
	ctx, cancel := presenceContext()
	defer cancel()

	if err := s.redis.RefreshAgentPresence(ctx, id, redis.DefaultPresenceTTL); err != nil {
		s.log.Debug("failed to refresh agent presence",
			zap.String("user_id", id), zap.Error(err))
	}
}

// ListUsers 返回用户列表，在线标记以 Redis 在线状态为准
//
// 心跳停止后 TTL 过期，连接异常断开的坐席自动显示为离线，
// 即便 SQL 里的 is_online 还没被登出流程清掉。
func (s *Store) ListUsers() ([]domain.User, error) {
	users, err := s.Store.ListUsers()
	if err != nil {
		return nil, err
	}

	ctx, cancel := presenceContext()
	defer cancel()

	online, err := s.redis.OnlineAgents(ctx)
	if err != nil {
		s.log.Warn("failed to list online agents, falling back to sql flags", zap.Error(err))
		return users, nil
	}
	return overlayPresence(users, online), nil
}

// presenceValue 状态对应的在线状态值；离线状态不保留记录
func presenceValue(status domain.AgentStatus) (string, bool) {
	if status == domain.AgentOffline {
		return "", false
	}
	return string(status), true
}

// overlayPresence 用在线状态集合覆写用户的在线标记
func overlayPresence(users []domain.User, online []string) []domain.User {
	set := make(map[string]struct{}, len(online))
	for _, id := range online {
		set[id] = struct{}{}
	}
	for i := range users {
		_, ok := set[users[i].ID]
		users[i].IsOnline = ok
	}
	return users
}

func presenceContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// IncrRateLimit 限流计数走 Redis
func (s *Store) IncrRateLimit(key string, window time.Duration) (int64, error) {
	return s.redis.IncrRateLimit(key, window)
}

// GetRateLimit 读取当前窗口计数
func (s *Store) GetRateLimit(key string) (int64, error) {
	return s.redis.GetRateLimit(key)
}

// Health 同时探测数据库与 Redis
func (s *Store) Health() error {
	if err := s.Store.Health(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.redis.Ping(ctx)
}

// Close 关闭全部连接
func (s *Store) Close() error {
	redisErr := s.redis.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	return redisErr
}
