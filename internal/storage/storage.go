package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

var (
	// ErrKeyNotFound 密钥不存在
	ErrKeyNotFound = errors.New("access key not found")
	// ErrKeyValueExists 密钥值冲突（唯一约束）
	ErrKeyValueExists = errors.New("access key value already exists")
	// ErrUsageConflict 条件更新未命中：使用次数已达上限或状态已变化
	ErrUsageConflict = errors.New("usage increment rejected by store")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrShareLinkNotFound 短链接不存在
	ErrShareLinkNotFound = errors.New("share link not found")
	// ErrUnavailable 存储暂时不可用，调用方可退避重试
	ErrUnavailable = errors.New("store unavailable")
)

// KeyRepository 定义访问密钥的数据存取操作。
//
// 所有方法受调用方 context 约束：认证路径的读写必须在请求超时内
// 完成，超时或连接层故障以 ErrUnavailable 上报。
// IncrementKeyUsage 与 MarkKeyExpired 必须是带条件的原子更新（行级守卫），
// 供认证路径在并发登录下维持使用次数与惰性过期不变量。
type KeyRepository interface {
	SaveKey(ctx context.Context, key *domain.AccessKey) error
	GetKey(ctx context.Context, id string) (*domain.AccessKey, error)
	GetKeyByValue(ctx context.Context, value string) (*domain.AccessKey, error)
	KeyValueExists(ctx context.Context, value string) (bool, error)
	ListKeys(ctx context.Context, filter domain.KeyListFilter) ([]domain.AccessKey, int, error)
	UpdateKey(ctx context.Context, key *domain.AccessKey) error
	UpdateKeyStatus(ctx context.Context, id string, status domain.KeyStatus) error
	DeleteKey(ctx context.Context, id string) error

	// IncrementKeyUsage 原子递增使用次数并刷新 last_used_at：
	// 仅当记录仍为 active 且未达 max_usage 时生效，否则返回 ErrUsageConflict。
	IncrementKeyUsage(ctx context.Context, id string, now time.Time) error

	// MarkKeyExpired 惰性过期落库：仅当记录仍为 active 且已超过有效期时生效。
	// 未命中不视为错误（可能已被并发请求落库）。
	MarkKeyExpired(ctx context.Context, id string, now time.Time) error
}

// UsageLogRepository 定义密钥使用日志的存取操作，只追加。
type UsageLogRepository interface {
	AppendUsageLog(ctx context.Context, log *domain.KeyUsageLog) error
	ListUsageLogs(ctx context.Context, keyID string, page, limit int) ([]domain.KeyUsageLog, int, error)
}

// UserRepository 定义坐席/管理员身份的存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	ListUsers() ([]domain.User, error)
	SetUserOnline(id string, online bool, now time.Time) error
	UpdateAgentStatus(id string, status domain.AgentStatus) error
}

// SessionRepository 定义会话与消息的存取操作。
type SessionRepository interface {
	SaveSession(session *domain.ChatSession) error
	GetSession(id string) (*domain.ChatSession, error)
	UpdateSession(session *domain.ChatSession) error
	ListSessions(status *domain.SessionStatus) ([]domain.ChatSession, error)
	ListSessionsByAgent(agentID string) ([]domain.ChatSession, error)
	CountActiveSessionsByAgent(agentID string) (int, error)

	SaveChatMessage(message *domain.ChatMessage) error
	ListChatMessages(sessionID string, page, limit int) ([]domain.ChatMessage, int, error)

	SaveShareLink(link *domain.ShareLink) error
	GetShareLink(id string) (*domain.ShareLink, error)
}

// RateLimitRepository 定义速率限制计数操作（内存或 Redis 实现）。
type RateLimitRepository interface {
	// IncrRateLimit 递增并返回窗口内计数，窗口首个请求时设置过期
	IncrRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// Store 聚合所有存储接口。
type Store interface {
	KeyRepository
	UsageLogRepository
	UserRepository
	SessionRepository
	RateLimitRepository

	// Health 探测存储连通性，用于健康检查
	Health() error
}
