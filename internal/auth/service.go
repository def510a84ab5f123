package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/auth/jwt"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/pool"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

var (
	// ErrMissingAccessKey 未提供访问密钥
	ErrMissingAccessKey = errors.New("access key is required")
)

// Service 认证服务：密钥认证成功后签发会话令牌，
// 维护在线状态并记录使用日志。
type Service struct {
	store       storage.Store
	keys        *service.KeyService
	tokens      *jwt.Manager
	logs        *pool.WorkerPool // 使用日志异步落库
	maxSessions int              // 新建坐席的默认并发会话上限
	log         *zap.Logger
}

// NewService 创建认证服务
func NewService(store storage.Store, keys *service.KeyService, tokens *jwt.Manager, logs *pool.WorkerPool, maxSessions int, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       store,
		keys:        keys,
		tokens:      tokens,
		logs:        logs,
		maxSessions: maxSessions,
		log:         log,
	}
}

// LoginInput 登录输入
type LoginInput struct {
	AccessKey string
	IPAddress string
	UserAgent string
}

// LoginResult 登录成功的返回载荷
type LoginResult struct {
	User  *SessionUser `json:"user"`
	Token string       `json:"token"`
}

// SessionUser 登录返回给客户端的用户视图
type SessionUser struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Role         *domain.Role    `json:"role"`
	Type         domain.UserType `json:"type"`
	AccessKey    string          `json:"accessKey,omitempty"`
	KeyExpiresAt *time.Time      `json:"keyExpiresAt,omitempty"`
}

// Login 用访问密钥登录
//
// 密钥认证通过后：解析绑定的用户身份（未绑定的密钥在首次登录时
// 自动创建坐席身份并回绑）、置为在线、签发会话令牌、异步记录使用日志。
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}

	key, err := s.keys.Authenticate(ctx, input.AccessKey)
	if err != nil {
		return nil, err
	}

	userType := domain.UserTypeAgent
	if key.Kind == domain.KeyKindAdmin {
		userType = domain.UserTypeAdmin
	}

	user, err := s.resolveUser(ctx, key, userType)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.store.SetUserOnline(user.ID, true, now); err != nil {
		s.log.Warn("failed to mark user online", zap.String("user_id", user.ID), zap.Error(err))
	}

	keyID := ""
	if userType == domain.UserTypeAgent {
		keyID = key.ID
	}
	token, err := s.tokens.Issue(user.ID, user.RoleName, userType, keyID)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.appendUsageLog(key.ID, user.ID, domain.UsageActionLogin, input)

	result := &LoginResult{
		Token: token,
		User: &SessionUser{
			ID:   user.ID,
			Name: user.Name,
			Role: user.Role(),
			Type: userType,
		},
	}
	if userType == domain.UserTypeAgent {
		result.User.AccessKey = key.Value
		result.User.KeyExpiresAt = &key.ExpiresAt
	}
	return result, nil
}

// resolveUser 解析密钥绑定的身份；未绑定时首次登录自动建档
//
// 管理员身份全局唯一：保留密钥（以及失去绑定的管理员密钥）重复登录
// 时复用已有的超级管理员档案，不会每次登录都新建一个用户。
func (s *Service) resolveUser(ctx context.Context, key *domain.AccessKey, userType domain.UserType) (*domain.User, error) {
	if key.OwnerID != nil {
		user, err := s.store.GetUserByID(*key.OwnerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("lookup key owner: %w", err)
		}
		// 绑定的用户已被删除，走重建路径
	}

	if userType == domain.UserTypeAdmin {
		admin, err := s.findSuperAdmin()
		if err != nil {
			return nil, err
		}
		if admin != nil {
			return admin, nil
		}
	}

	roleName := domain.RoleAgent
	name := "坐席-" + shortID(key.ID)
	if userType == domain.UserTypeAdmin {
		roleName = domain.RoleSuperAdmin
		name = "管理员"
	}

	now := time.Now()
	user := &domain.User{
		ID:          uuid.New().String(),
		Name:        name,
		RoleName:    roleName,
		Status:      domain.AgentOffline,
		MaxSessions: s.maxSessions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, fmt.Errorf("provision user for key: %w", err)
	}

	// 回绑密钥与身份；合成的保留密钥记录不落库
	if key.ID != "" && key.ID != "admin-reserved" {
		key.OwnerID = &user.ID
		if err := s.store.UpdateKey(ctx, key); err != nil {
			s.log.Warn("failed to bind key owner", zap.String("key_id", key.ID), zap.Error(err))
		}
	}
	return user, nil
}

// findSuperAdmin 返回最早建档的超级管理员，不存在时返回 nil
func (s *Service) findSuperAdmin() (*domain.User, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("lookup super admin: %w", err)
	}

	var found *domain.User
	for i := range users {
		if users[i].RoleName != domain.RoleSuperAdmin {
			continue
		}
		if found == nil || users[i].CreatedAt.Before(found.CreatedAt) {
			found = &users[i]
		}
	}
	return found, nil
}

// Logout 登出
//
// 客户端会话清理不应被服务端状态阻塞：令牌无效或已过期时
// 仍然视为登出成功，仅尽力更新离线状态与日志。
func (s *Service) Logout(tokenString, ipAddress, userAgent string) {
	if tokenString == "" {
		return
	}

	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return
	}

	now := time.Now()
	if err := s.store.SetUserOnline(claims.UserID, false, now); err != nil {
		s.log.Debug("failed to mark user offline", zap.String("user_id", claims.UserID), zap.Error(err))
	}

	if claims.KeyID != "" {
		s.appendUsageLog(claims.KeyID, claims.UserID, domain.UsageActionLogout, LoginInput{
			IPAddress: ipAddress,
			UserAgent: userAgent,
		})
	}
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

// appendUsageLog 异步追加使用日志；队列满时降级为同步写
func (s *Service) appendUsageLog(keyID, userID string, action domain.UsageAction, input LoginInput) {
	if keyID == "" || keyID == "admin-reserved" {
		return
	}

	entry := &domain.KeyUsageLog{
		ID:        uuid.New().String(),
		KeyID:     keyID,
		UserID:    userID,
		Action:    action,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		CreatedAt: time.Now(),
	}

	// 日志落库可能在请求返回之后执行，不携带请求 context
	write := func() {
		if err := s.store.AppendUsageLog(context.Background(), entry); err != nil {
			s.log.Warn("failed to append usage log",
				zap.String("key_id", keyID), zap.String("action", string(action)), zap.Error(err))
		}
	}

	if s.logs == nil || !s.logs.TrySubmit(write) {
		write()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
