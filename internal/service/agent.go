package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

var (
	// ErrAgentNotFound 坐席不存在
	ErrAgentNotFound = errors.New("agent not found")
	// ErrInvalidStatusTransition 非法的状态流转
	ErrInvalidStatusTransition = errors.New("invalid agent status transition")
)

// PresenceNotifier 坐席在线状态变更的广播出口，由 websocket hub 实现
type PresenceNotifier interface {
	NotifyAgentStatus(agentID string, status domain.AgentStatus)
}

// AgentService 坐席服务：状态机流转、在线状态与工作负载视图
type AgentService struct {
	store    storage.Store
	presence PresenceNotifier
	log      *zap.Logger
}

// NewAgentService 创建坐席服务
func NewAgentService(store storage.Store, log *zap.Logger) *AgentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AgentService{store: store, log: log}
}

// SetPresenceNotifier 注入状态广播出口
func (s *AgentService) SetPresenceNotifier(n PresenceNotifier) {
	s.presence = n
}

// AgentView 坐席视图：用户信息加上当前工作负载
type AgentView struct {
	*domain.User
	ActiveSessions int `json:"activeSessions"`
}

// Get 获取单个坐席
func (s *AgentService) Get(agentID string) (*AgentView, error) {
	user, err := s.store.GetUserByID(agentID)
	if err != nil {
		return nil, ErrAgentNotFound
	}
	return s.decorate(user), nil
}

// List 列出全部坐席
func (s *AgentService) List() ([]*AgentView, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	views := make([]*AgentView, 0, len(users))
	for i := range users {
		u := users[i]
		views = append(views, s.decorate(&u))
	}
	return views, nil
}

// ChangeStatus 流转坐席状态
//
// 流转必须符合状态机定义，例如 offline 只能进入 online。
// 成功后广播给在线的管理端。
func (s *AgentService) ChangeStatus(agentID string, target domain.AgentStatus) (*AgentView, error) {
	user, err := s.store.GetUserByID(agentID)
	if err != nil {
		return nil, ErrAgentNotFound
	}

	if !domain.IsValidStatusTransition(user.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, user.Status, target)
	}

	if err := s.store.UpdateAgentStatus(agentID, target); err != nil {
		return nil, fmt.Errorf("update agent status: %w", err)
	}
	now := time.Now()
	user.Status = target
	user.IsOnline = target != domain.AgentOffline
	user.UpdatedAt = now
	user.LastActiveAt = &now

	s.log.Info("agent status changed",
		zap.String("agent_id", agentID),
		zap.String("status", string(target)))

	if s.presence != nil {
		s.presence.NotifyAgentStatus(agentID, target)
	}
	return s.decorate(user), nil
}

// AvailableTransitions 返回坐席当前可进入的状态
func (s *AgentService) AvailableTransitions(agentID string) ([]domain.AgentStatus, error) {
	user, err := s.store.GetUserByID(agentID)
	if err != nil {
		return nil, ErrAgentNotFound
	}
	return domain.AvailableTransitions(user.Status), nil
}

// UpdateProfile 更新坐席资料
func (s *AgentService) UpdateProfile(agentID string, name, email string, maxSessions int) (*AgentView, error) {
	user, err := s.store.GetUserByID(agentID)
	if err != nil {
		return nil, ErrAgentNotFound
	}

	if name != "" {
		user.Name = name
	}
	if email != "" {
		user.Email = email
	}
	if maxSessions > 0 {
		user.MaxSessions = maxSessions
	}
	user.UpdatedAt = time.Now()

	if err := s.store.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return s.decorate(user), nil
}

func (s *AgentService) decorate(user *domain.User) *AgentView {
	count, err := s.store.CountActiveSessionsByAgent(user.ID)
	if err != nil {
		count = 0
	}
	return &AgentView{User: user, ActiveSessions: count}
}
