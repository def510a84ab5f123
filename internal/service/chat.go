package service

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/cache"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/keygen"
	"github.com/Ayi-pei/yunjvcrm/internal/security"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("chat session is closed")
	// ErrShareLinkNotFound 分享链接不存在
	ErrShareLinkNotFound = errors.New("share link not found")
	// ErrNoAvailableAgent 没有可接待的坐席
	ErrNoAvailableAgent = errors.New("no available agent")
	// ErrContentRejected 消息内容被过滤器拦截
	ErrContentRejected = errors.New("message content rejected")
)

// MessageNotifier 新消息的实时推送出口，由 websocket hub 实现
type MessageNotifier interface {
	NotifyMessage(session *domain.ChatSession, message *domain.ChatMessage)
}

// ChatService 会话服务：客户接入、消息流转、分享链接
type ChatService struct {
	store    storage.Store
	links    *cache.LocalCache // 分享链接解析是公开热路径
	filter   *security.ContentFilter
	notifier MessageNotifier
	log      *zap.Logger
}

// NewChatService 创建会话服务
func NewChatService(store storage.Store, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		store:  store,
		links:  cache.NewLocalCache(5 * time.Minute),
		filter: security.NewContentFilter(),
		log:    log,
	}
}

// SetMessageNotifier 注入消息推送出口
func (s *ChatService) SetMessageNotifier(n MessageNotifier) {
	s.notifier = n
}

// StartSessionInput 客户发起会话的输入
type StartSessionInput struct {
	CustomerName string
	ShareLinkID  string // 为空时走负载均衡分配
}

// StartSession 客户发起会话
//
// 指定分享链接时直连对应坐席，否则分配给活跃会话数最少且
// 未达上限的在线坐席。
func (s *ChatService) StartSession(input StartSessionInput) (*domain.ChatSession, error) {
	var agentID string
	if input.ShareLinkID != "" {
		link, err := s.store.GetShareLink(input.ShareLinkID)
		if err != nil {
			return nil, ErrShareLinkNotFound
		}
		agentID = link.AgentID
	} else {
		picked, err := s.pickAgent()
		if err != nil {
			return nil, err
		}
		agentID = picked
	}

	now := time.Now()
	session := &domain.ChatSession{
		ID:           uuid.New().String(),
		AgentID:      &agentID,
		CustomerID:   uuid.New().String(),
		CustomerName: input.CustomerName,
		Status:       domain.SessionWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if session.CustomerName == "" {
		session.CustomerName = "访客-" + session.CustomerID[:8]
	}

	if err := s.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.log.Info("chat session started",
		zap.String("session_id", session.ID),
		zap.String("agent_id", agentID))
	return session, nil
}

// pickAgent 选择活跃会话数最少的可用坐席
func (s *ChatService) pickAgent() (string, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return "", fmt.Errorf("list agents: %w", err)
	}

	type candidate struct {
		id   string
		load int
	}
	var candidates []candidate
	for _, u := range users {
		if u.Status != domain.AgentOnline {
			continue
		}
		load, err := s.store.CountActiveSessionsByAgent(u.ID)
		if err != nil {
			continue
		}
		if u.MaxSessions > 0 && load >= u.MaxSessions {
			continue
		}
		candidates = append(candidates, candidate{id: u.ID, load: load})
	}
	if len(candidates) == 0 {
		return "", ErrNoAvailableAgent
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].load < candidates[j].load
	})
	return candidates[0].id, nil
}

// Get 获取会话
func (s *ChatService) Get(sessionID string) (*domain.ChatSession, error) {
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Accept 坐席接入会话，waiting -> active
func (s *ChatService) Accept(sessionID, agentID string) (*domain.ChatSession, error) {
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if session.Status == domain.SessionClosed {
		return nil, ErrSessionClosed
	}

	now := time.Now()
	session.Status = domain.SessionActive
	if agentID != "" {
		session.AgentID = &agentID
	}
	session.UpdatedAt = now
	if err := s.store.UpdateSession(session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// Close 关闭会话
func (s *ChatService) Close(sessionID string) (*domain.ChatSession, error) {
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if session.Status == domain.SessionClosed {
		return session, nil
	}

	now := time.Now()
	session.Status = domain.SessionClosed
	session.ClosedAt = &now
	session.UpdatedAt = now
	if err := s.store.UpdateSession(session); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}

	s.log.Info("chat session closed", zap.String("session_id", sessionID))
	return session, nil
}

// ListByAgent 列出坐席的会话
func (s *ChatService) ListByAgent(agentID string) ([]domain.ChatSession, error) {
	return s.store.ListSessionsByAgent(agentID)
}

// List 按状态列出会话，status 为 nil 时返回全部
func (s *ChatService) List(status *domain.SessionStatus) ([]domain.ChatSession, error) {
	return s.store.ListSessions(status)
}

// SendMessageInput 发送消息的输入
type SendMessageInput struct {
	SessionID  string
	SenderID   string
	SenderType domain.SenderType
	Type       domain.MessageType
	Content    string
}

// SendMessage 发送消息并推送给会话双方
func (s *ChatService) SendMessage(input SendMessageInput) (*domain.ChatMessage, error) {
	session, err := s.store.GetSession(input.SessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if session.Status == domain.SessionClosed {
		return nil, ErrSessionClosed
	}

	if input.Type == "" {
		input.Type = domain.MessageText
	}

	if input.Type == domain.MessageText {
		if ok, reason := s.filter.FilterMessage(input.Content); !ok {
			s.log.Warn("message content rejected",
				zap.String("session_id", input.SessionID),
				zap.String("reason", reason))
			return nil, ErrContentRejected
		}
	}

	message := &domain.ChatMessage{
		ID:         uuid.New().String(),
		SessionID:  session.ID,
		SenderID:   input.SenderID,
		SenderType: input.SenderType,
		Type:       input.Type,
		Content:    input.Content,
		CreatedAt:  time.Now(),
	}
	if err := s.store.SaveChatMessage(message); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyMessage(session, message)
	}
	return message, nil
}

// Messages 拉取会话消息
func (s *ChatService) Messages(sessionID string, page, limit int) ([]domain.ChatMessage, int, error) {
	if _, err := s.store.GetSession(sessionID); err != nil {
		return nil, 0, ErrSessionNotFound
	}
	return s.store.ListChatMessages(sessionID, page, limit)
}

// CreateShareLink 为坐席生成短链接
func (s *ChatService) CreateShareLink(agentID string) (*domain.ShareLink, error) {
	if _, err := s.store.GetUserByID(agentID); err != nil {
		return nil, ErrAgentNotFound
	}

	exists := func(id string) (bool, error) {
		_, err := s.store.GetShareLink(id)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, storage.ErrShareLinkNotFound) {
			return false, nil
		}
		return false, err
	}

	id, err := keygen.GenerateShortID(exists, keygen.DefaultMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("generate share link id: %w", err)
	}

	link := &domain.ShareLink{
		ID:        id,
		AgentID:   agentID,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveShareLink(link); err != nil {
		return nil, fmt.Errorf("save share link: %w", err)
	}
	return link, nil
}

// ResolveShareLink 解析短链接
func (s *ChatService) ResolveShareLink(id string) (*domain.ShareLink, error) {
	if cached, ok := s.links.Get(id); ok {
		return cached.(*domain.ShareLink), nil
	}

	link, err := s.store.GetShareLink(id)
	if err != nil {
		return nil, ErrShareLinkNotFound
	}

	s.links.Set(id, link, 0)
	return link, nil
}
