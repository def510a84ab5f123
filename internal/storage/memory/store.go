package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

// Store 使用内存保存密钥、用户与会话数据，主要用于开发与测试。
type Store struct {
	mu        sync.RWMutex
	keys      map[string]*domain.AccessKey // keyID -> key
	byValue   map[string]string            // keyValue -> keyID
	usageLogs map[string][]*domain.KeyUsageLog

	users map[string]*domain.User

	sessions map[string]*domain.ChatSession
	messages map[string][]*domain.ChatMessage // sessionID -> messages
	links    map[string]*domain.ShareLink

	// 速率限制计数
	rateLimits map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count     int64
	expiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		keys:       make(map[string]*domain.AccessKey),
		byValue:    make(map[string]string),
		usageLogs:  make(map[string][]*domain.KeyUsageLog),
		users:      make(map[string]*domain.User),
		sessions:   make(map[string]*domain.ChatSession),
		messages:   make(map[string][]*domain.ChatMessage),
		links:      make(map[string]*domain.ShareLink),
		rateLimits: make(map[string]*rateLimitEntry),
	}
}

// ========== KeyRepository ==========

// SaveKey 保存密钥，key_value 唯一。
func (s *Store) SaveKey(ctx context.Context, key *domain.AccessKey) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byValue[key.Value]; ok && existingID != key.ID {
		return storage.ErrKeyValueExists
	}

	cp := *key
	s.keys[key.ID] = &cp
	s.byValue[key.Value] = key.ID
	return nil
}

// GetKey 根据 ID 获取密钥。
func (s *Store) GetKey(ctx context.Context, id string) (*domain.AccessKey, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

// GetKeyByValue 根据密钥值精确查找。
func (s *Store) GetKeyByValue(ctx context.Context, value string) (*domain.AccessKey, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byValue[value]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	cp := *s.keys[id]
	return &cp, nil
}

// KeyValueExists 判断密钥值是否已被占用。
func (s *Store) KeyValueExists(ctx context.Context, value string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byValue[value]
	return ok, nil
}

// ListKeys 按条件筛选密钥，按签发时间倒序分页。
func (s *Store) ListKeys(ctx context.Context, filter domain.KeyListFilter) ([]domain.AccessKey, int, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.AccessKey, 0, len(s.keys))
	for _, key := range s.keys {
		if filter.Status != nil && key.Status != *filter.Status {
			continue
		}
		if filter.Kind != nil && key.Kind != *filter.Kind {
			continue
		}
		matched = append(matched, *key)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].IssuedAt.After(matched[j].IssuedAt)
	})

	total := len(matched)
	page, limit := normalizePage(filter.Page, filter.Limit)
	start := (page - 1) * limit
	if start >= total {
		return []domain.AccessKey{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateKey 覆盖密钥的可变字段。
func (s *Store) UpdateKey(ctx context.Context, key *domain.AccessKey) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.keys[key.ID]
	if !ok {
		return storage.ErrKeyNotFound
	}

	// 密钥值不可变更
	key.Value = existing.Value
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

// UpdateKeyStatus 直接更新密钥状态。
func (s *Store) UpdateKeyStatus(ctx context.Context, id string, status domain.KeyStatus) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return storage.ErrKeyNotFound
	}
	key.Status = status
	key.UpdatedAt = time.Now()
	return nil
}

// DeleteKey 删除密钥。
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return storage.ErrKeyNotFound
	}
	delete(s.byValue, key.Value)
	delete(s.keys, id)
	delete(s.usageLogs, id)
	return nil
}

// IncrementKeyUsage 带守卫地递增使用次数。
//
// 仅当密钥仍为 active 且未达 max_usage 时生效，
// 与 SQL 实现的条件 UPDATE 等价。
func (s *Store) IncrementKeyUsage(ctx context.Context, id string, now time.Time) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return storage.ErrKeyNotFound
	}
	if key.Status != domain.KeyStatusActive {
		return storage.ErrUsageConflict
	}
	if key.MaxUsage != nil && key.UsageCount >= *key.MaxUsage {
		return storage.ErrUsageConflict
	}

	key.UsageCount++
	used := now
	key.LastUsedAt = &used
	key.UpdatedAt = now
	return nil
}

// MarkKeyExpired 惰性过期落库，未命中守卫条件时静默返回。
func (s *Store) MarkKeyExpired(ctx context.Context, id string, now time.Time) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return storage.ErrKeyNotFound
	}
	if key.Status == domain.KeyStatusActive && now.After(key.ExpiresAt) {
		key.Status = domain.KeyStatusExpired
		key.UpdatedAt = now
	}
	return nil
}

// ========== UsageLogRepository ==========

// AppendUsageLog 追加一条使用日志。
func (s *Store) AppendUsageLog(ctx context.Context, log *domain.KeyUsageLog) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *log
	s.usageLogs[log.KeyID] = append(s.usageLogs[log.KeyID], &cp)
	return nil
}

// ListUsageLogs 按时间倒序分页返回某密钥的使用日志。
func (s *Store) ListUsageLogs(ctx context.Context, keyID string, page, limit int) ([]domain.KeyUsageLog, int, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := s.usageLogs[keyID]
	total := len(logs)

	ordered := make([]domain.KeyUsageLog, total)
	for i, log := range logs {
		ordered[total-1-i] = *log
	}

	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	if start >= total {
		return []domain.KeyUsageLog{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return ordered[start:end], total, nil
}

// ========== UserRepository ==========

// CreateUser 创建用户。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// UpdateUser 覆盖用户记录。
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrUserNotFound
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// ListUsers 返回全部用户快照。
func (s *Store) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SetUserOnline 更新在线标记与活跃时间。
func (s *Store) SetUserOnline(id string, online bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.IsOnline = online
	user.LastActiveAt = &now
	user.UpdatedAt = now
	if !online {
		user.Status = domain.AgentOffline
	}
	return nil
}

// UpdateAgentStatus 更新坐席工作状态。
func (s *Store) UpdateAgentStatus(id string, status domain.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.Status = status
	user.UpdatedAt = time.Now()
	return nil
}

// ========== SessionRepository ==========

// SaveSession 保存会话。
func (s *Store) SaveSession(session *domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// GetSession 根据 ID 获取会话。
func (s *Store) GetSession(id string) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

// UpdateSession 覆盖会话记录。
func (s *Store) UpdateSession(session *domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return storage.ErrSessionNotFound
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// ListSessions 返回会话快照，可按状态筛选。
func (s *Store) ListSessions(status *domain.SessionStatus) ([]domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if status != nil && sess.Status != *status {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListSessionsByAgent 返回某坐席的全部会话。
func (s *Store) ListSessionsByAgent(agentID string) ([]domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatSession, 0)
	for _, sess := range s.sessions {
		if sess.AgentID != nil && *sess.AgentID == agentID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CountActiveSessionsByAgent 统计坐席当前进行中的会话数。
func (s *Store) CountActiveSessionsByAgent(agentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionActive && sess.AgentID != nil && *sess.AgentID == agentID {
			count++
		}
	}
	return count, nil
}

// SaveChatMessage 保存消息并同步更新会话计数。
func (s *Store) SaveChatMessage(message *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[message.SessionID]
	if !ok {
		return storage.ErrSessionNotFound
	}

	cp := *message
	s.messages[message.SessionID] = append(s.messages[message.SessionID], &cp)

	sess.MessageCount++
	at := message.CreatedAt
	sess.LastMessageAt = &at
	sess.UpdatedAt = at
	return nil
}

// ListChatMessages 按时间顺序分页返回会话消息。
func (s *Store) ListChatMessages(sessionID string, page, limit int) ([]domain.ChatMessage, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	total := len(msgs)

	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	if start >= total {
		return []domain.ChatMessage{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]domain.ChatMessage, 0, end-start)
	for _, m := range msgs[start:end] {
		out = append(out, *m)
	}
	return out, total, nil
}

// SaveShareLink 保存短链接。
func (s *Store) SaveShareLink(link *domain.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *link
	s.links[link.ID] = &cp
	return nil
}

// GetShareLink 根据短码获取短链接。
func (s *Store) GetShareLink(id string) (*domain.ShareLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[id]
	if !ok {
		return nil, storage.ErrShareLinkNotFound
	}
	cp := *link
	return &cp, nil
}

// ========== RateLimitRepository ==========

// IncrRateLimit 递增窗口计数，窗口过期后重新计数。
func (s *Store) IncrRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		s.rateLimits[key] = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		s.pruneRateLimitsLocked(now)
		return 1, nil
	}
	entry.count++
	return entry.count, nil
}

// GetRateLimit 返回当前窗口计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimits[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

func (s *Store) pruneRateLimitsLocked(now time.Time) {
	for k, entry := range s.rateLimits {
		if now.After(entry.expiresAt) {
			delete(s.rateLimits, k)
		}
	}
}

// Health 内存存储始终可用。
func (s *Store) Health() error {
	return nil
}

// ctxErr 将已取消/超时的 context 归一为 storage.ErrUnavailable，
// 与 SQL 实现的超时语义保持一致。
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return page, limit
}

var _ storage.Store = (*Store)(nil)
var _ storage.RateLimitRepository = (*Store)(nil)
