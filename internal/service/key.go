package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/keygen"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

var (
	// ErrMalformedKey 密钥格式不合法，未发生任何存储访问
	ErrMalformedKey = errors.New("malformed access key")
	// ErrKeyNotFound 密钥不存在
	ErrKeyNotFound = errors.New("access key not found")
	// ErrKeyExpired 密钥已过期
	ErrKeyExpired = errors.New("access key expired")
	// ErrUsageExceeded 密钥使用次数已达上限
	ErrUsageExceeded = errors.New("access key usage exceeded")
	// ErrInvalidValidityPeriod 有效期超出 1-3650 天范围
	ErrInvalidValidityPeriod = errors.New("validity period out of range")
	// ErrInvalidKeyKind 密钥类型无效
	ErrInvalidKeyKind = errors.New("invalid key kind")
	// ErrProtectedKey 受保护的超级管理员密钥不可删除
	ErrProtectedKey = errors.New("cannot delete protected admin key")
)

// KeyInactiveError 密钥处于非 active 状态，携带具体状态便于诊断
type KeyInactiveError struct {
	Status domain.KeyStatus
}

func (e *KeyInactiveError) Error() string {
	return fmt.Sprintf("access key inactive: %s", e.Status)
}

// KeyService 访问密钥生命周期服务
//
// 持有密钥记录的权威状态与认证规则。受保护的超级管理员密钥值
// 由配置显式注入，不读取任何全局状态。
type KeyService struct {
	store    storage.Store
	adminKey string // 超级管理员保留密钥值
	log      *zap.Logger
}

// NewKeyService 创建密钥服务
func NewKeyService(store storage.Store, adminKey string, log *zap.Logger) *KeyService {
	if log == nil {
		log = zap.NewNop()
	}
	return &KeyService{
		store:    store,
		adminKey: adminKey,
		log:      log,
	}
}

// IssueKeyInput 签发密钥的输入参数
type IssueKeyInput struct {
	Kind         domain.KeyKind
	ValidityDays int
	MaxUsage     *int
	OwnerID      *string // 预先绑定的坐席，可为空
	Notes        string
	IssuedBy     string
}

// Issue 签发一把新密钥
//
// 有效期限定在 1-3650 天；密钥值经唯一性重试生成，
// 存储层唯一约束作为并发签发时的最终兜底。
func (s *KeyService) Issue(ctx context.Context, input IssueKeyInput) (*domain.AccessKey, error) {
	if !input.Kind.Valid() {
		return nil, ErrInvalidKeyKind
	}
	if input.ValidityDays < 1 || input.ValidityDays > 3650 {
		return nil, ErrInvalidValidityPeriod
	}
	if input.MaxUsage != nil && *input.MaxUsage < 1 {
		return nil, fmt.Errorf("%w: max usage must be positive", ErrInvalidValidityPeriod)
	}

	now := time.Now()
	key := &domain.AccessKey{
		ID:        uuid.New().String(),
		Kind:      input.Kind,
		Status:    domain.KeyStatusActive,
		OwnerID:   input.OwnerID,
		CreatedBy: input.IssuedBy,
		Notes:     input.Notes,
		IssuedAt:  now,
		UpdatedAt: now,
		ExpiresAt: now.AddDate(0, 0, input.ValidityDays),
	}

	// 插入冲突视为可重试条件而非致命错误
	for attempt := 0; attempt < 2; attempt++ {
		exists := func(value string) (bool, error) {
			return s.store.KeyValueExists(ctx, value)
		}
		value, err := keygen.GenerateUnique(input.Kind, exists, keygen.DefaultMaxAttempts)
		if err != nil {
			return nil, err
		}
		key.Value = value

		err = s.store.SaveKey(ctx, key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, storage.ErrKeyValueExists) {
			return nil, fmt.Errorf("save key: %w", err)
		}
		s.log.Warn("key value collision on insert, regenerating",
			zap.String("kind", string(input.Kind)))
	}

	return nil, keygen.ErrGenerationExhausted
}

// Authenticate 用原始密钥字符串认证，每次登录调用
//
// 检查顺序即是契约：格式先于任何存储访问；状态先于过期
// （被暂停的密钥不泄露"已过期"原因）；过期先于次数配额。
// 成功时原子递增使用次数并返回最新记录。
func (s *KeyService) Authenticate(ctx context.Context, rawKey string) (*domain.AccessKey, error) {
	// 保留的超级管理员密钥短路通过，不受格式/过期/配额约束
	if s.adminKey != "" && rawKey == s.adminKey {
		return s.adminKeyRecord(ctx, rawKey), nil
	}

	if !keygen.IsWellFormed(rawKey) {
		return nil, ErrMalformedKey
	}

	key, err := s.store.GetKeyByValue(ctx, rawKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("lookup key: %w", err)
	}

	if key.Status != domain.KeyStatusActive {
		return nil, &KeyInactiveError{Status: key.Status}
	}

	now := time.Now()
	if key.IsExpiredAt(now) {
		// 惰性过期落库；写回失败不阻断本次拒绝，下次读取会重试
		if err := s.store.MarkKeyExpired(ctx, key.ID, now); err != nil {
			s.log.Warn("failed to persist lazy expiry",
				zap.String("key_id", key.ID), zap.Error(err))
		}
		return nil, ErrKeyExpired
	}

	if key.UsageExhausted() {
		return nil, ErrUsageExceeded
	}

	// 带守卫的原子递增，关闭 max_usage=1 下的并发登录竞争
	if err := s.store.IncrementKeyUsage(ctx, key.ID, now); err != nil {
		if errors.Is(err, storage.ErrUsageConflict) {
			return nil, s.classifyUsageConflict(ctx, key.ID)
		}
		return nil, fmt.Errorf("increment key usage: %w", err)
	}

	key.UsageCount++
	key.LastUsedAt = &now
	return key, nil
}

// classifyUsageConflict 条件更新未命中后重读记录，确定具体拒绝原因
func (s *KeyService) classifyUsageConflict(ctx context.Context, id string) error {
	key, err := s.store.GetKey(ctx, id)
	if err != nil {
		return ErrUsageExceeded
	}
	if key.Status != domain.KeyStatusActive {
		return &KeyInactiveError{Status: key.Status}
	}
	return ErrUsageExceeded
}

// adminKeyRecord 返回保留密钥的记录；不存在记录时合成一份，
// 保证保留密钥在任何存储状态下都能登录。
func (s *KeyService) adminKeyRecord(ctx context.Context, rawKey string) *domain.AccessKey {
	if key, err := s.store.GetKeyByValue(ctx, rawKey); err == nil {
		return key
	}
	now := time.Now()
	return &domain.AccessKey{
		ID:        "admin-reserved",
		Value:     rawKey,
		Kind:      domain.KeyKindAdmin,
		Status:    domain.KeyStatusActive,
		IssuedAt:  now,
		ExpiresAt: now.AddDate(100, 0, 0),
	}
}

// Suspend 暂停密钥
func (s *KeyService) Suspend(ctx context.Context, id string) error {
	if _, err := s.getExisting(ctx, id); err != nil {
		return err
	}
	return s.store.UpdateKeyStatus(ctx, id, domain.KeyStatusSuspended)
}

// Activate 恢复密钥为 active 状态
//
// 契约：不重置使用次数，也不延长有效期。已超过有效期的密钥
// 激活后下一次认证仍会因过期被拒；管理员需另行调用 UpdateExpiry
// 显式续期，激活不是隐式续期。
func (s *KeyService) Activate(ctx context.Context, id string) error {
	if _, err := s.getExisting(ctx, id); err != nil {
		return err
	}
	return s.store.UpdateKeyStatus(ctx, id, domain.KeyStatusActive)
}

// UpdateExpiry 更新有效期，不改变状态
//
// 已过期（expired 状态）的密钥续期后不会自动恢复，需另行 Activate。
func (s *KeyService) UpdateExpiry(ctx context.Context, id string, newExpiresAt time.Time) (*domain.AccessKey, error) {
	key, err := s.getExisting(ctx, id)
	if err != nil {
		return nil, err
	}
	key.ExpiresAt = newExpiresAt
	key.UpdatedAt = time.Now()
	if err := s.store.UpdateKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// UpdateUsageCap 更新使用次数上限，nil 表示不限次数
func (s *KeyService) UpdateUsageCap(ctx context.Context, id string, newMax *int) (*domain.AccessKey, error) {
	key, err := s.getExisting(ctx, id)
	if err != nil {
		return nil, err
	}
	key.MaxUsage = newMax
	key.UpdatedAt = time.Now()
	if err := s.store.UpdateKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// UpdateKeyInput 管理端批量更新输入，nil 字段表示不修改
type UpdateKeyInput struct {
	Notes     *string
	MaxUsage  *int
	ClearMax  bool // 置 true 时清除次数上限
	ExpiresAt *time.Time
}

// Update 更新备注/次数上限/有效期，对状态无副作用
func (s *KeyService) Update(ctx context.Context, id string, input UpdateKeyInput) (*domain.AccessKey, error) {
	key, err := s.getExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Notes != nil {
		key.Notes = *input.Notes
	}
	if input.ClearMax {
		key.MaxUsage = nil
	} else if input.MaxUsage != nil {
		key.MaxUsage = input.MaxUsage
	}
	if input.ExpiresAt != nil {
		key.ExpiresAt = *input.ExpiresAt
	}
	key.UpdatedAt = time.Now()

	if err := s.store.UpdateKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Delete 删除密钥，保留的超级管理员密钥受保护
func (s *KeyService) Delete(ctx context.Context, id string) error {
	key, err := s.getExisting(ctx, id)
	if err != nil {
		return err
	}
	if s.adminKey != "" && key.Value == s.adminKey {
		return ErrProtectedKey
	}
	return s.store.DeleteKey(ctx, id)
}

// KeyView 管理端列表视图：持久化记录叠加派生字段
type KeyView struct {
	domain.AccessKey
	ComputedStatus  domain.KeyDisplayStatus `json:"computedStatus"`
	DaysUntilExpiry int                     `json:"daysUntilExpiry"`
	AgentName       string                  `json:"agentName,omitempty"`
	IsOnline        bool                    `json:"isOnline"`
}

// List 按状态/类型筛选分页列出密钥，并计算展示状态
func (s *KeyService) List(ctx context.Context, filter domain.KeyListFilter) ([]KeyView, int, error) {
	keys, total, err := s.store.ListKeys(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	views := make([]KeyView, 0, len(keys))
	for _, key := range keys {
		view := KeyView{
			AccessKey:       key,
			ComputedStatus:  key.DisplayStatus(now, domain.ExpiryWarningWindow),
			DaysUntilExpiry: key.DaysUntilExpiry(now),
		}
		if key.OwnerID != nil {
			if owner, err := s.store.GetUserByID(*key.OwnerID); err == nil {
				view.AgentName = owner.Name
				view.IsOnline = owner.IsOnline
			}
		}
		views = append(views, view)
	}
	return views, total, nil
}

// Get 查询单把密钥并附加派生字段
func (s *KeyService) Get(ctx context.Context, id string) (*KeyView, error) {
	key, err := s.getExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	view := &KeyView{
		AccessKey:       *key,
		ComputedStatus:  key.DisplayStatus(now, domain.ExpiryWarningWindow),
		DaysUntilExpiry: key.DaysUntilExpiry(now),
	}
	if key.OwnerID != nil {
		if owner, err := s.store.GetUserByID(*key.OwnerID); err == nil {
			view.AgentName = owner.Name
			view.IsOnline = owner.IsOnline
		}
	}
	return view, nil
}

// DisplayStatus 计算单个密钥的展示状态（管理端 7 天窗口）
func (s *KeyService) DisplayStatus(key *domain.AccessKey) domain.KeyDisplayStatus {
	return key.DisplayStatus(time.Now(), domain.ExpiryWarningWindow)
}

// UrgentDisplayStatus 坐席自助页的展示状态（1 天紧急窗口）
func (s *KeyService) UrgentDisplayStatus(key *domain.AccessKey) domain.KeyDisplayStatus {
	return key.DisplayStatus(time.Now(), domain.UrgentExpiryWarningWindow)
}

// ValidationResult 非变更校验接口的返回
type ValidationResult struct {
	IsValid    bool             `json:"isValid"`
	Status     domain.KeyStatus `json:"status,omitempty"`
	ExpiresAt  *time.Time       `json:"expiresAt,omitempty"`
	UsageCount int              `json:"usageCount,omitempty"`
	MaxUsage   *int             `json:"maxUsage,omitempty"`
	Message    string           `json:"message"`
}

// Validate 校验密钥有效性，不产生任何状态变更
func (s *KeyService) Validate(ctx context.Context, rawKey string) (*ValidationResult, error) {
	if !keygen.IsWellFormed(rawKey) {
		return &ValidationResult{IsValid: false, Message: "密钥格式不正确"}, nil
	}

	key, err := s.store.GetKeyByValue(ctx, rawKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return &ValidationResult{IsValid: false, Message: "密钥不存在"}, nil
		}
		return nil, fmt.Errorf("lookup key: %w", err)
	}

	now := time.Now()
	isValid := key.Status == domain.KeyStatusActive &&
		!key.IsExpiredAt(now) &&
		!key.UsageExhausted()

	message := "密钥有效"
	if !isValid {
		message = "密钥无效或已过期"
	}

	return &ValidationResult{
		IsValid:    isValid,
		Status:     key.Status,
		ExpiresAt:  &key.ExpiresAt,
		UsageCount: key.UsageCount,
		MaxUsage:   key.MaxUsage,
		Message:    message,
	}, nil
}

// Logs 分页返回密钥使用日志
func (s *KeyService) Logs(ctx context.Context, keyID string, page, limit int) ([]domain.KeyUsageLog, int, error) {
	if _, err := s.getExisting(ctx, keyID); err != nil {
		return nil, 0, err
	}
	return s.store.ListUsageLogs(ctx, keyID, page, limit)
}

// Statistics 统计各状态密钥数量（含 7 天临期派生统计）
func (s *KeyService) Statistics(ctx context.Context) (*domain.KeyStatistics, error) {
	now := time.Now()
	stats := &domain.KeyStatistics{}

	for page := 1; ; page++ {
		keys, total, err := s.store.ListKeys(ctx, domain.KeyListFilter{Page: page, Limit: 200})
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			stats.Total++
			switch key.DisplayStatus(now, domain.ExpiryWarningWindow) {
			case domain.DisplayActive:
				stats.Active++
			case domain.DisplayExpiringSoon:
				stats.Active++
				stats.ExpiringSoon++
			case domain.DisplaySuspended:
				stats.Suspended++
			case domain.DisplayExpired:
				stats.Expired++
			}
		}
		if len(keys) == 0 || page*200 >= total {
			break
		}
	}
	return stats, nil
}

func (s *KeyService) getExisting(ctx context.Context, id string) (*domain.AccessKey, error) {
	key, err := s.store.GetKey(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("lookup key: %w", err)
	}
	return key, nil
}
