package domain

import "time"

// KeyKind 密钥类型
type KeyKind string

const (
	KeyKindAgent KeyKind = "agent" // 坐席密钥，16 位
	KeyKindAdmin KeyKind = "admin" // 管理员密钥，12 位
)

// Valid 判断密钥类型是否合法
func (k KeyKind) Valid() bool {
	return k == KeyKindAgent || k == KeyKindAdmin
}

// KeyStatus 密钥的持久化状态
//
// expiring_soon 是展示层派生状态，不会落库，见 DisplayStatus。
type KeyStatus string

const (
	KeyStatusActive    KeyStatus = "active"    // 可用
	KeyStatusSuspended KeyStatus = "suspended" // 已被管理员暂停
	KeyStatusExpired   KeyStatus = "expired"   // 已过期（读取时惰性落库）
)

// KeyDisplayStatus 展示层密钥状态，在持久化状态之上叠加临期提示
type KeyDisplayStatus string

const (
	DisplayActive       KeyDisplayStatus = "active"
	DisplaySuspended    KeyDisplayStatus = "suspended"
	DisplayExpired      KeyDisplayStatus = "expired"
	DisplayExpiringSoon KeyDisplayStatus = "expiring_soon"
)

// 临期窗口：管理端列表 7 天，坐席自助页 1 天
const (
	ExpiryWarningWindow       = 7 * 24 * time.Hour
	UrgentExpiryWarningWindow = 24 * time.Hour
)

// AccessKey 访问密钥实体
//
// Value 在存储层有唯一约束；UsageCount 仅通过带条件的原子更新递增。
type AccessKey struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Value      string     `json:"keyValue" gorm:"column:key_value;uniqueIndex;type:varchar(16);not null"`
	Kind       KeyKind    `json:"keyType" gorm:"column:key_type;type:varchar(10);not null;index"`
	Status     KeyStatus  `json:"status" gorm:"type:varchar(20);default:'active';index"`
	OwnerID    *string    `json:"agentId,omitempty" gorm:"column:user_id;type:varchar(36);index"` // 绑定的坐席，未分配时为空
	CreatedBy  string     `json:"createdBy" gorm:"type:varchar(36)"`
	Notes      string     `json:"notes,omitempty" gorm:"type:varchar(255)"`
	UsageCount int        `json:"usageCount" gorm:"default:0"`
	MaxUsage   *int       `json:"maxUsage,omitempty"` // 为空表示不限次数
	IssuedAt   time.Time  `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ExpiresAt  time.Time  `json:"expiresAt" gorm:"index"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// IsExpiredAt 判断密钥在给定时间点是否已超过有效期
func (k *AccessKey) IsExpiredAt(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// UsageExhausted 判断使用次数是否已达上限
func (k *AccessKey) UsageExhausted() bool {
	return k.MaxUsage != nil && k.UsageCount >= *k.MaxUsage
}

// DisplayStatus 计算展示层状态（纯函数，不修改记录）
//
// 在 active 状态之上叠加过期与临期判断，window 为临期提醒窗口。
func (k *AccessKey) DisplayStatus(now time.Time, window time.Duration) KeyDisplayStatus {
	switch k.Status {
	case KeyStatusSuspended:
		return DisplaySuspended
	case KeyStatusExpired:
		return DisplayExpired
	}

	if k.IsExpiredAt(now) {
		return DisplayExpired
	}
	if k.ExpiresAt.Sub(now) <= window {
		return DisplayExpiringSoon
	}
	return DisplayActive
}

// DaysUntilExpiry 距离过期的天数（远离零取整，已过期为负）
//
// 不足一天按一天计：还剩 1 小时返回 1，过期 1 小时返回 -1。
func (k *AccessKey) DaysUntilExpiry(now time.Time) int {
	remaining := k.ExpiresAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	switch rem := remaining % (24 * time.Hour); {
	case rem > 0:
		days++
	case rem < 0:
		days--
	}
	return days
}

// UsageAction 密钥使用日志动作
type UsageAction string

const (
	UsageActionLogin  UsageAction = "login"
	UsageActionLogout UsageAction = "logout"
)

// KeyUsageLog 密钥使用日志，只追加不修改
type KeyUsageLog struct {
	ID        string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	KeyID     string      `json:"keyId" gorm:"type:varchar(36);index;not null"`
	UserID    string      `json:"userId" gorm:"type:varchar(36);index"`
	Action    UsageAction `json:"action" gorm:"type:varchar(20);not null"`
	IPAddress string      `json:"ipAddress" gorm:"type:varchar(45)"`
	UserAgent string      `json:"userAgent" gorm:"type:varchar(255)"`
	CreatedAt time.Time   `json:"createdAt"`
}

// KeyListFilter 密钥列表筛选条件
type KeyListFilter struct {
	Status *KeyStatus // 为空表示全部状态
	Kind   *KeyKind   // 为空表示全部类型
	Page   int
	Limit  int
}
