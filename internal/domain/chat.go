package domain

import "time"

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting" // 等待分配坐席
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
)

// ChatSession 客户与坐席之间的一次会话
type ChatSession struct {
	ID            string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CustomerID    string        `json:"customerId" gorm:"type:varchar(36);index;not null"`
	CustomerName  string        `json:"customerName" gorm:"type:varchar(100)"`
	AgentID       *string       `json:"agentId,omitempty" gorm:"type:varchar(36);index"`
	Status        SessionStatus `json:"status" gorm:"type:varchar(20);default:'waiting';index"`
	MessageCount  int           `json:"messageCount" gorm:"default:0"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	LastMessageAt *time.Time    `json:"lastMessageAt,omitempty"`
	ClosedAt      *time.Time    `json:"closedAt,omitempty"`
}

// MessageType 消息载荷类型
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// SenderType 消息发送方
type SenderType string

const (
	SenderAgent    SenderType = "agent"
	SenderCustomer SenderType = "customer"
	SenderSystem   SenderType = "system"
)

// ChatMessage 会话内的一条消息
type ChatMessage struct {
	ID         string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SessionID  string      `json:"sessionId" gorm:"type:varchar(36);index;not null"`
	SenderID   string      `json:"senderId" gorm:"type:varchar(36);index"`
	SenderType SenderType  `json:"senderType" gorm:"type:varchar(20)"`
	Type       MessageType `json:"type" gorm:"column:message_type;type:varchar(20);default:'text'"`
	Content    string      `json:"content" gorm:"type:text"`
	Status     string      `json:"status" gorm:"type:varchar(20);default:'sent'"` // sent / read
	CreatedAt  time.Time   `json:"createdAt"`
}

// ShareLink 客户端聊天入口短链接
type ShareLink struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(8)"` // 6 位短码
	AgentID   string    `json:"agentId" gorm:"type:varchar(36);index;not null"`
	CreatedAt time.Time `json:"createdAt"`
}
