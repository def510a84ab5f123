package domain

import "time"

// UserType 会话主体类型，区分管理端与坐席端登录
type UserType string

const (
	UserTypeAdmin UserType = "admin"
	UserTypeAgent UserType = "agent"
)

// User 表示系统内的坐席或管理员身份
type User struct {
	ID           string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string      `json:"name" gorm:"type:varchar(100);not null"`
	Email        string      `json:"email,omitempty" gorm:"type:varchar(255)"`
	RoleName     string      `json:"role" gorm:"column:role_name;type:varchar(30);default:'agent';index"`
	Status       AgentStatus `json:"status" gorm:"type:varchar(20);default:'offline'"`
	IsOnline     bool        `json:"isOnline" gorm:"default:false"`
	MaxSessions  int         `json:"maxSessions" gorm:"default:5"` // 同时接待的会话上限
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	LastActiveAt *time.Time  `json:"lastActiveAt,omitempty"`
}

// Role 解析用户的内置角色，未知角色回落为普通客服
func (u *User) Role() *Role {
	if role, ok := GetRole(u.RoleName); ok {
		return role
	}
	return BuiltinRoles[RoleAgent]
}

// IsAdmin 判断是否为管理端用户
func (u *User) IsAdmin() bool {
	return IsAdminRole(u.RoleName)
}

// IsSuper 判断是否为超级管理员
func (u *User) IsSuper() bool {
	return u.RoleName == RoleSuperAdmin
}
