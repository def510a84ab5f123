package domain

import "time"

// KeyStatistics 密钥统计
type KeyStatistics struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Suspended    int `json:"suspended"`
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiringSoon"` // 展示层派生，7 天窗口
}

// AgentStatistics 坐席统计
type AgentStatistics struct {
	Total    int `json:"total"`
	Online   int `json:"online"`
	Busy     int `json:"busy"`
	Break    int `json:"break"`
	Offline  int `json:"offline"`
	Training int `json:"training"`
}

// SessionStatistics 会话统计
type SessionStatistics struct {
	Total         int `json:"total"`
	Waiting       int `json:"waiting"`
	Active        int `json:"active"`
	Closed        int `json:"closed"`
	StartedToday  int `json:"startedToday"`
	TotalMessages int `json:"totalMessages"`
}

// DashboardStatistics 管理端仪表盘聚合统计
type DashboardStatistics struct {
	Keys        KeyStatistics     `json:"keys"`
	Agents      AgentStatistics   `json:"agents"`
	Sessions    SessionStatistics `json:"sessions"`
	GeneratedAt time.Time         `json:"generatedAt"`
}
