package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

// StatsService 管理面板的统计聚合
type StatsService struct {
	store storage.Store
	keys  *KeyService
	log   *zap.Logger
}

// NewStatsService 创建统计服务
func NewStatsService(store storage.Store, keys *KeyService, log *zap.Logger) *StatsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatsService{store: store, keys: keys, log: log}
}

// Dashboard 聚合管理面板统计
func (s *StatsService) Dashboard(ctx context.Context) (*domain.DashboardStatistics, error) {
	keyStats, err := s.keys.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("key statistics: %w", err)
	}

	agentStats, err := s.agentStatistics()
	if err != nil {
		return nil, fmt.Errorf("agent statistics: %w", err)
	}

	sessionStats, err := s.sessionStatistics()
	if err != nil {
		return nil, fmt.Errorf("session statistics: %w", err)
	}

	return &domain.DashboardStatistics{
		Keys:        *keyStats,
		Agents:      *agentStats,
		Sessions:    *sessionStats,
		GeneratedAt: time.Now(),
	}, nil
}

func (s *StatsService) agentStatistics() (*domain.AgentStatistics, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, err
	}

	stats := &domain.AgentStatistics{Total: len(users)}
	for _, u := range users {
		switch u.Status {
		case domain.AgentOnline:
			stats.Online++
		case domain.AgentBusy:
			stats.Busy++
		case domain.AgentBreak:
			stats.Break++
		case domain.AgentTraining:
			stats.Training++
		default:
			stats.Offline++
		}
	}
	return stats, nil
}

func (s *StatsService) sessionStatistics() (*domain.SessionStatistics, error) {
	sessions, err := s.store.ListSessions(nil)
	if err != nil {
		return nil, err
	}

	dayStart := time.Now().Truncate(24 * time.Hour)
	stats := &domain.SessionStatistics{Total: len(sessions)}
	for _, sess := range sessions {
		switch sess.Status {
		case domain.SessionWaiting:
			stats.Waiting++
		case domain.SessionActive:
			stats.Active++
		case domain.SessionClosed:
			stats.Closed++
		}
		if sess.CreatedAt.After(dayStart) {
			stats.StartedToday++
		}
		stats.TotalMessages += sess.MessageCount
	}
	return stats, nil
}
