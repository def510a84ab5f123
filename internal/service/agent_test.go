package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/memory"
)

// presenceSpy 记录状态广播
type presenceSpy struct {
	agentIDs []string
	statuses []domain.AgentStatus
}

func (p *presenceSpy) NotifyAgentStatus(agentID string, status domain.AgentStatus) {
	p.agentIDs = append(p.agentIDs, agentID)
	p.statuses = append(p.statuses, status)
}

func newTestAgentService() (*AgentService, *memory.Store) {
	store := memory.NewStore()
	return NewAgentService(store, zap.NewNop()), store
}

func TestAgentService_ChangeStatus(t *testing.T) {
	service, store := newTestAgentService()
	seedAgent(t, store, "agent-1", domain.AgentOffline, 5)
	spy := &presenceSpy{}
	service.SetPresenceNotifier(spy)

	t.Run("offline只能进入online", func(t *testing.T) {
		_, err := service.ChangeStatus("agent-1", domain.AgentBusy)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)

		view, err := service.ChangeStatus("agent-1", domain.AgentOnline)
		require.NoError(t, err)
		assert.Equal(t, domain.AgentOnline, view.Status)
		assert.True(t, view.IsOnline)
	})

	t.Run("状态变更广播给在线端", func(t *testing.T) {
		require.Len(t, spy.agentIDs, 1)
		assert.Equal(t, "agent-1", spy.agentIDs[0])
		assert.Equal(t, domain.AgentOnline, spy.statuses[0])
	})

	t.Run("break不能直接进入busy", func(t *testing.T) {
		_, err := service.ChangeStatus("agent-1", domain.AgentBreak)
		require.NoError(t, err)

		_, err = service.ChangeStatus("agent-1", domain.AgentBusy)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("下线后IsOnline为假", func(t *testing.T) {
		view, err := service.ChangeStatus("agent-1", domain.AgentOffline)
		require.NoError(t, err)
		assert.False(t, view.IsOnline)
	})

	t.Run("坐席不存在", func(t *testing.T) {
		_, err := service.ChangeStatus("ghost", domain.AgentOnline)
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})
}

func TestAgentService_AvailableTransitions(t *testing.T) {
	service, store := newTestAgentService()
	seedAgent(t, store, "agent-1", domain.AgentOnline, 5)

	transitions, err := service.AvailableTransitions("agent-1")

	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.AgentStatus{
		domain.AgentBusy, domain.AgentBreak, domain.AgentOffline, domain.AgentTraining,
	}, transitions)
}

func TestAgentService_UpdateProfile(t *testing.T) {
	service, store := newTestAgentService()
	seedAgent(t, store, "agent-1", domain.AgentOnline, 5)

	t.Run("更新姓名和上限", func(t *testing.T) {
		view, err := service.UpdateProfile("agent-1", "小王", "wang@example.com", 8)

		require.NoError(t, err)
		assert.Equal(t, "小王", view.Name)
		assert.Equal(t, "wang@example.com", view.Email)
		assert.Equal(t, 8, view.MaxSessions)
	})

	t.Run("空字段不覆盖原值", func(t *testing.T) {
		view, err := service.UpdateProfile("agent-1", "", "", 0)

		require.NoError(t, err)
		assert.Equal(t, "小王", view.Name)
		assert.Equal(t, 8, view.MaxSessions)
	})
}

func TestAgentService_ListWithWorkload(t *testing.T) {
	service, store := newTestAgentService()
	seedAgent(t, store, "agent-1", domain.AgentOnline, 5)
	seedAgent(t, store, "agent-2", domain.AgentOnline, 5)

	agentID := "agent-1"
	require.NoError(t, store.SaveSession(&domain.ChatSession{
		ID:         "s-1",
		CustomerID: "c-1",
		AgentID:    &agentID,
		Status:     domain.SessionActive,
	}))

	views, err := service.List()
	require.NoError(t, err)
	require.Len(t, views, 2)

	byID := map[string]int{}
	for _, v := range views {
		byID[v.ID] = v.ActiveSessions
	}
	assert.Equal(t, 1, byID["agent-1"])
	assert.Equal(t, 0, byID["agent-2"])
}
