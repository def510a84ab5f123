package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/memory"
)

func newTestChatService() (*ChatService, *memory.Store) {
	store := memory.NewStore()
	return NewChatService(store, zap.NewNop()), store
}

func seedAgent(t *testing.T, store *memory.Store, id string, status domain.AgentStatus, maxSessions int) {
	t.Helper()
	now := time.Now()
	err := store.CreateUser(&domain.User{
		ID:          id,
		Name:        "坐席-" + id,
		RoleName:    domain.RoleAgent,
		Status:      status,
		IsOnline:    status != domain.AgentOffline,
		MaxSessions: maxSessions,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
}

// notifierSpy 记录推送调用
type notifierSpy struct {
	messages []*domain.ChatMessage
}

func (n *notifierSpy) NotifyMessage(session *domain.ChatSession, message *domain.ChatMessage) {
	n.messages = append(n.messages, message)
}

func TestChatService_StartSession(t *testing.T) {
	t.Run("分享链接直连指定坐席", func(t *testing.T) {
		service, store := newTestChatService()
		seedAgent(t, store, "agent-1", domain.AgentOffline, 5)
		link, err := service.CreateShareLink("agent-1")
		require.NoError(t, err)

		session, err := service.StartSession(StartSessionInput{
			CustomerName: "张三",
			ShareLinkID:  link.ID,
		})

		require.NoError(t, err)
		require.NotNil(t, session.AgentID)
		assert.Equal(t, "agent-1", *session.AgentID)
		assert.Equal(t, domain.SessionWaiting, session.Status)
		assert.Equal(t, "张三", session.CustomerName)
	})

	t.Run("无链接时分配负载最少的在线坐席", func(t *testing.T) {
		service, store := newTestChatService()
		seedAgent(t, store, "agent-busy", domain.AgentOnline, 5)
		seedAgent(t, store, "agent-idle", domain.AgentOnline, 5)
		seedAgent(t, store, "agent-off", domain.AgentOffline, 5)

		// 给 agent-busy 压两个活跃会话
		for i := 0; i < 2; i++ {
			busyID := "agent-busy"
			require.NoError(t, store.SaveSession(&domain.ChatSession{
				ID:         "pre-" + string(rune('a'+i)),
				CustomerID: "c",
				AgentID:    &busyID,
				Status:     domain.SessionActive,
				CreatedAt:  time.Now(),
			}))
		}

		session, err := service.StartSession(StartSessionInput{})

		require.NoError(t, err)
		require.NotNil(t, session.AgentID)
		assert.Equal(t, "agent-idle", *session.AgentID)
	})

	t.Run("达到会话上限的坐席不再分配", func(t *testing.T) {
		service, store := newTestChatService()
		seedAgent(t, store, "agent-full", domain.AgentOnline, 1)
		fullID := "agent-full"
		require.NoError(t, store.SaveSession(&domain.ChatSession{
			ID:         "pre-full",
			CustomerID: "c",
			AgentID:    &fullID,
			Status:     domain.SessionActive,
			CreatedAt:  time.Now(),
		}))

		_, err := service.StartSession(StartSessionInput{})
		assert.ErrorIs(t, err, ErrNoAvailableAgent)
	})

	t.Run("没有在线坐席", func(t *testing.T) {
		service, store := newTestChatService()
		seedAgent(t, store, "agent-1", domain.AgentOffline, 5)

		_, err := service.StartSession(StartSessionInput{})
		assert.ErrorIs(t, err, ErrNoAvailableAgent)
	})

	t.Run("空客户名生成访客名", func(t *testing.T) {
		service, store := newTestChatService()
		seedAgent(t, store, "agent-1", domain.AgentOnline, 5)

		session, err := service.StartSession(StartSessionInput{})

		require.NoError(t, err)
		assert.NotEmpty(t, session.CustomerName)
		assert.Contains(t, session.CustomerName, "访客-")
	})

	t.Run("失效的分享链接", func(t *testing.T) {
		service, _ := newTestChatService()

		_, err := service.StartSession(StartSessionInput{ShareLinkID: "nolink"})
		assert.ErrorIs(t, err, ErrShareLinkNotFound)
	})
}

func TestChatService_SessionLifecycle(t *testing.T) {
	service, store := newTestChatService()
	seedAgent(t, store, "agent-1", domain.AgentOnline, 5)

	session, err := service.StartSession(StartSessionInput{CustomerName: "李四"})
	require.NoError(t, err)

	t.Run("坐席接入会话", func(t *testing.T) {
		accepted, err := service.Accept(session.ID, "agent-1")

		require.NoError(t, err)
		assert.Equal(t, domain.SessionActive, accepted.Status)
	})

	t.Run("关闭会话幂等", func(t *testing.T) {
		closed, err := service.Close(session.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionClosed, closed.Status)
		assert.NotNil(t, closed.ClosedAt)

		again, err := service.Close(session.ID)
		require.NoError(t, err)
		assert.Equal(t, closed.ClosedAt.Unix(), again.ClosedAt.Unix())
	})

	t.Run("已关闭的会话不能再接入", func(t *testing.T) {
		_, err := service.Accept(session.ID, "agent-1")
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("不存在的会话", func(t *testing.T) {
		_, err := service.Get("no-such-session")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestChatService_SendMessage(t *testing.T) {
	service, store := newTestChatService()
	seedAgent(t, store, "agent-1", domain.AgentOnline, 5)
	spy := &notifierSpy{}
	service.SetMessageNotifier(spy)

	session, err := service.StartSession(StartSessionInput{CustomerName: "王五"})
	require.NoError(t, err)

	t.Run("发送消息并推送", func(t *testing.T) {
		message, err := service.SendMessage(SendMessageInput{
			SessionID:  session.ID,
			SenderID:   "customer",
			SenderType: domain.SenderCustomer,
			Content:    "你好，想咨询订单问题",
		})

		require.NoError(t, err)
		assert.Equal(t, domain.MessageText, message.Type)
		require.Len(t, spy.messages, 1)
		assert.Equal(t, message.ID, spy.messages[0].ID)
	})

	t.Run("注入类内容被拦截", func(t *testing.T) {
		_, err := service.SendMessage(SendMessageInput{
			SessionID:  session.ID,
			SenderID:   "customer",
			SenderType: domain.SenderCustomer,
			Content:    "<script>alert(1)</script>",
		})

		assert.ErrorIs(t, err, ErrContentRejected)
		assert.Len(t, spy.messages, 1)
	})

	t.Run("消息分页按时间排序", func(t *testing.T) {
		_, err := service.SendMessage(SendMessageInput{
			SessionID:  session.ID,
			SenderID:   "agent-1",
			SenderType: domain.SenderAgent,
			Content:    "您好，请提供订单号",
		})
		require.NoError(t, err)

		messages, total, err := service.Messages(session.ID, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, messages, 2)
		assert.Equal(t, domain.SenderCustomer, messages[0].SenderType)
	})

	t.Run("会话关闭后拒绝发送", func(t *testing.T) {
		_, err := service.Close(session.ID)
		require.NoError(t, err)

		_, err = service.SendMessage(SendMessageInput{
			SessionID: session.ID,
			SenderID:  "customer",
			Content:   "还在吗",
		})
		assert.ErrorIs(t, err, ErrSessionClosed)
	})
}

func TestChatService_ShareLink(t *testing.T) {
	service, store := newTestChatService()
	seedAgent(t, store, "agent-1", domain.AgentOnline, 5)

	t.Run("生成并解析短链接", func(t *testing.T) {
		link, err := service.CreateShareLink("agent-1")
		require.NoError(t, err)
		assert.Len(t, link.ID, 6)

		resolved, err := service.ResolveShareLink(link.ID)
		require.NoError(t, err)
		assert.Equal(t, "agent-1", resolved.AgentID)

		// 第二次解析命中本地缓存
		cached, err := service.ResolveShareLink(link.ID)
		require.NoError(t, err)
		assert.Equal(t, resolved.ID, cached.ID)
	})

	t.Run("坐席不存在时拒绝生成", func(t *testing.T) {
		_, err := service.CreateShareLink("ghost")
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})
}
