package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/auth/jwt"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/memory"
)

const testAdminKey = "adminayi888"

func newTestAuthService() (*Service, *service.KeyService, *memory.Store) {
	store := memory.NewStore()
	keys := service.NewKeyService(store, testAdminKey, zap.NewNop())
	tokens := jwt.NewManager("test-secret", "yunjv-crm", time.Hour)
	// 不注入工作池，日志走同步路径便于断言
	svc := NewService(store, keys, tokens, nil, 5, zap.NewNop())
	return svc, keys, store
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	t.Run("保留管理员密钥登录", func(t *testing.T) {
		svc, _, _ := newTestAuthService()

		result, err := svc.Login(ctx, LoginInput{AccessKey: testAdminKey})

		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, domain.UserTypeAdmin, result.User.Type)
		assert.Equal(t, domain.RoleSuperAdmin, result.User.Role.Name)
		// 管理端登录不回显密钥
		assert.Empty(t, result.User.AccessKey)
	})

	t.Run("保留管理员密钥重复登录复用同一身份", func(t *testing.T) {
		svc, _, store := newTestAuthService()

		first, err := svc.Login(ctx, LoginInput{AccessKey: testAdminKey})
		require.NoError(t, err)
		second, err := svc.Login(ctx, LoginInput{AccessKey: testAdminKey})
		require.NoError(t, err)
		third, err := svc.Login(ctx, LoginInput{AccessKey: testAdminKey})
		require.NoError(t, err)

		assert.Equal(t, first.User.ID, second.User.ID)
		assert.Equal(t, first.User.ID, third.User.ID)

		// 不会每次登录都堆出一个新的管理员档案
		users, err := store.ListUsers()
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("坐席密钥首次登录自动建档并回绑", func(t *testing.T) {
		svc, keys, store := newTestAuthService()
		issued, err := keys.Issue(ctx, service.IssueKeyInput{
			Kind:         domain.KeyKindAgent,
			ValidityDays: 30,
		})
		require.NoError(t, err)

		result, err := svc.Login(ctx, LoginInput{
			AccessKey: issued.Value,
			IPAddress: "10.0.0.1",
			UserAgent: "test-agent",
		})

		require.NoError(t, err)
		assert.Equal(t, domain.UserTypeAgent, result.User.Type)
		assert.Equal(t, issued.Value, result.User.AccessKey)
		require.NotNil(t, result.User.KeyExpiresAt)

		// 密钥回绑到新建的坐席
		stored, err := store.GetKey(ctx, issued.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.OwnerID)
		assert.Equal(t, result.User.ID, *stored.OwnerID)

		// 新建坐席携带默认会话上限并已上线
		user, err := store.GetUserByID(result.User.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, user.MaxSessions)
		assert.True(t, user.IsOnline)
	})

	t.Run("再次登录复用已绑定的身份", func(t *testing.T) {
		svc, keys, _ := newTestAuthService()
		issued, err := keys.Issue(ctx, service.IssueKeyInput{
			Kind:         domain.KeyKindAgent,
			ValidityDays: 30,
		})
		require.NoError(t, err)

		first, err := svc.Login(ctx, LoginInput{AccessKey: issued.Value})
		require.NoError(t, err)
		second, err := svc.Login(ctx, LoginInput{AccessKey: issued.Value})
		require.NoError(t, err)

		assert.Equal(t, first.User.ID, second.User.ID)
	})

	t.Run("登录写入使用日志", func(t *testing.T) {
		svc, keys, store := newTestAuthService()
		issued, err := keys.Issue(ctx, service.IssueKeyInput{
			Kind:         domain.KeyKindAgent,
			ValidityDays: 30,
		})
		require.NoError(t, err)

		_, err = svc.Login(ctx, LoginInput{AccessKey: issued.Value, IPAddress: "10.0.0.1"})
		require.NoError(t, err)

		logs, total, err := store.ListUsageLogs(ctx, issued.ID, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, logs, 1)
		assert.Equal(t, domain.UsageActionLogin, logs[0].Action)
		assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
	})

	t.Run("空密钥", func(t *testing.T) {
		svc, _, _ := newTestAuthService()

		_, err := svc.Login(ctx, LoginInput{})
		assert.ErrorIs(t, err, ErrMissingAccessKey)
	})

	t.Run("认证失败原样透出", func(t *testing.T) {
		svc, _, _ := newTestAuthService()

		_, err := svc.Login(ctx, LoginInput{AccessKey: "abcd1234efgh5678"})
		assert.ErrorIs(t, err, service.ErrKeyNotFound)
	})
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	t.Run("登出置为离线并记录日志", func(t *testing.T) {
		svc, keys, store := newTestAuthService()
		issued, err := keys.Issue(ctx, service.IssueKeyInput{
			Kind:         domain.KeyKindAgent,
			ValidityDays: 30,
		})
		require.NoError(t, err)

		result, err := svc.Login(ctx, LoginInput{AccessKey: issued.Value})
		require.NoError(t, err)

		svc.Logout(result.Token, "10.0.0.2", "test-agent")

		user, err := store.GetUserByID(result.User.ID)
		require.NoError(t, err)
		assert.False(t, user.IsOnline)

		_, total, err := store.ListUsageLogs(ctx, issued.ID, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("无效令牌登出不报错", func(t *testing.T) {
		svc, _, _ := newTestAuthService()

		assert.NotPanics(t, func() {
			svc.Logout("garbage-token", "", "")
			svc.Logout("", "", "")
		})
	})
}

func TestService_GetUserByID(t *testing.T) {
	svc, _, store := newTestAuthService()
	require.NoError(t, store.CreateUser(&domain.User{ID: "u-1", Name: "小李", RoleName: domain.RoleAgent}))

	user, err := svc.GetUserByID("u-1")
	require.NoError(t, err)
	assert.Equal(t, "小李", user.Name)

	_, err = svc.GetUserByID("ghost")
	assert.Error(t, err)
}
