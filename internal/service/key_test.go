package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/keygen"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
	"github.com/Ayi-pei/yunjvcrm/internal/storage/memory"
)

const testAdminKey = "adminayi888"

func newTestKeyService() (*KeyService, *memory.Store) {
	store := memory.NewStore()
	return NewKeyService(store, testAdminKey, zap.NewNop()), store
}

func intPtr(v int) *int { return &v }

func TestKeyService_Issue(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestKeyService()

	t.Run("签发坐席密钥成功", func(t *testing.T) {
		key, err := service.Issue(ctx, IssueKeyInput{
			Kind:         domain.KeyKindAgent,
			ValidityDays: 30,
			IssuedBy:     "admin-1",
		})

		require.NoError(t, err)
		assert.Len(t, key.Value, keygen.AgentKeyLength)
		assert.Equal(t, domain.KeyStatusActive, key.Status)
		assert.Equal(t, 0, key.UsageCount)
		assert.Nil(t, key.MaxUsage)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), key.ExpiresAt, time.Minute)
	})

	t.Run("签发管理员密钥长度为12", func(t *testing.T) {
		key, err := service.Issue(ctx, IssueKeyInput{
			Kind:         domain.KeyKindAdmin,
			ValidityDays: 365,
			IssuedBy:     "admin-1",
		})

		require.NoError(t, err)
		assert.Len(t, key.Value, keygen.AdminKeyLength)
	})

	t.Run("拒绝非法密钥类型", func(t *testing.T) {
		_, err := service.Issue(ctx, IssueKeyInput{Kind: "visitor", ValidityDays: 30})
		assert.ErrorIs(t, err, ErrInvalidKeyKind)
	})

	t.Run("拒绝超出范围的有效期", func(t *testing.T) {
		_, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 0})
		assert.ErrorIs(t, err, ErrInvalidValidityPeriod)

		_, err = service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 3651})
		assert.ErrorIs(t, err, ErrInvalidValidityPeriod)
	})

	t.Run("拒绝非正数的次数上限", func(t *testing.T) {
		_, err := service.Issue(ctx, IssueKeyInput{
			Kind:         domain.KeyKindAgent,
			ValidityDays: 30,
			MaxUsage:     intPtr(0),
		})
		assert.Error(t, err)
	})
}

func TestKeyService_Authenticate(t *testing.T) {
	ctx := context.Background()
	t.Run("保留管理员密钥无记录也能登录", func(t *testing.T) {
		service, _ := newTestKeyService()

		key, err := service.Authenticate(ctx, testAdminKey)

		require.NoError(t, err)
		assert.Equal(t, "admin-reserved", key.ID)
		assert.Equal(t, domain.KeyKindAdmin, key.Kind)
		assert.Equal(t, domain.KeyStatusActive, key.Status)
	})

	t.Run("格式错误先于存储查询被拒", func(t *testing.T) {
		service, _ := newTestKeyService()

		_, err := service.Authenticate(ctx, "BAD-KEY")
		assert.ErrorIs(t, err, ErrMalformedKey)
	})

	t.Run("不存在的密钥", func(t *testing.T) {
		service, _ := newTestKeyService()

		_, err := service.Authenticate(ctx, "abcd1234efgh5678")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("暂停状态优先于过期原因", func(t *testing.T) {
		service, _ := newTestKeyService()
		issued, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
		require.NoError(t, err)
		require.NoError(t, service.Suspend(ctx, issued.ID))
		// 同时把有效期调到过去，认证仍应报"已停用"而非"已过期"
		_, err = service.UpdateExpiry(ctx, issued.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		_, err = service.Authenticate(ctx, issued.Value)

		var inactive *KeyInactiveError
		require.ErrorAs(t, err, &inactive)
		assert.Equal(t, domain.KeyStatusSuspended, inactive.Status)
	})

	t.Run("过期密钥被拒且惰性落库", func(t *testing.T) {
		service, store := newTestKeyService()
		issued, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
		require.NoError(t, err)
		_, err = service.UpdateExpiry(ctx, issued.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		_, err = service.Authenticate(ctx, issued.Value)
		assert.ErrorIs(t, err, ErrKeyExpired)

		stored, err := store.GetKey(ctx, issued.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusExpired, stored.Status)
	})

	t.Run("次数配额耗尽", func(t *testing.T) {
		service, _ := newTestKeyService()
		issued, err := service.Issue(ctx, IssueKeyInput{
			Kind:         domain.KeyKindAgent,
			ValidityDays: 30,
			MaxUsage:     intPtr(1),
		})
		require.NoError(t, err)

		_, err = service.Authenticate(ctx, issued.Value)
		require.NoError(t, err)

		_, err = service.Authenticate(ctx, issued.Value)
		assert.ErrorIs(t, err, ErrUsageExceeded)
	})

	t.Run("认证成功递增使用次数", func(t *testing.T) {
		service, store := newTestKeyService()
		issued, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
		require.NoError(t, err)

		key, err := service.Authenticate(ctx, issued.Value)

		require.NoError(t, err)
		assert.Equal(t, 1, key.UsageCount)
		assert.NotNil(t, key.LastUsedAt)

		stored, err := store.GetKey(ctx, issued.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.UsageCount)
	})
}

func TestKeyService_SuspendActivate(t *testing.T) {
	ctx := context.Background()
	service, store := newTestKeyService()
	issued, err := service.Issue(ctx, IssueKeyInput{
		Kind:         domain.KeyKindAgent,
		ValidityDays: 30,
		MaxUsage:     intPtr(5),
	})
	require.NoError(t, err)

	_, err = service.Authenticate(ctx, issued.Value)
	require.NoError(t, err)

	t.Run("暂停后认证被拒", func(t *testing.T) {
		require.NoError(t, service.Suspend(ctx, issued.ID))

		_, err := service.Authenticate(ctx, issued.Value)
		var inactive *KeyInactiveError
		assert.ErrorAs(t, err, &inactive)
	})

	t.Run("恢复不重置使用计数", func(t *testing.T) {
		require.NoError(t, service.Activate(ctx, issued.ID))

		stored, err := store.GetKey(ctx, issued.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusActive, stored.Status)
		assert.Equal(t, 1, stored.UsageCount)
	})

	t.Run("不存在的密钥", func(t *testing.T) {
		assert.ErrorIs(t, service.Suspend(ctx, "no-such-id"), ErrKeyNotFound)
		assert.ErrorIs(t, service.Activate(ctx, "no-such-id"), ErrKeyNotFound)
	})
}

func TestKeyService_Update(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestKeyService()
	issued, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
	require.NoError(t, err)

	t.Run("更新备注和次数上限", func(t *testing.T) {
		notes := "VIP 坐席"
		updated, err := service.Update(ctx, issued.ID, UpdateKeyInput{
			Notes:    &notes,
			MaxUsage: intPtr(100),
		})

		require.NoError(t, err)
		assert.Equal(t, "VIP 坐席", updated.Notes)
		require.NotNil(t, updated.MaxUsage)
		assert.Equal(t, 100, *updated.MaxUsage)
	})

	t.Run("ClearMax清除次数上限", func(t *testing.T) {
		updated, err := service.Update(ctx, issued.ID, UpdateKeyInput{ClearMax: true})

		require.NoError(t, err)
		assert.Nil(t, updated.MaxUsage)
	})

	t.Run("续期不改变状态", func(t *testing.T) {
		newExpiry := time.Now().AddDate(0, 0, 90)
		updated, err := service.Update(ctx, issued.ID, UpdateKeyInput{ExpiresAt: &newExpiry})

		require.NoError(t, err)
		assert.WithinDuration(t, newExpiry, updated.ExpiresAt, time.Second)
		assert.Equal(t, domain.KeyStatusActive, updated.Status)
	})
}

func TestKeyService_Delete(t *testing.T) {
	ctx := context.Background()
	t.Run("删除普通密钥", func(t *testing.T) {
		service, _ := newTestKeyService()
		issued, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
		require.NoError(t, err)

		require.NoError(t, service.Delete(ctx, issued.ID))

		_, err = service.Get(ctx, issued.ID)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("保留管理员密钥受保护", func(t *testing.T) {
		service, store := newTestKeyService()
		protected := &domain.AccessKey{
			ID:        "key-admin",
			Value:     testAdminKey,
			Kind:      domain.KeyKindAdmin,
			Status:    domain.KeyStatusActive,
			IssuedAt:  time.Now(),
			ExpiresAt: time.Now().AddDate(1, 0, 0),
		}
		require.NoError(t, store.SaveKey(ctx, protected))

		assert.ErrorIs(t, service.Delete(ctx, "key-admin"), ErrProtectedKey)
	})
}

func TestKeyService_Validate(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestKeyService()
	issued, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
	require.NoError(t, err)

	t.Run("有效密钥", func(t *testing.T) {
		result, err := service.Validate(ctx, issued.Value)

		require.NoError(t, err)
		assert.True(t, result.IsValid)
		assert.Equal(t, domain.KeyStatusActive, result.Status)
	})

	t.Run("校验不消耗使用次数", func(t *testing.T) {
		stored, err := service.Get(ctx, issued.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.UsageCount)
	})

	t.Run("格式错误返回无效而非报错", func(t *testing.T) {
		result, err := service.Validate(ctx, "BAD")

		require.NoError(t, err)
		assert.False(t, result.IsValid)
	})

	t.Run("暂停后校验无效", func(t *testing.T) {
		require.NoError(t, service.Suspend(ctx, issued.ID))

		result, err := service.Validate(ctx, issued.Value)

		require.NoError(t, err)
		assert.False(t, result.IsValid)
		assert.Equal(t, domain.KeyStatusSuspended, result.Status)
	})
}

func TestKeyService_ListAndStatistics(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestKeyService()

	for i := 0; i < 3; i++ {
		_, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
		require.NoError(t, err)
	}
	suspended, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
	require.NoError(t, err)
	require.NoError(t, service.Suspend(ctx, suspended.ID))
	expiring, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAdmin, ValidityDays: 3})
	require.NoError(t, err)

	t.Run("按状态过滤", func(t *testing.T) {
		status := domain.KeyStatusSuspended
		views, total, err := service.List(ctx, domain.KeyListFilter{Status: &status, Page: 1, Limit: 10})

		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, views, 1)
		assert.Equal(t, suspended.ID, views[0].ID)
	})

	t.Run("按类型过滤", func(t *testing.T) {
		kind := domain.KeyKindAdmin
		_, total, err := service.List(ctx, domain.KeyListFilter{Kind: &kind, Page: 1, Limit: 10})

		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("分页", func(t *testing.T) {
		views, total, err := service.List(ctx, domain.KeyListFilter{Page: 1, Limit: 2})

		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, views, 2)
	})

	t.Run("临期密钥计入活跃并单独统计", func(t *testing.T) {
		view, err := service.Get(ctx, expiring.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DisplayExpiringSoon, view.ComputedStatus)

		stats, err := service.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, stats.Total)
		assert.Equal(t, 4, stats.Active)
		assert.Equal(t, 1, stats.Suspended)
		assert.Equal(t, 1, stats.ExpiringSoon)
	})
}

func TestKeyService_AuthenticateStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestKeyService()
	issued, err := service.Issue(ctx, IssueKeyInput{Kind: domain.KeyKindAgent, ValidityDays: 30})
	require.NoError(t, err)

	// 请求超时后认证按存储不可用上报，而不是密钥不存在
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = service.Authenticate(canceled, issued.Value)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
