package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

func newKey(id, value string) *domain.AccessKey {
	now := time.Now()
	return &domain.AccessKey{
		ID:        id,
		Value:     value,
		Kind:      domain.KeyKindAgent,
		Status:    domain.KeyStatusActive,
		IssuedAt:  now,
		UpdatedAt: now,
		ExpiresAt: now.AddDate(0, 0, 30),
	}
}

func TestMemoryStore_KeyOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	key := newKey("key-1", "abcd1234efgh5678")
	require.NoError(t, store.SaveKey(ctx, key))

	// Test unique constraint on key value
	dup := newKey("key-2", "abcd1234efgh5678")
	assert.ErrorIs(t, store.SaveKey(ctx, dup), storage.ErrKeyValueExists)

	// Test GetKey / GetKeyByValue
	got, err := store.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, key.Value, got.Value)

	got, err = store.GetKeyByValue(ctx, "abcd1234efgh5678")
	require.NoError(t, err)
	assert.Equal(t, "key-1", got.ID)

	ok, err := store.KeyValueExists(ctx, "abcd1234efgh5678")
	require.NoError(t, err)
	assert.True(t, ok)

	// Returned records are copies, mutation must not leak into the store
	got.Notes = "mutated"
	fresh, err := store.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Empty(t, fresh.Notes)

	// Test UpdateKeyStatus
	require.NoError(t, store.UpdateKeyStatus(ctx, "key-1", domain.KeyStatusSuspended))
	got, err = store.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusSuspended, got.Status)

	// Test DeleteKey
	require.NoError(t, store.DeleteKey(ctx, "key-1"))
	_, err = store.GetKey(ctx, "key-1")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	_, err = store.GetKeyByValue(ctx, "abcd1234efgh5678")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestMemoryStore_IncrementKeyUsageGuard(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()

	max := 2
	key := newKey("key-1", "abcd1234efgh5678")
	key.MaxUsage = &max
	require.NoError(t, store.SaveKey(ctx, key))

	// First two increments pass, the third hits the cap
	require.NoError(t, store.IncrementKeyUsage(ctx, "key-1", now))
	require.NoError(t, store.IncrementKeyUsage(ctx, "key-1", now))
	assert.ErrorIs(t, store.IncrementKeyUsage(ctx, "key-1", now), storage.ErrUsageConflict)

	got, err := store.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
	assert.NotNil(t, got.LastUsedAt)

	// Suspended keys are rejected by the same guard
	suspended := newKey("key-2", "wxyz1234efgh5678")
	suspended.Status = domain.KeyStatusSuspended
	require.NoError(t, store.SaveKey(ctx, suspended))
	assert.ErrorIs(t, store.IncrementKeyUsage(ctx, "key-2", now), storage.ErrUsageConflict)

	assert.ErrorIs(t, store.IncrementKeyUsage(ctx, "ghost", now), storage.ErrKeyNotFound)
}

func TestMemoryStore_MarkKeyExpired(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()

	key := newKey("key-1", "abcd1234efgh5678")
	key.ExpiresAt = now.Add(-time.Hour)
	require.NoError(t, store.SaveKey(ctx, key))

	require.NoError(t, store.MarkKeyExpired(ctx, "key-1", now))
	got, err := store.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusExpired, got.Status)

	// Guard: keys still inside their validity window are left untouched
	fresh := newKey("key-2", "wxyz1234efgh5678")
	require.NoError(t, store.SaveKey(ctx, fresh))
	require.NoError(t, store.MarkKeyExpired(ctx, "key-2", now))
	got, err = store.GetKey(ctx, "key-2")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyStatusActive, got.Status)
}

func TestMemoryStore_ListKeysFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for i := 0; i < 5; i++ {
		key := newKey(fmt.Sprintf("key-%d", i), fmt.Sprintf("value%011d", i))
		if i == 0 {
			key.Status = domain.KeyStatusSuspended
		}
		if i == 1 {
			key.Kind = domain.KeyKindAdmin
		}
		require.NoError(t, store.SaveKey(ctx, key))
	}

	keys, total, err := store.ListKeys(ctx, domain.KeyListFilter{Page: 1, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, keys, 3)

	status := domain.KeyStatusSuspended
	keys, total, err = store.ListKeys(ctx, domain.KeyListFilter{Status: &status, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, keys, 1)
	assert.Equal(t, "key-0", keys[0].ID)

	kind := domain.KeyKindAdmin
	_, total, err = store.ListKeys(ctx, domain.KeyListFilter{Kind: &kind, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestMemoryStore_UsageLogPagination(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	key := newKey("key-1", "abcd1234efgh5678")
	require.NoError(t, store.SaveKey(ctx, key))

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendUsageLog(ctx, &domain.KeyUsageLog{
			ID:        fmt.Sprintf("log-%d", i),
			KeyID:     "key-1",
			Action:    domain.UsageActionLogin,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	// Newest first
	logs, total, err := store.ListUsageLogs(ctx, "key-1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, logs, 2)
	assert.Equal(t, "log-4", logs[0].ID)
	assert.Equal(t, "log-3", logs[1].ID)

	logs, _, err = store.ListUsageLogs(ctx, "key-1", 3, 2)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "log-0", logs[0].ID)

	// Pages past the end are empty, not an error
	logs, _, err = store.ListUsageLogs(ctx, "key-1", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMemoryStore_UserOperations(t *testing.T) {
	store := NewStore()
	now := time.Now()

	user := &domain.User{
		ID:        "u-1",
		Name:      "小陈",
		RoleName:  domain.RoleAgent,
		Status:    domain.AgentOffline,
		CreatedAt: now,
	}
	require.NoError(t, store.CreateUser(user))

	require.NoError(t, store.SetUserOnline("u-1", true, now))
	got, err := store.GetUserByID("u-1")
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
	assert.NotNil(t, got.LastActiveAt)

	require.NoError(t, store.UpdateAgentStatus("u-1", domain.AgentOnline))
	got, err = store.GetUserByID("u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOnline, got.Status)

	_, err = store.GetUserByID("ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestMemoryStore_SessionOperations(t *testing.T) {
	store := NewStore()
	now := time.Now()
	agentID := "agent-1"

	session := &domain.ChatSession{
		ID:         "s-1",
		CustomerID: "c-1",
		AgentID:    &agentID,
		Status:     domain.SessionActive,
		CreatedAt:  now,
	}
	require.NoError(t, store.SaveSession(session))

	count, err := store.CountActiveSessionsByAgent("agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Messages update the session counters
	require.NoError(t, store.SaveChatMessage(&domain.ChatMessage{
		ID:        "m-1",
		SessionID: "s-1",
		SenderID:  "c-1",
		Content:   "hello",
		CreatedAt: now,
	}))
	got, err := store.GetSession("s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
	assert.NotNil(t, got.LastMessageAt)

	// Messages for unknown sessions are rejected
	err = store.SaveChatMessage(&domain.ChatMessage{ID: "m-2", SessionID: "ghost"})
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	status := domain.SessionActive
	sessions, err := store.ListSessions(&status)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	sessions, err = store.ListSessionsByAgent("agent-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestMemoryStore_RateLimitWindow(t *testing.T) {
	store := NewStore()

	count, err := store.IncrRateLimit("login:10.0.0.1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.IncrRateLimit("login:10.0.0.1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	current, err := store.GetRateLimit("login:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)

	// Window rollover resets the counter
	time.Sleep(60 * time.Millisecond)
	count, err = store.IncrRateLimit("login:10.0.0.1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_ContextCanceled(t *testing.T) {
	store := NewStore()
	key := newKey("key-1", "abcd1234efgh5678")
	require.NoError(t, store.SaveKey(context.Background(), key))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetKey(canceled, "key-1")
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = store.GetKeyByValue(canceled, "abcd1234efgh5678")
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	err = store.IncrementKeyUsage(canceled, "key-1", time.Now())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
