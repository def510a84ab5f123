package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ========== 坐席在线状态 ==========
//
// 在线状态以带 TTL 的键维护：websocket 心跳定期续期，
// 连接断开后键自然过期，坐席自动视为离线。

const presencePrefix = "presence:agent:"

// DefaultPresenceTTL 心跳续期窗口
const DefaultPresenceTTL = 90 * time.Second

// SetAgentPresence 标记坐席在线并记录状态
func (c *Client) SetAgentPresence(ctx context.Context, agentID, status string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return c.rdb.Set(ctx, presencePrefix+agentID, status, ttl).Err()
}

// RefreshAgentPresence 心跳续期
func (c *Client) RefreshAgentPresence(ctx context.Context, agentID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return c.rdb.Expire(ctx, presencePrefix+agentID, ttl).Err()
}

// ClearAgentPresence 坐席下线
func (c *Client) ClearAgentPresence(ctx context.Context, agentID string) error {
	return c.rdb.Del(ctx, presencePrefix+agentID).Err()
}

// AgentPresence 查询坐席在线状态，离线时返回空串
func (c *Client) AgentPresence(ctx context.Context, agentID string) (string, error) {
	status, err := c.rdb.Get(ctx, presencePrefix+agentID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// OnlineAgents 列出当前在线的坐席 ID
func (c *Client) OnlineAgents(ctx context.Context) ([]string, error) {
	var agents []string
	iter := c.rdb.Scan(ctx, 0, presencePrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		agents = append(agents, iter.Val()[len(presencePrefix):])
	}
	return agents, iter.Err()
}
