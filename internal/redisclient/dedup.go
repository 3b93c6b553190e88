package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	msgKeyPrefix = "wecom:msg:"

	// DedupWindow 企业微信重试窗口内视为重复
	DedupWindow = 5 * time.Minute
)

// Deduplicator 以 MsgId 为键过滤企业微信的重复推送
type Deduplicator struct {
	client *redis.Client
	window time.Duration
}

// NewDeduplicator 创建去重器
func NewDeduplicator(client *redis.Client) *Deduplicator {
	return &Deduplicator{client: client, window: DedupWindow}
}

// Seen 首次出现返回 false 并记录，窗口内再次出现返回 true
func (d *Deduplicator) Seen(ctx context.Context, msgID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, msgKeyPrefix+msgID, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("消息去重失败: %w", err)
	}
	return !ok, nil
}
