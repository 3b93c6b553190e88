package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"wecomCmder/internal/wecom"
)

const tokenKeyPrefix = "wecom:token:"

// TokenStore 在 Redis 中共享 access_token，多个进程可复用同一个凭证
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore 创建 access_token 存储
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Load 读取 access_token，不存在时返回 false
func (s *TokenStore) Load(ctx context.Context, key string) (wecom.AccessToken, bool, error) {
	data, err := s.client.Get(ctx, tokenKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return wecom.AccessToken{}, false, nil
	}
	if err != nil {
		return wecom.AccessToken{}, false, fmt.Errorf("读取access_token失败: %w", err)
	}

	var token wecom.AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		return wecom.AccessToken{}, false, fmt.Errorf("解析access_token失败: %w", err)
	}
	return token, true, nil
}

// Save 写入 access_token，过期时间为 expires_in - 60 秒
func (s *TokenStore) Save(ctx context.Context, key string, token wecom.AccessToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, tokenKey(key), data, tokenTTL(token)).Err(); err != nil {
		return fmt.Errorf("保存access_token失败: %w", err)
	}
	return nil
}

func tokenKey(key string) string {
	return tokenKeyPrefix + key
}

func tokenTTL(token wecom.AccessToken) time.Duration {
	ttl := time.Duration(token.TTLSeconds-60) * time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
