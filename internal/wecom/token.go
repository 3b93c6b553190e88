package wecom

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wecomCmder/internal/logger"
)

// 提前 60 秒视为过期
const tokenRefreshAhead = 60 * time.Second

// AccessToken 企业微信 access_token 及其获取时间
type AccessToken struct {
	Value      string    `json:"access_token"`
	ObtainedAt time.Time `json:"obtained_at"`
	TTLSeconds int       `json:"expires_in"`
}

// Valid 在 now - ObtainedAt < TTL - 60s 时有效
func (t AccessToken) Valid(now time.Time) bool {
	if t.Value == "" || t.ObtainedAt.IsZero() {
		return false
	}
	ttl := time.Duration(t.TTLSeconds)*time.Second - tokenRefreshAhead
	return now.Sub(t.ObtainedAt) < ttl
}

// TokenStore 多进程共享 access_token 的二级存储
type TokenStore interface {
	Load(ctx context.Context, key string) (AccessToken, bool, error)
	Save(ctx context.Context, key string, token AccessToken) error
}

type tokenFetcher func(ctx context.Context) (AccessToken, error)

// tokenCall 一次进行中的刷新，并发调用者共享其结果
type tokenCall struct {
	done   chan struct{}
	forced bool
	token  AccessToken
	err    error
}

// TokenCache 缓存单个应用的 access_token。
// 检查有效性与发起刷新在同一把锁内决定；上游请求在锁外进行，
// 并发调用者汇聚到同一次进行中的刷新上。
type TokenCache struct {
	mu       sync.Mutex
	token    AccessToken
	inflight *tokenCall

	fetch    tokenFetcher
	store    TokenStore
	storeKey string
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func newTokenCache(fetch tokenFetcher, store TokenStore, storeKey string, timeout time.Duration, log *slog.Logger) *TokenCache {
	return &TokenCache{
		fetch:    fetch,
		store:    store,
		storeKey: storeKey,
		timeout:  timeout,
		now:      time.Now,
		log:      logger.OrDefault(log, "wecom.token"),
	}
}

// Get 返回有效的 access_token；forceRefresh 为 true 时跳过缓存。
// 刷新失败时保留原有缓存。
func (t *TokenCache) Get(ctx context.Context, forceRefresh bool) (string, error) {
	t.mu.Lock()
	if !forceRefresh && t.token.Valid(t.now()) {
		value := t.token.Value
		t.mu.Unlock()
		return value, nil
	}

	// 强制刷新不能复用可能读取了旧二级缓存的非强制刷新
	if call := t.inflight; call != nil && (call.forced || !forceRefresh) {
		t.mu.Unlock()
		return t.wait(ctx, call)
	}

	call := &tokenCall{done: make(chan struct{}), forced: forceRefresh}
	t.inflight = call
	t.mu.Unlock()

	// 刷新结果由所有等待者共享，不随单个调用者取消
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	token, err := t.refresh(fetchCtx, forceRefresh)
	cancel()

	// 被后发起的强制刷新取代时，结果只返回给本次的等待者，不写入缓存
	t.mu.Lock()
	if t.inflight == call {
		if err == nil {
			t.token = token
		}
		t.inflight = nil
	}
	t.mu.Unlock()

	call.token, call.err = token, err
	close(call.done)

	if err != nil {
		return "", err
	}
	return token.Value, nil
}

func (t *TokenCache) wait(ctx context.Context, call *tokenCall) (string, error) {
	select {
	case <-call.done:
		if call.err != nil {
			return "", call.err
		}
		return call.token.Value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *TokenCache) refresh(ctx context.Context, forced bool) (AccessToken, error) {
	if t.store != nil && !forced {
		shared, ok, err := t.store.Load(ctx, t.storeKey)
		switch {
		case err != nil:
			t.log.Warn("读取共享access_token失败", "error", err)
		case ok && shared.Valid(t.now()):
			t.log.Debug("使用共享缓存中的access_token")
			return shared, nil
		}
	}

	token, err := t.fetch(ctx)
	if err != nil {
		return AccessToken{}, err
	}

	if t.store != nil {
		if err := t.store.Save(ctx, t.storeKey, token); err != nil {
			t.log.Warn("写入共享access_token失败", "error", err)
		}
	}
	return token, nil
}

// Cached 返回当前缓存的 token 快照
func (t *TokenCache) Cached() AccessToken {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}
