package redisclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"wecomCmder/internal/logger"
)

const pingTimeout = 5 * time.Second

// ErrDisabled Redis 未连接
var ErrDisabled = errors.New("Redis未启用")

// Options 连接参数
type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr host:port，端口为 0 时使用 6379
func (o Options) Addr() string {
	port := o.Port
	if port == 0 {
		port = 6379
	}
	host := o.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

var (
	mu     sync.RWMutex
	client *redis.Client
)

// Connect 建立连接并替换进程内共享的客户端。Ping 失败时不保留客户端。
func Connect(ctx context.Context, opts Options, log *slog.Logger) (*redis.Client, error) {
	log = logger.OrDefault(log, "redis")
	c := redis.NewClient(&redis.Options{
		Addr:     opts.Addr(),
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("连接Redis %s 失败: %w", opts.Addr(), err)
	}

	mu.Lock()
	old := client
	client = c
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	log.Info("Redis连接成功", "addr", opts.Addr(), "db", opts.DB)
	return c, nil
}

// Client 当前共享客户端，未连接时返回 ErrDisabled
func Client() (*redis.Client, error) {
	mu.RLock()
	defer mu.RUnlock()
	if client == nil {
		return nil, ErrDisabled
	}
	return client, nil
}

// Close 关闭共享客户端，未连接时为空操作
func Close() error {
	mu.Lock()
	c := client
	client = nil
	mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}
