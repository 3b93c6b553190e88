package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wecomCmder/internal/logger"
	"wecomCmder/internal/wecom"
)

func TestTokenKey(t *testing.T) {
	assert.Equal(t, "wecom:token:corp:1000002", tokenKey("corp:1000002"))
}

func TestTokenTTL(t *testing.T) {
	assert.Equal(t, 7140*time.Second, tokenTTL(wecom.AccessToken{TTLSeconds: 7200}))
	assert.Equal(t, time.Second, tokenTTL(wecom.AccessToken{TTLSeconds: 30}))
}

func TestDisabledWithoutConnect(t *testing.T) {
	assert.NoError(t, Close())
	c, err := Client()
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, c)
}

func TestOptionsAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:6379", Options{}.Addr())
	assert.Equal(t, "redis:6380", Options{Host: "redis", Port: 6380}.Addr())
	assert.Equal(t, "[::1]:6379", Options{Host: "::1"}.Addr())
}

func TestConnectFailureKeepsDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := Connect(ctx, Options{Host: "127.0.0.1", Port: 1}, logger.Discard())
	assert.Error(t, err)
	assert.Nil(t, c)

	_, err = Client()
	assert.ErrorIs(t, err, ErrDisabled)
}
