package wecom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wecomCmder/internal/config"
	"wecomCmder/internal/logger"
)

type fakeUpstream struct {
	mu          sync.Mutex
	tokenCalls  int
	tokenErr    bool
	expireOnce  int // 前 N 次发送返回 42001
	sendBodies  []map[string]any
	sendTokens  []string
	menuBodies  []map[string]any
	deleteCalls int
	slow        time.Duration
}

func (f *fakeUpstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/gettoken", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokenCalls++
		assert.Equal(t, "corp", r.URL.Query().Get("corpid"))
		assert.Equal(t, "secret", r.URL.Query().Get("corpsecret"))
		if f.tokenErr {
			_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errcode":      0,
			"errmsg":       "ok",
			"access_token": "tok-" + string(rune('0'+f.tokenCalls)),
			"expires_in":   7200,
		})
	})
	mux.HandleFunc("/cgi-bin/message/send", func(w http.ResponseWriter, r *http.Request) {
		if f.slow > 0 {
			time.Sleep(f.slow)
		}
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		defer f.mu.Unlock()
		f.sendTokens = append(f.sendTokens, r.URL.Query().Get("access_token"))
		if f.expireOnce > 0 {
			f.expireOnce--
			_, _ = w.Write([]byte(`{"errcode":42001,"errmsg":"access_token expired"}`))
			return
		}
		f.sendBodies = append(f.sendBodies, body)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok","msgid":"m1"}`))
	})
	mux.HandleFunc("/cgi-bin/menu/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1000002", r.URL.Query().Get("agentid"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.menuBodies = append(f.menuBodies, body)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	})
	mux.HandleFunc("/cgi-bin/menu/delete", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		f.mu.Lock()
		f.deleteCalls++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"errcode":60020,"errmsg":"not allow to access from your ip"}`))
	})
	return mux
}

// view 在锁内读取记录，避免与处理函数竞争
func (f *fakeUpstream) view(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func newFakeClient(t *testing.T, up *fakeUpstream, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(up.handler(t))
	t.Cleanup(srv.Close)

	return NewClient(config.WeComConfig{
		CorpID:    "corp",
		AppSecret: "secret",
		AgentID:   "1000002",
		APIBase:   srv.URL,
		Timeout:   timeout,
	}, WithLogger(logger.Discard()))
}

func TestSendTextBuildsPayload(t *testing.T) {
	up := &fakeUpstream{}
	client := newFakeClient(t, up, time.Second)

	result, err := client.SendText(context.Background(), "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, result.MsgIDs)

	up.view(func() {
		require.Len(t, up.sendBodies, 1)
		body := up.sendBodies[0]
		assert.Equal(t, "alice", body["touser"])
		assert.Equal(t, "text", body["msgtype"])
		assert.EqualValues(t, 1000002, body["agentid"])
		assert.EqualValues(t, 0, body["safe"])
		assert.Equal(t, "hello", body["text"].(map[string]any)["content"])
		assert.Equal(t, 1, up.tokenCalls)
	})
}

func TestSendTextDefaultsToAllAndSplits(t *testing.T) {
	up := &fakeUpstream{}
	client := newFakeClient(t, up, time.Second)

	line := strings.Repeat("a", 1500)
	result, err := client.SendText(context.Background(), "", line+"\n"+line)
	require.NoError(t, err)
	assert.Len(t, result.MsgIDs, 2)

	up.view(func() {
		require.Len(t, up.sendBodies, 2)
		assert.Equal(t, AllUsers, up.sendBodies[0]["touser"])
		assert.Equal(t, 1, up.tokenCalls, "token is cached across chunks")
	})
}

func TestSendRetriesOnceAfterExpiredToken(t *testing.T) {
	up := &fakeUpstream{expireOnce: 1}
	client := newFakeClient(t, up, time.Second)

	_, err := client.SendText(context.Background(), "alice", "hi")
	require.NoError(t, err)

	up.view(func() {
		assert.Equal(t, 2, up.tokenCalls)
		assert.Equal(t, []string{"tok-1", "tok-2"}, up.sendTokens)
	})
}

func TestSendSurfacesSecondExpiredToken(t *testing.T) {
	up := &fakeUpstream{expireOnce: 2}
	client := newFakeClient(t, up, time.Second)

	_, err := client.SendText(context.Background(), "alice", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamRejected))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 42001, apiErr.Code)
	up.view(func() { assert.Len(t, up.sendTokens, 2, "exactly one retry") })
}

func TestTokenFetchFailure(t *testing.T) {
	up := &fakeUpstream{tokenErr: true}
	client := newFakeClient(t, up, time.Second)

	_, err := client.SendText(context.Background(), "alice", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenFetchFailure))
	up.view(func() { assert.Empty(t, up.sendTokens) })
}

func TestSendTimeoutIsNetworkError(t *testing.T) {
	up := &fakeUpstream{slow: 200 * time.Millisecond}
	client := newFakeClient(t, up, 50*time.Millisecond)

	_, err := client.AccessToken(context.Background(), false)
	require.NoError(t, err)

	_, err = client.SendText(context.Background(), "alice", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestSendNewsCapsArticles(t *testing.T) {
	up := &fakeUpstream{}
	client := newFakeClient(t, up, time.Second)

	articles := make([]Article, 10)
	for i := range articles {
		articles[i] = Article{Title: "t", URL: "http://example.com"}
	}
	_, err := client.SendNews(context.Background(), "alice", articles)
	require.NoError(t, err)

	up.view(func() {
		require.Len(t, up.sendBodies, 1)
		news := up.sendBodies[0]["news"].(map[string]any)
		assert.Len(t, news["articles"], MaxNewsArticles)
		assert.Equal(t, "news", up.sendBodies[0]["msgtype"])
	})
}

func TestMenuCreateAndDelete(t *testing.T) {
	up := &fakeUpstream{}
	client := newFakeClient(t, up, time.Second)

	menu := map[string]any{"button": []any{map[string]any{"name": "系统"}}}
	require.NoError(t, client.CreateMenu(context.Background(), menu))
	up.view(func() {
		require.Len(t, up.menuBodies, 1)
		assert.Contains(t, up.menuBodies[0], "button")
	})

	err := client.DeleteMenu(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamRejected))
	up.view(func() { assert.Equal(t, 1, up.deleteCalls) })
}

func TestNon2xxIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(config.WeComConfig{CorpID: "c", AppSecret: "s", AgentID: "1", APIBase: srv.URL}, WithLogger(logger.Discard()))
	_, err := client.AccessToken(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenFetchFailure))
	assert.True(t, errors.Is(err, ErrNetwork))
}
