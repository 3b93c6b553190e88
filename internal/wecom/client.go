package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wecomCmder/internal/config"
	"wecomCmder/internal/logger"
)

const (
	pathGetToken   = "/cgi-bin/gettoken"
	pathSendMsg    = "/cgi-bin/message/send"
	pathCreateMenu = "/cgi-bin/menu/create"
	pathDeleteMenu = "/cgi-bin/menu/delete"

	// MaxNewsArticles 图文消息最多 8 条
	MaxNewsArticles = 8
	// AllUsers 发送给应用可见范围内的全部成员
	AllUsers = "@all"
)

// Article 图文消息条目
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	PicURL      string `json:"picurl,omitempty"`
}

// SendResult 一次发送（可能拆分为多条）的结果
type SendResult struct {
	MsgIDs []string `json:"msg_ids"`
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (r apiResponse) err() error {
	if r.ErrCode != codeOK {
		return &APIError{Code: r.ErrCode, Msg: r.ErrMsg}
	}
	return nil
}

type tokenResponse struct {
	apiResponse
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type sendResponse struct {
	apiResponse
	MsgID string `json:"msgid"`
}

type outboundMessage struct {
	ToUser  string `json:"touser"`
	MsgType string `json:"msgtype"`
	AgentID any    `json:"agentid"`
	Text    *struct {
		Content string `json:"content"`
	} `json:"text,omitempty"`
	News *struct {
		Articles []Article `json:"articles"`
	} `json:"news,omitempty"`
	Safe int `json:"safe"`
}

// Client 企业微信主动调用接口，持有该应用唯一的 access_token 缓存
type Client struct {
	corpID    string
	appSecret string
	agentID   string
	apiBase   string
	timeout   time.Duration

	httpClient *http.Client
	tokens     *TokenCache
	log        *slog.Logger
}

// Option 客户端可选项
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	store      TokenStore
	log        *slog.Logger
}

// WithHTTPClient 替换默认 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithTokenStore 启用共享 access_token 存储
func WithTokenStore(store TokenStore) Option {
	return func(o *clientOptions) { o.store = store }
}

// WithLogger 注入日志器
func WithLogger(log *slog.Logger) Option {
	return func(o *clientOptions) { o.log = log }
}

// NewClient 创建企业微信客户端
func NewClient(cfg config.WeComConfig, opts ...Option) *Client {
	cfg = cfg.WithDefaults()

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		corpID:     cfg.CorpID,
		appSecret:  cfg.AppSecret,
		agentID:    cfg.AgentID,
		apiBase:    cfg.APIBase,
		timeout:    cfg.Timeout,
		httpClient: o.httpClient,
		log:        logger.OrDefault(o.log, "wecom.client"),
	}
	storeKey := fmt.Sprintf("%s:%s", cfg.CorpID, cfg.AgentID)
	c.tokens = newTokenCache(c.fetchToken, o.store, storeKey, cfg.Timeout, o.log)
	return c
}

// AgentID 应用 ID
func (c *Client) AgentID() string {
	return c.agentID
}

// AccessToken 获取访问令牌（带缓存）
func (c *Client) AccessToken(ctx context.Context, forceRefresh bool) (string, error) {
	return c.tokens.Get(ctx, forceRefresh)
}

// Tokens 返回 access_token 缓存
func (c *Client) Tokens() *TokenCache {
	return c.tokens
}

func (c *Client) fetchToken(ctx context.Context) (AccessToken, error) {
	query := url.Values{}
	query.Set("corpid", c.corpID)
	query.Set("corpsecret", c.appSecret)

	var resp tokenResponse
	if err := c.do(ctx, http.MethodGet, pathGetToken, query, nil, &resp); err != nil {
		return AccessToken{}, fmt.Errorf("%w: %w", ErrTokenFetchFailure, err)
	}
	if err := resp.err(); err != nil {
		return AccessToken{}, fmt.Errorf("%w: %w", ErrTokenFetchFailure, err)
	}
	if resp.AccessToken == "" {
		return AccessToken{}, fmt.Errorf("%w: 返回的access_token为空", ErrTokenFetchFailure)
	}

	ttl := resp.ExpiresIn
	if ttl <= 0 {
		ttl = 7200
	}
	c.log.Info("成功获取企业微信access_token", "expires_in", ttl)
	return AccessToken{Value: resp.AccessToken, ObtainedAt: time.Now(), TTLSeconds: ttl}, nil
}

// SendText 发送文本消息，超过 2048 字节的内容拆分为多条发送。toUser 为空时发给 @all。
func (c *Client) SendText(ctx context.Context, toUser, content string) (SendResult, error) {
	var result SendResult
	for i, chunk := range SplitContent(content, MaxTextBytes) {
		msg := c.newMessage(toUser, "text")
		msg.Text = &struct {
			Content string `json:"content"`
		}{Content: chunk}

		msgID, err := c.send(ctx, msg)
		if err != nil {
			return result, fmt.Errorf("发送第 %d 段消息失败: %w", i+1, err)
		}
		result.MsgIDs = append(result.MsgIDs, msgID)
	}
	return result, nil
}

// SendNews 发送图文消息，只取前 8 条
func (c *Client) SendNews(ctx context.Context, toUser string, articles []Article) (SendResult, error) {
	if len(articles) > MaxNewsArticles {
		articles = articles[:MaxNewsArticles]
	}

	msg := c.newMessage(toUser, "news")
	msg.News = &struct {
		Articles []Article `json:"articles"`
	}{Articles: articles}

	msgID, err := c.send(ctx, msg)
	if err != nil {
		return SendResult{}, fmt.Errorf("发送图文消息失败: %w", err)
	}
	return SendResult{MsgIDs: []string{msgID}}, nil
}

// CreateMenu 创建应用菜单
func (c *Client) CreateMenu(ctx context.Context, menu any) error {
	query := url.Values{}
	query.Set("agentid", c.agentID)

	var resp apiResponse
	if err := c.callWithToken(ctx, http.MethodPost, pathCreateMenu, query, menu, &resp); err != nil {
		return fmt.Errorf("创建菜单失败: %w", err)
	}
	c.log.Info("成功创建企业微信菜单")
	return nil
}

// DeleteMenu 删除应用菜单
func (c *Client) DeleteMenu(ctx context.Context) error {
	query := url.Values{}
	query.Set("agentid", c.agentID)

	var resp apiResponse
	if err := c.callWithToken(ctx, http.MethodGet, pathDeleteMenu, query, nil, &resp); err != nil {
		return fmt.Errorf("删除菜单失败: %w", err)
	}
	c.log.Info("成功删除企业微信菜单")
	return nil
}

func (c *Client) newMessage(toUser, msgType string) *outboundMessage {
	if toUser == "" {
		toUser = AllUsers
	}
	var agentID any = c.agentID
	if n, err := strconv.Atoi(c.agentID); err == nil {
		agentID = n
	}
	return &outboundMessage{ToUser: toUser, MsgType: msgType, AgentID: agentID}
}

func (c *Client) send(ctx context.Context, msg *outboundMessage) (string, error) {
	var resp sendResponse
	if err := c.callWithToken(ctx, http.MethodPost, pathSendMsg, nil, msg, &resp); err != nil {
		return "", err
	}
	return resp.MsgID, nil
}

type errCoder interface {
	err() error
}

// callWithToken 携带 access_token 调用接口；凭证失效时强制刷新并重试一次
func (c *Client) callWithToken(ctx context.Context, method, path string, query url.Values, body any, out errCoder) error {
	token, err := c.tokens.Get(ctx, false)
	if err != nil {
		return err
	}

	err = c.callOnce(ctx, method, path, token, query, body, out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.invalidCredential() {
		c.log.Warn("access_token已失效，尝试刷新", "errcode", apiErr.Code)
		if token, err = c.tokens.Get(ctx, true); err != nil {
			return err
		}
		err = c.callOnce(ctx, method, path, token, query, body, out)
	}
	return err
}

func (c *Client) callOnce(ctx context.Context, method, path, token string, query url.Values, body any, out errCoder) error {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("access_token", token)

	if err := c.do(ctx, method, path, q, body, out); err != nil {
		return err
	}
	return out.err()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: 解析响应失败: %v", ErrNetwork, err)
	}
	return nil
}
