package settings

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wecomCmder/internal/config"
	"wecomCmder/internal/logger"
	"wecomCmder/internal/wecom"
)

// Reloader 持有当前企业微信配置的运行时
type Reloader interface {
	Config() config.WeComConfig
	Reload(cfg config.WeComConfig) error
}

// TokenProbe 用给定配置尝试获取 access_token
type TokenProbe func(ctx context.Context, cfg config.WeComConfig) error

// UpdateRequest 修改企业微信配置，nil 字段保持不变
type UpdateRequest struct {
	CorpID         *string  `json:"corp_id"`
	AppSecret      *string  `json:"app_secret"`
	AgentID        *string  `json:"agent_id"`
	Token          *string  `json:"token"`
	EncodingAESKey *string  `json:"encoding_aes_key"`
	AdminUsers     []string `json:"admin_users"`
	Proxy          *string  `json:"proxy"`
	CommandPrefix  *string  `json:"command_prefix"`
}

// TestRequest 测试连接，未提供的字段使用当前配置
type TestRequest struct {
	CorpID    string `json:"corp_id"`
	AppSecret string `json:"app_secret"`
	AgentID   string `json:"agent_id"`
	Proxy     string `json:"proxy"`
}

// View 返回给管理后台的配置，不含 app_secret
type View struct {
	config.WeComConfig
	AppSecretSet bool `json:"app_secret_set"`
}

// API 企业微信配置管理接口
type API struct {
	store   Store
	runtime Reloader
	probe   TokenProbe
	log     *slog.Logger
}

// NewAPI 创建配置管理接口，probe 为 nil 时使用企业微信接口获取 token
func NewAPI(store Store, runtime Reloader, probe TokenProbe, log *slog.Logger) *API {
	if probe == nil {
		probe = FetchToken
	}
	return &API{store: store, runtime: runtime, probe: probe, log: logger.OrDefault(log, "settings")}
}

// FetchToken 用临时客户端强制获取一次 access_token
func FetchToken(ctx context.Context, cfg config.WeComConfig) error {
	_, err := wecom.NewClient(cfg).AccessToken(ctx, true)
	return err
}

func view(cfg config.WeComConfig) View {
	v := View{WeComConfig: cfg, AppSecretSet: cfg.AppSecret != ""}
	v.AppSecret = ""
	return v
}

// Get 获取当前配置
func (a *API) Get(c *gin.Context) {
	c.JSON(http.StatusOK, view(a.runtime.Config()))
}

// Update 保存配置并重新加载运行时
func (a *API) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := merge(a.runtime.Config(), req)
	if cfg.EncodingAESKey != "" {
		if _, err := wecom.DecodeAESKey(cfg.EncodingAESKey); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := a.store.Save(c.Request.Context(), Values(cfg)); err != nil {
		a.log.Error("保存配置失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存配置失败"})
		return
	}
	if err := a.runtime.Reload(cfg); err != nil {
		a.log.Error("重新加载配置失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.log.Info("企业微信配置已更新", "corp_id", cfg.CorpID, "agent_id", cfg.AgentID)
	c.JSON(http.StatusOK, view(a.runtime.Config()))
}

// Test 测试企业微信凭证能否获取 access_token
func (a *API) Test(c *gin.Context) {
	var req TestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cfg := a.runtime.Config()
	override(&cfg.CorpID, req.CorpID)
	override(&cfg.AppSecret, req.AppSecret)
	override(&cfg.AgentID, req.AgentID)
	override(&cfg.APIBase, req.Proxy)
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err := a.probe(c.Request.Context(), cfg); err != nil {
		a.log.Warn("测试连接失败", "corp_id", cfg.CorpID, "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "连接成功"})
}

func merge(cfg config.WeComConfig, req UpdateRequest) config.WeComConfig {
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&cfg.CorpID, req.CorpID)
	apply(&cfg.AgentID, req.AgentID)
	apply(&cfg.Token, req.Token)
	apply(&cfg.EncodingAESKey, req.EncodingAESKey)
	apply(&cfg.APIBase, req.Proxy)
	apply(&cfg.CommandPrefix, req.CommandPrefix)
	// 空 app_secret 表示不修改
	if req.AppSecret != nil && strings.TrimSpace(*req.AppSecret) != "" {
		cfg.AppSecret = strings.TrimSpace(*req.AppSecret)
	}
	if req.AdminUsers != nil {
		cfg.AdminUsers = config.SplitList(strings.Join(req.AdminUsers, ","))
	}
	return cfg.WithDefaults()
}

func override(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
