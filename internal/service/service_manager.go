package service

import (
	"fmt"
	"log/slog"
	"sync"

	"wecomCmder/internal/command"
	"wecomCmder/internal/config"
	"wecomCmder/internal/logger"
	"wecomCmder/internal/message"
	"wecomCmder/internal/wecom"
)

var errCallbackIncomplete = fmt.Errorf("%w: 缺少 token 或 encoding_aes_key", config.ErrIncomplete)

// Runtime 一份企业微信配置对应的运行时对象。配置更新时整体替换。
type Runtime struct {
	Config   config.WeComConfig
	Crypto   *wecom.Crypto
	Client   *wecom.Client
	Messages *message.Service
}

// Deps 运行时共享的依赖，除 Registry 外均可为空
type Deps struct {
	Registry   *command.Registry
	Store      message.Store
	Dedup      message.Deduplicator
	Notifier   message.Notifier
	TokenStore wecom.TokenStore
	Logger     *slog.Logger
}

// Manager 统一服务管理器，持有当前运行时
type Manager struct {
	mu   sync.RWMutex
	rt   *Runtime
	deps Deps
	log  *slog.Logger
}

// NewManager 创建服务管理器。配置无效时仍返回管理器，回调与主动调用在配置补全前不可用。
func NewManager(cfg config.WeComConfig, deps Deps) *Manager {
	m := &Manager{deps: deps, log: logger.OrDefault(deps.Logger, "service")}

	rt, err := m.build(cfg)
	if err != nil {
		m.log.Warn("企业微信配置无效，回调暂不可用", "error", err)
		rt = &Runtime{Config: cfg.WithDefaults()}
		if cfg.Validate() == nil {
			rt.Client = m.newClient(rt.Config)
		}
	}
	m.rt = rt
	m.log.Info("服务管理器初始化完成", "callback", rt.Crypto != nil, "client", rt.Client != nil)
	return m
}

// Reload 用新配置替换运行时，配置无效时保留原运行时
func (m *Manager) Reload(cfg config.WeComConfig) error {
	rt, err := m.build(cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.rt = rt
	m.mu.Unlock()

	m.log.Info("企业微信配置已重新加载", "corp_id", rt.Config.CorpID, "agent_id", rt.Config.AgentID)
	return nil
}

func (m *Manager) build(cfg config.WeComConfig) (*Runtime, error) {
	cfg = cfg.WithDefaults()
	rt := &Runtime{Config: cfg}

	if cfg.Validate() == nil {
		rt.Client = m.newClient(cfg)
	}

	if cfg.CallbackReady() {
		crypto, err := wecom.NewCrypto(cfg.Token, cfg.EncodingAESKey, cfg.CorpID)
		if err != nil {
			return nil, fmt.Errorf("初始化加解密失败: %w", err)
		}
		rt.Crypto = crypto
	}

	if rt.Crypto != nil && rt.Client != nil {
		rt.Messages = message.NewService(message.Options{
			Crypto:        rt.Crypto,
			Sender:        rt.Client,
			Commands:      m.deps.Registry,
			AdminUsers:    cfg.AdminUsers,
			CommandPrefix: cfg.CommandPrefix,
			Store:         m.deps.Store,
			Dedup:         m.deps.Dedup,
			Notifier:      m.deps.Notifier,
			Logger:        m.deps.Logger,
		})
	}
	return rt, nil
}

func (m *Manager) newClient(cfg config.WeComConfig) *wecom.Client {
	opts := []wecom.Option{wecom.WithLogger(m.deps.Logger)}
	if m.deps.TokenStore != nil {
		opts = append(opts, wecom.WithTokenStore(m.deps.TokenStore))
	}
	return wecom.NewClient(cfg, opts...)
}

// Current 当前运行时快照
func (m *Manager) Current() *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rt
}

// Config 当前企业微信配置
func (m *Manager) Config() config.WeComConfig {
	return m.Current().Config
}

// Registry 命令注册表
func (m *Manager) Registry() *command.Registry {
	return m.deps.Registry
}

// Client 当前企业微信客户端
func (m *Manager) Client() (*wecom.Client, error) {
	rt := m.Current()
	if rt.Client == nil {
		return nil, rt.Config.Validate()
	}
	return rt.Client, nil
}

// Crypto 当前回调加解密器
func (m *Manager) Crypto() (*wecom.Crypto, error) {
	rt := m.Current()
	if rt.Crypto == nil {
		return nil, errCallbackIncomplete
	}
	return rt.Crypto, nil
}

// Messages 当前回调消息处理服务
func (m *Manager) Messages() (*message.Service, error) {
	rt := m.Current()
	switch {
	case rt.Messages != nil:
		return rt.Messages, nil
	case rt.Crypto == nil:
		return nil, errCallbackIncomplete
	default:
		return nil, rt.Config.Validate()
	}
}

// MenuAPI 供命令管理接口使用
func (m *Manager) MenuAPI() (command.MenuAPI, error) {
	client, err := m.Client()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Sender 供消息管理接口使用
func (m *Manager) Sender() (message.OutboundSender, error) {
	client, err := m.Client()
	if err != nil {
		return nil, err
	}
	return client, nil
}
