package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath    = "config.yaml"
	defaultPort          = 8082
	defaultAPIBase       = "https://qyapi.weixin.qq.com"
	defaultCommandPrefix = "/"
	defaultTimeout       = 10 * time.Second
	defaultJWTSecret     = "default_secret_key_for_development"
)

// Config 应用配置
type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
		TLS         struct {
			Enabled  bool   `yaml:"enabled"`
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`

	Database struct {
		MySQL struct {
			DSN string `yaml:"dsn"` // Data Source Name
		} `yaml:"mysql"`
	} `yaml:"database"`

	JWT struct {
		Secret string `yaml:"secret"`
		Expire int    `yaml:"expire"` // 过期时间（小时）
	} `yaml:"jwt"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	WeCom WeComConfig `yaml:"wecom"`

	Admin struct {
		Username     string `yaml:"username"`
		Password     string `yaml:"password"`
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"admin"`

	Logging LoggingConfig `yaml:"logging"`
}

// WeComConfig 企业微信应用配置，可被管理后台覆盖
type WeComConfig struct {
	CorpID         string        `yaml:"corp_id" json:"corp_id"`
	AppSecret      string        `yaml:"app_secret" json:"app_secret,omitempty"`
	AgentID        string        `yaml:"agent_id" json:"agent_id"`
	Token          string        `yaml:"token" json:"token"`
	EncodingAESKey string        `yaml:"encoding_aes_key" json:"encoding_aes_key"`
	AdminUsers     []string      `yaml:"admin_users" json:"admin_users"`
	APIBase        string        `yaml:"api_base" json:"proxy"`
	CommandPrefix  string        `yaml:"command_prefix" json:"command_prefix"`
	Timeout        time.Duration `yaml:"timeout" json:"-"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ErrIncomplete 表示企业微信必填配置缺失
var ErrIncomplete = errors.New("企业微信配置不完整")

// GlobalConfig 全局配置
var GlobalConfig = Default()

// Default 返回带默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Init 初始化配置，路径可由 WECOM_CONFIG 指定
func Init() error {
	path := strings.TrimSpace(os.Getenv("WECOM_CONFIG"))
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// Load 读取配置文件；文件不存在时使用默认配置
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// 配置文件不存在，使用默认配置
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if c.Server.TLS.CertFile == "" {
		c.Server.TLS.CertFile = "./certs/server.crt"
	}
	if c.Server.TLS.KeyFile == "" {
		c.Server.TLS.KeyFile = "./certs/server.key"
	}
	if c.Database.MySQL.DSN == "" {
		c.Database.MySQL.DSN = "root:123456@tcp(127.0.0.1:3306)/wecom?charset=utf8mb4&parseTime=True&loc=Local"
	}

	// 确保 JWT Secret 有值
	if c.JWT.Secret == "" {
		c.JWT.Secret = defaultJWTSecret
	}
	if c.JWT.Expire <= 0 {
		c.JWT.Expire = 24
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		c.Admin.Password = "admin123"
	}

	c.WeCom.applyDefaults()
}

func (w *WeComConfig) applyDefaults() {
	if w.APIBase == "" {
		w.APIBase = defaultAPIBase
	}
	w.APIBase = strings.TrimRight(w.APIBase, "/")
	if w.CommandPrefix == "" {
		w.CommandPrefix = defaultCommandPrefix
	}
	if w.Timeout <= 0 {
		w.Timeout = defaultTimeout
	}
}

func (c *Config) applyEnv() {
	setString(&c.WeCom.CorpID, "WECOM_CORP_ID")
	setString(&c.WeCom.AppSecret, "WECOM_APP_SECRET")
	setString(&c.WeCom.AgentID, "WECOM_AGENT_ID")
	setString(&c.WeCom.Token, "WECOM_TOKEN")
	setString(&c.WeCom.EncodingAESKey, "WECOM_ENCODING_AES_KEY")
	if value, ok := lookup("WECOM_ADMIN_USERS"); ok {
		c.WeCom.AdminUsers = SplitList(value)
	}

	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Admin.Username, "ADMIN_USERNAME")
	setString(&c.Admin.Password, "ADMIN_PASSWORD")
	setString(&c.Admin.PasswordHash, "ADMIN_PASSWORD_HASH")
	setString(&c.Database.MySQL.DSN, "DATABASE_DSN")
	setString(&c.Logging.Level, "WECOM_LOG_LEVEL")
	setString(&c.Logging.Format, "WECOM_LOG_FORMAT")

	if value, ok := lookup("SERVER_PORT"); ok {
		if port, err := strconv.Atoi(value); err == nil {
			c.Server.Port = port
		}
	}
	if value, ok := lookup("ENABLE_TLS"); ok {
		c.Server.TLS.Enabled = value == "true"
	}
}

// Validate 检查回调与主动调用所需的必填项
func (w WeComConfig) Validate() error {
	var missing []string
	if w.CorpID == "" {
		missing = append(missing, "corp_id")
	}
	if w.AppSecret == "" {
		missing = append(missing, "app_secret")
	}
	if w.AgentID == "" {
		missing = append(missing, "agent_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: 缺少 %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// CallbackReady 是否已配置回调 Token 和 EncodingAESKey
func (w WeComConfig) CallbackReady() bool {
	return w.Token != "" && w.EncodingAESKey != ""
}

// WithDefaults 返回补全默认值后的副本
func (w WeComConfig) WithDefaults() WeComConfig {
	w.applyDefaults()
	return w
}

// SplitList 拆分逗号分隔的列表，去除空白与空项
func SplitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if value, ok := lookup(key); ok {
		*dst = value
	}
}

func lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}
