package settings

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wecomCmder/internal/config"
	"wecomCmder/internal/model"
)

// configs 表中的企业微信配置键
const (
	KeyCorpID         = "wechat.corp_id"
	KeyAppSecret      = "wechat.app_secret"
	KeyAgentID        = "wechat.agent_id"
	KeyToken          = "wechat.token"
	KeyEncodingAESKey = "wechat.encoding_aes_key"
	KeyAdminUsers     = "wechat.admin_users"
	KeyProxy          = "wechat.proxy"
	KeyCommandPrefix  = "wechat.command_prefix"
)

// Store 运行时配置键值存储
type Store interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
}

// GormStore 基于 configs 表的 Store
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建配置存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Load 读取全部 wechat.* 配置
func (s *GormStore) Load(ctx context.Context) (map[string]string, error) {
	var rows []model.ConfigEntry
	if err := s.db.WithContext(ctx).Where("`key` LIKE ?", "wechat.%").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

// Save 在一个事务中写入配置，已存在的键覆盖
func (s *GormStore) Save(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	rows := make([]model.ConfigEntry, 0, len(values))
	for k, v := range values {
		rows = append(rows, model.ConfigEntry{Key: k, Value: v})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	return nil
}

// Apply 用存储中的值覆盖配置文件中的企业微信配置
func Apply(cfg config.WeComConfig, values map[string]string) config.WeComConfig {
	set := func(dst *string, key string) {
		if v, ok := values[key]; ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.CorpID, KeyCorpID)
	set(&cfg.AppSecret, KeyAppSecret)
	set(&cfg.AgentID, KeyAgentID)
	set(&cfg.Token, KeyToken)
	set(&cfg.EncodingAESKey, KeyEncodingAESKey)
	set(&cfg.APIBase, KeyProxy)
	set(&cfg.CommandPrefix, KeyCommandPrefix)
	if v, ok := values[KeyAdminUsers]; ok {
		cfg.AdminUsers = config.SplitList(v)
	}
	return cfg.WithDefaults()
}

// Values 把企业微信配置转换为存储键值
func Values(cfg config.WeComConfig) map[string]string {
	return map[string]string{
		KeyCorpID:         cfg.CorpID,
		KeyAppSecret:      cfg.AppSecret,
		KeyAgentID:        cfg.AgentID,
		KeyToken:          cfg.Token,
		KeyEncodingAESKey: cfg.EncodingAESKey,
		KeyAdminUsers:     strings.Join(cfg.AdminUsers, ","),
		KeyProxy:          cfg.APIBase,
		KeyCommandPrefix:  cfg.CommandPrefix,
	}
}
