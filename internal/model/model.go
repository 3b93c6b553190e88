package model

import (
	"time"

	"gorm.io/gorm"
)

// 消息方向
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// 消息状态
const (
	StatusReceived = "received"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Message 收发消息记录
type Message struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MsgID      string    `gorm:"type:varchar(64);uniqueIndex" json:"msg_id"`
	MsgType    string    `gorm:"type:varchar(20);not null" json:"msg_type"`
	FromUser   string    `gorm:"type:varchar(64);index" json:"from_user"`
	ToUser     string    `gorm:"type:varchar(64)" json:"to_user"`
	Content    string    `gorm:"type:text" json:"content"`
	Event      string    `gorm:"type:varchar(32)" json:"event,omitempty"`
	EventKey   string    `gorm:"type:varchar(64)" json:"event_key,omitempty"`
	CreateTime int64     `gorm:"index" json:"create_time"`
	Direction  string    `gorm:"type:varchar(8);index;default:'in'" json:"direction"` // in, out
	Status     string    `gorm:"type:varchar(16);default:'received'" json:"status"`   // received, sent, failed
	CreatedAt  time.Time `json:"created_at"`
}

// ConfigEntry 运行时配置键值，键名形如 wechat.corp_id
type ConfigEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ConfigEntry) TableName() string {
	return "configs"
}

// CommandState 管理后台修改过的命令状态
type CommandState struct {
	CommandID string    `gorm:"primaryKey;type:varchar(64)" json:"command_id"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (CommandState) TableName() string {
	return "commands"
}

// SetupDatabase 初始化数据库表结构
func SetupDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&Message{},
		&ConfigEntry{},
		&CommandState{},
	)
}
