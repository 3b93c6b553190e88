package message

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wecomCmder/internal/model"
	"wecomCmder/internal/wecom"
)

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store 消息记录存储
type Store interface {
	SaveInbound(ctx context.Context, msg *wecom.ParsedMessage) (*model.Message, error)
	SaveOutbound(ctx context.Context, out Outbound) (*model.Message, error)
	List(ctx context.Context, q Query) (Page, error)
}

// Outbound 一条发出的消息
type Outbound struct {
	ToUser  string
	MsgType string
	Content string
	Status  string
}

// Query 历史消息查询条件
type Query struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Direction string `form:"direction" binding:"omitempty,oneof=in out all"`
	FromUser  string `form:"from_user"`
	StartTime int64  `form:"start_time"`
	EndTime   int64  `form:"end_time"`
}

// Page 分页结果
type Page struct {
	Items    []model.Message `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.Direction == "all" {
		q.Direction = ""
	}
	return q
}

// InboundRecord 把解析后的消息转换为存储记录，缺少 MsgId 时用 发送者_时间 代替
func InboundRecord(msg *wecom.ParsedMessage) *model.Message {
	msgID := msg.MsgID
	if msgID == "" {
		msgID = fmt.Sprintf("%s_%d", msg.FromUser, msg.CreateTime)
	}
	content := msg.Content
	if content == "" {
		content = msg.EventKey
	}
	return &model.Message{
		MsgID:      msgID,
		MsgType:    string(msg.MsgType),
		FromUser:   msg.FromUser,
		ToUser:     msg.ToUser,
		Content:    content,
		Event:      string(msg.Event),
		EventKey:   msg.EventKey,
		CreateTime: msg.CreateTime,
		Direction:  model.DirectionIn,
		Status:     model.StatusReceived,
	}
}

// OutboundRecord 为发出的消息生成记录，ID 为 out_<uuid>
func OutboundRecord(out Outbound, now time.Time) *model.Message {
	status := out.Status
	if status == "" {
		status = model.StatusSent
	}
	return &model.Message{
		MsgID:      "out_" + uuid.New().String(),
		MsgType:    out.MsgType,
		FromUser:   "system",
		ToUser:     out.ToUser,
		Content:    out.Content,
		CreateTime: now.Unix(),
		Direction:  model.DirectionOut,
		Status:     status,
	}
}

// GormStore 基于 messages 表的 Store
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore 创建消息存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// SaveInbound 保存收到的消息
func (s *GormStore) SaveInbound(ctx context.Context, msg *wecom.ParsedMessage) (*model.Message, error) {
	record := InboundRecord(msg)
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("保存消息失败: %w", err)
	}
	return record, nil
}

// SaveOutbound 保存发出的消息
func (s *GormStore) SaveOutbound(ctx context.Context, out Outbound) (*model.Message, error) {
	record := OutboundRecord(out, s.now())
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("保存消息失败: %w", err)
	}
	return record, nil
}

// List 按 create_time 倒序分页查询
func (s *GormStore) List(ctx context.Context, q Query) (Page, error) {
	q = q.normalize()

	tx := s.db.WithContext(ctx).Model(&model.Message{})
	if q.Direction != "" {
		tx = tx.Where("direction = ?", q.Direction)
	}
	if q.FromUser != "" {
		tx = tx.Where("from_user = ?", q.FromUser)
	}
	if q.StartTime > 0 {
		tx = tx.Where("create_time >= ?", q.StartTime)
	}
	if q.EndTime > 0 {
		tx = tx.Where("create_time <= ?", q.EndTime)
	}

	page := Page{Page: q.Page, PageSize: q.PageSize, Items: []model.Message{}}
	if err := tx.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return Page{}, fmt.Errorf("查询消息失败: %w", err)
	}
	err := tx.Session(&gorm.Session{}).
		Order("create_time DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&page.Items).Error
	if err != nil {
		return Page{}, fmt.Errorf("查询消息失败: %w", err)
	}
	return page, nil
}
