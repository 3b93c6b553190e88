package command

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"wecomCmder/internal/model"
)

// StateStore 持久化命令的启用状态与排序
type StateStore interface {
	LoadStates(ctx context.Context) (map[string]State, error)
	SaveState(ctx context.Context, id string, st State) error
}

// GormStateStore 基于 commands 表的 StateStore
type GormStateStore struct {
	db *gorm.DB
}

// NewGormStateStore 创建命令状态存储
func NewGormStateStore(db *gorm.DB) *GormStateStore {
	return &GormStateStore{db: db}
}

// LoadStates 读取全部命令状态
func (s *GormStateStore) LoadStates(ctx context.Context) (map[string]State, error) {
	var rows []model.CommandState
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取命令状态失败: %w", err)
	}

	states := make(map[string]State, len(rows))
	for _, row := range rows {
		states[row.CommandID] = State{Enabled: row.Enabled, SortOrder: row.SortOrder}
	}
	return states, nil
}

// SaveState 写入单个命令状态，已存在则更新
func (s *GormStateStore) SaveState(ctx context.Context, id string, st State) error {
	row := model.CommandState{CommandID: id, Enabled: st.Enabled, SortOrder: st.SortOrder}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("保存命令状态失败: %w", err)
	}
	return nil
}

// RestoreFrom 从存储加载状态并应用到注册表
func (r *Registry) RestoreFrom(ctx context.Context, store StateStore) error {
	states, err := store.LoadStates(ctx)
	if err != nil {
		return err
	}
	r.Restore(states)
	r.log.Info("已恢复命令状态", "count", len(states))
	return nil
}
