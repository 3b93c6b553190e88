package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"wecomCmder/internal/logger"
)

// 菜单限制：最多 3 个一级菜单，每个最多 5 个子菜单
const (
	MaxMenuGroups = 3
	MaxMenuItems  = 5
)

// Registry 命令注册表，一个进程一个实例
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	order    []string // 注册顺序
	log      *slog.Logger
}

// State 可持久化的命令状态
type State struct {
	Enabled   bool
	SortOrder int
}

// Update 管理后台对命令的修改，nil 表示不修改
type Update struct {
	Enabled   *bool `json:"enabled"`
	SortOrder *int  `json:"sort_order"`
}

// NewRegistry 创建空注册表
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		log:      logger.OrDefault(log, "command"),
	}
}

// Register 注册命令，同 ID 已存在时覆盖
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[cmd.ID]; exists {
		r.log.Warn("命令已存在，将被覆盖", "command", cmd.ID)
	} else {
		r.order = append(r.order, cmd.ID)
	}

	c := cmd
	r.commands[cmd.ID] = &c
	r.log.Info("注册命令", "command", cmd.ID, "name", cmd.Name)
}

// Unregister 注销命令
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[id]; !exists {
		return false
	}
	delete(r.commands, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	r.log.Info("注销命令", "command", id)
	return true
}

// Get 返回命令快照
func (r *Registry) Get(id string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[id]
	if !ok {
		return Command{}, false
	}
	return *cmd, true
}

// List 按注册顺序返回全部命令快照
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Command, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.commands[id])
	}
	return out
}

// Enabled 按注册顺序返回已启用的命令
func (r *Registry) Enabled() []Command {
	return slices.DeleteFunc(r.List(), func(c Command) bool { return !c.Enabled })
}

// Apply 修改命令的启用状态或排序
func (r *Registry) Apply(id string, upd Update) (Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, ok := r.commands[id]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	}
	if upd.Enabled != nil {
		cmd.Enabled = *upd.Enabled
	}
	if upd.SortOrder != nil {
		cmd.SortOrder = *upd.SortOrder
	}
	r.log.Info("更新命令", "command", id, "enabled", cmd.Enabled, "sort_order", cmd.SortOrder)
	return *cmd, nil
}

// Restore 应用持久化的命令状态，未注册的 ID 忽略
func (r *Registry) Restore(states map[string]State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, st := range states {
		if cmd, ok := r.commands[id]; ok {
			cmd.Enabled = st.Enabled
			cmd.SortOrder = st.SortOrder
		}
	}
}

// Execute 执行命令。处理器的错误与 panic 都包装为 ExecutionError。
func (r *Registry) Execute(ctx context.Context, id, userID string, isAdmin bool, params []string) (result string, err error) {
	cmd, ok := r.Get(id)
	switch {
	case !ok:
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	case !cmd.Enabled:
		return "", fmt.Errorf("%w: %s", ErrCommandDisabled, id)
	case cmd.AdminOnly && !isAdmin:
		return "", ErrPermissionDenied
	case cmd.Handler == nil:
		return "", &ExecutionError{CommandID: id, Err: fmt.Errorf("未设置处理器")}
	}

	r.log.Info("执行命令", "command", id, "user", userID)

	defer func() {
		if p := recover(); p != nil {
			result, err = "", &ExecutionError{CommandID: id, Err: fmt.Errorf("%v", p)}
			r.log.Error("执行命令失败", "command", id, "panic", p)
		}
	}()

	result, err = cmd.Handler.Execute(ctx, userID, params)
	if err != nil {
		r.log.Error("执行命令失败", "command", id, "error", err)
		return "", &ExecutionError{CommandID: id, Err: err}
	}
	return result, nil
}
