package command

import (
	"context"
	"errors"
	"fmt"
)

// 命令执行结果错误
var (
	ErrCommandNotFound  = errors.New("命令不存在")
	ErrCommandDisabled  = errors.New("命令已禁用")
	ErrPermissionDenied = errors.New("权限不足，该命令仅管理员可用")
)

// Handler 命令处理器，params 为命令 ID 之后的参数
type Handler interface {
	Execute(ctx context.Context, userID string, params []string) (string, error)
}

// HandlerFunc 把普通函数适配为 Handler
type HandlerFunc func(ctx context.Context, userID string, params []string) (string, error)

// Execute 实现 Handler
func (f HandlerFunc) Execute(ctx context.Context, userID string, params []string) (string, error) {
	return f(ctx, userID, params)
}

// Command 已注册的命令。ID 与 Handler 在注册后不可变，
// Enabled 与 SortOrder 可由管理后台修改。
type Command struct {
	ID          string  `json:"command_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	AdminOnly   bool    `json:"admin_only"`
	Enabled     bool    `json:"enabled"`
	SortOrder   int     `json:"sort_order"`
	Handler     Handler `json:"-"`
}

// ExecutionError 命令处理器返回的错误
type ExecutionError struct {
	CommandID string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("命令执行失败: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ReplyText 把执行错误转换为回复给用户的文本
func ReplyText(err error) string {
	var execErr *ExecutionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &execErr):
		return execErr.Error()
	case errors.Is(err, ErrPermissionDenied):
		return ErrPermissionDenied.Error()
	case errors.Is(err, ErrCommandNotFound), errors.Is(err, ErrCommandDisabled):
		return err.Error()
	default:
		return "命令执行失败"
	}
}
