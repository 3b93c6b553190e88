package command

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyMenu 没有启用的命令时无法生成菜单
var ErrEmptyMenu = errors.New("没有可用于生成菜单的命令")

// MenuAPI 企业微信菜单接口
type MenuAPI interface {
	CreateMenu(ctx context.Context, menu any) error
	DeleteMenu(ctx context.Context) error
}

// SyncMenu 生成菜单并推送到企业微信
func (r *Registry) SyncMenu(ctx context.Context, api MenuAPI) (Menu, error) {
	menu := r.GenerateMenu()
	if len(menu.Button) == 0 {
		return menu, ErrEmptyMenu
	}

	if err := api.CreateMenu(ctx, menu); err != nil {
		r.log.Error("同步菜单失败", "error", err)
		return menu, fmt.Errorf("同步菜单失败: %w", err)
	}

	r.log.Info("同步菜单成功", "groups", len(menu.Button), "items", menu.Count())
	return menu, nil
}
