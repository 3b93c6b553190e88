package command

import (
	"context"
	"fmt"
	"strings"
)

// StatusText status 命令的固定回复
const StatusText = "系统运行正常\n\n当前功能：\n- 消息推送\n- 指令接收\n- 菜单交互"

// RegisterBuiltins 注册内置命令
func RegisterBuiltins(r *Registry) {
	r.Register(Command{
		ID:          "status",
		Name:        "系统状态",
		Description: "查看系统运行状态",
		Category:    "系统",
		Enabled:     true,
		Handler: HandlerFunc(func(context.Context, string, []string) (string, error) {
			return StatusText, nil
		}),
	})
	r.Register(Command{
		ID:          "help",
		Name:        "帮助",
		Description: "查看命令列表",
		Category:    "系统",
		Enabled:     true,
		SortOrder:   1,
		Handler:     helpHandler{registry: r},
	})
}

type helpHandler struct {
	registry *Registry
}

func (h helpHandler) Execute(context.Context, string, []string) (string, error) {
	var categories []string
	groups := make(map[string][]Command)
	for _, cmd := range h.registry.Enabled() {
		if _, seen := groups[cmd.Category]; !seen {
			categories = append(categories, cmd.Category)
		}
		groups[cmd.Category] = append(groups[cmd.Category], cmd)
	}

	var b strings.Builder
	b.WriteString("可用命令列表：\n\n")
	for _, category := range categories {
		fmt.Fprintf(&b, "【%s】\n", category)
		for _, cmd := range groups[category] {
			mark := ""
			if cmd.AdminOnly {
				mark = " [管理员]"
			}
			fmt.Fprintf(&b, "  /%s %s%s\n  %s\n\n", cmd.ID, cmd.Name, mark, cmd.Description)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
