package command

import (
	"cmp"
	"slices"
)

// Menu 企业微信应用菜单
type Menu struct {
	Button []MenuButton `json:"button"`
}

// MenuButton 一级菜单
type MenuButton struct {
	Name      string     `json:"name"`
	SubButton []MenuItem `json:"sub_button"`
}

// MenuItem 点击类型的子菜单，Key 为命令 ID
type MenuItem struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Count 子菜单总数
func (m Menu) Count() int {
	n := 0
	for _, b := range m.Button {
		n += len(b.SubButton)
	}
	return n
}

// GenerateMenu 由已启用命令生成菜单：按分类首次出现的顺序分组，
// 组内按 SortOrder 升序，每组取前 5 个，只保留前 3 组。
func (r *Registry) GenerateMenu() Menu {
	var categories []string
	groups := make(map[string][]Command)

	for _, cmd := range r.Enabled() {
		if _, seen := groups[cmd.Category]; !seen {
			categories = append(categories, cmd.Category)
		}
		groups[cmd.Category] = append(groups[cmd.Category], cmd)
	}

	menu := Menu{Button: []MenuButton{}}
	for _, category := range categories {
		if len(menu.Button) == MaxMenuGroups {
			break
		}

		cmds := groups[category]
		slices.SortStableFunc(cmds, func(a, b Command) int { return cmp.Compare(a.SortOrder, b.SortOrder) })
		if len(cmds) > MaxMenuItems {
			cmds = cmds[:MaxMenuItems]
		}

		button := MenuButton{Name: category, SubButton: make([]MenuItem, 0, len(cmds))}
		for _, cmd := range cmds {
			button.SubButton = append(button.SubButton, MenuItem{Type: "click", Name: cmd.Name, Key: cmd.ID})
		}
		menu.Button = append(menu.Button, button)
	}
	return menu
}
