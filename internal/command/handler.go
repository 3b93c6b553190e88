package command

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"wecomCmder/internal/logger"
)

// MenuSource 返回当前配置下的菜单接口，配置不完整时返回错误
type MenuSource func() (MenuAPI, error)

// API 命令管理接口
type API struct {
	registry *Registry
	store    StateStore
	menus    MenuSource
	log      *slog.Logger
}

// NewAPI 创建命令管理接口，store 可为 nil
func NewAPI(registry *Registry, store StateStore, menus MenuSource, log *slog.Logger) *API {
	return &API{
		registry: registry,
		store:    store,
		menus:    menus,
		log:      logger.OrDefault(log, "command-api"),
	}
}

// List 获取全部命令
func (a *API) List(c *gin.Context) {
	c.JSON(http.StatusOK, a.registry.List())
}

// Update 修改命令启用状态或排序
func (a *API) Update(c *gin.Context) {
	var req Update
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	cmd, err := a.registry.Apply(id, req)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if a.store != nil {
		st := State{Enabled: cmd.Enabled, SortOrder: cmd.SortOrder}
		if err := a.store.SaveState(c.Request.Context(), id, st); err != nil {
			a.log.Error("保存命令状态失败", "command", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "保存命令状态失败"})
			return
		}
	}

	c.JSON(http.StatusOK, cmd)
}

// SyncMenu 把当前命令生成的菜单推送到企业微信
func (a *API) SyncMenu(c *gin.Context) {
	api, err := a.menus()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	menu, err := a.registry.SyncMenu(c.Request.Context(), api)
	switch {
	case errors.Is(err, ErrEmptyMenu):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error(), "menu_count": 0})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error(), "menu_count": menu.Count()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "菜单同步成功", "menu_count": menu.Count()})
	}
}

// DeleteMenu 删除企业微信应用菜单
func (a *API) DeleteMenu(c *gin.Context) {
	api, err := a.menus()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := api.DeleteMenu(c.Request.Context()); err != nil {
		a.log.Error("删除菜单失败", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "菜单已删除"})
}
