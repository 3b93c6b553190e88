package message

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wecomCmder/internal/logger"
	"wecomCmder/internal/model"
	"wecomCmder/internal/wecom"
)

// OutboundSender 管理后台主动发送使用的接口
type OutboundSender interface {
	SendText(ctx context.Context, toUser, content string) (wecom.SendResult, error)
	SendNews(ctx context.Context, toUser string, articles []wecom.Article) (wecom.SendResult, error)
}

// SenderSource 返回当前配置下的发送接口，配置不完整时返回错误
type SenderSource func() (OutboundSender, error)

// SendRequest 主动发送请求
type SendRequest struct {
	ToUser   string          `json:"to_user"`
	Type     string          `json:"type" binding:"omitempty,oneof=text news"`
	Content  string          `json:"content"`
	Articles []wecom.Article `json:"articles"`
}

// API 消息管理接口
type API struct {
	store    Store
	senders  SenderSource
	notifier Notifier
	log      *slog.Logger
}

// NewAPI 创建消息管理接口，notifier 可为 nil
func NewAPI(store Store, senders SenderSource, notifier Notifier, log *slog.Logger) *API {
	return &API{
		store:    store,
		senders:  senders,
		notifier: notifier,
		log:      logger.OrDefault(log, "message-api"),
	}
}

// List 分页查询消息历史
func (a *API) List(c *gin.Context) {
	var q Query
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := a.store.List(c.Request.Context(), q)
	if err != nil {
		a.log.Error("查询消息失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询消息失败"})
		return
	}
	c.JSON(http.StatusOK, page)
}

// Send 主动发送文本或图文消息
func (a *API) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type == "" {
		req.Type = string(wecom.MessageTypeText)
	}

	content := strings.TrimSpace(req.Content)
	switch {
	case req.Type == "text" && content == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "文本消息内容不能为空"})
		return
	case req.Type == "news" && len(req.Articles) == 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "图文消息至少需要一篇文章"})
		return
	}

	sender, err := a.senders()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	toUser := req.ToUser
	if toUser == "" {
		toUser = wecom.AllUsers
	}

	var result wecom.SendResult
	if req.Type == "news" {
		result, err = sender.SendNews(c.Request.Context(), toUser, req.Articles)
		content = req.Articles[0].Title
	} else {
		result, err = sender.SendText(c.Request.Context(), toUser, content)
	}

	status := model.StatusSent
	if err != nil {
		status = model.StatusFailed
	}
	a.record(c.Request.Context(), Outbound{ToUser: toUser, MsgType: req.Type, Content: content, Status: status})

	if err != nil {
		a.log.Error("发送消息失败", "to", toUser, "type", req.Type, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	a.log.Info("发送消息成功", "to", toUser, "type", req.Type, "count", len(result.MsgIDs))
	c.JSON(http.StatusOK, gin.H{"success": true, "msg_ids": result.MsgIDs})
}

func (a *API) record(ctx context.Context, out Outbound) {
	record, err := a.store.SaveOutbound(ctx, out)
	if err != nil {
		a.log.Error("保存发送记录失败", "to", out.ToUser, "error", err)
		return
	}
	if a.notifier != nil {
		a.notifier.Publish(record)
	}
}
