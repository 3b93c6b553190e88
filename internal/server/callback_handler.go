package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"wecomCmder/internal/logger"
	"wecomCmder/internal/message"
	"wecomCmder/internal/wecom"
)

// 回调请求体上限
const maxCallbackBody = 1 << 20

// CallbackRuntime 回调处理依赖的当前运行时
type CallbackRuntime interface {
	Crypto() (*wecom.Crypto, error)
	Messages() (*message.Service, error)
}

// CallbackHandler 企业微信回调接口
type CallbackHandler struct {
	runtime CallbackRuntime
	log     *slog.Logger
}

// NewCallbackHandler 创建回调接口
func NewCallbackHandler(runtime CallbackRuntime, log *slog.Logger) *CallbackHandler {
	return &CallbackHandler{runtime: runtime, log: logger.OrDefault(log, "callback")}
}

// Verify 处理回调 URL 验证，成功时原样返回解密后的 echostr
func (h *CallbackHandler) Verify(c *gin.Context) {
	crypto, err := h.runtime.Crypto()
	if err != nil {
		h.log.Error("回调配置不完整", "error", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	echo, err := crypto.VerifyURL(
		c.Query("msg_signature"),
		c.Query("timestamp"),
		c.Query("nonce"),
		c.Query("echostr"),
	)
	if err != nil {
		h.log.Warn("URL验证失败", "error", err)
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	h.log.Info("URL验证成功")
	c.String(http.StatusOK, echo)
}

// Receive 处理回调消息，无论结果如何都返回 success
func (h *CallbackHandler) Receive(c *gin.Context) {
	defer c.String(http.StatusOK, message.Ack)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		h.log.Warn("读取回调请求体失败", "error", err)
		return
	}

	svc, err := h.runtime.Messages()
	if err != nil {
		h.log.Error("回调暂不可用", "error", err)
		return
	}

	res := svc.Handle(c.Request.Context(),
		c.Query("msg_signature"),
		c.Query("timestamp"),
		c.Query("nonce"),
		string(body),
	)
	h.log.Debug("回调处理完成", "stage", res.Stage.String(), "reply", res.Reply != "", "error", res.Err)
}
