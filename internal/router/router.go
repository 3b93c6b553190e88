package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wecomCmder/internal/command"
	"wecomCmder/internal/constants"
	"wecomCmder/internal/logger"
	"wecomCmder/internal/message"
	"wecomCmder/internal/middleware"
	"wecomCmder/internal/server"
	"wecomCmder/internal/settings"
	"wecomCmder/internal/user"
	"wecomCmder/internal/ws"
)

// Handlers 路由依赖的全部接口
type Handlers struct {
	CORSOrigins []string
	Auth        *middleware.JWTAuth
	Account     *user.Handler
	Callback    *server.CallbackHandler
	Settings    *settings.API
	Messages    *message.API
	Commands    *command.API
	Hub         *ws.Hub
	Logger      *slog.Logger
}

// SetupRouter 配置所有路由
func SetupRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = []string{constants.DefaultCORSOrigin}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", constants.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(requestLogger(logger.OrDefault(h.Logger, "http")))

	api := r.Group(constants.APIPrefix)
	{
		// ----- 无需认证的路由 -----
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		api.POST(constants.LoginPath, h.Account.Login)

		// 企业微信回调，由消息签名校验
		api.GET(constants.CallbackPath, h.Callback.Verify)
		api.POST(constants.CallbackPath, h.Callback.Receive)

		// ----- 需要认证的路由 -----
		auth := api.Group("/")
		auth.Use(h.Auth.Middleware())
		{
			auth.GET("/auth/me", h.Account.Me)

			// ----- 企业微信配置 -----
			auth.GET("/config/wechat", h.Settings.Get)
			auth.PUT("/config/wechat", h.Settings.Update)
			auth.POST("/config/wechat/test", h.Settings.Test)

			// ----- 消息 -----
			auth.GET("/messages", h.Messages.List)
			auth.POST("/messages/send", h.Messages.Send)

			// ----- 命令与菜单 -----
			auth.GET("/commands", h.Commands.List)
			auth.PUT("/commands/:id", h.Commands.Update)
			auth.POST("/commands/sync-menu", h.Commands.SyncMenu)
			auth.DELETE("/commands/menu", h.Commands.DeleteMenu)

			// 消息实时推送，token 通过 ?token= 传递
			auth.GET("/ws", ws.HandleWebSocket(h.Hub))
		}
	}

	return r
}

// requestLogger API请求日志中间件
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 获取请求ID，方便跟踪
		requestID := c.GetHeader(constants.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(constants.ContextKeyRequestID, requestID)
		c.Header(constants.HeaderRequestID, requestID)

		startTime := time.Now()
		c.Next()

		log.Info("请求",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(startTime),
		)
	}
}
