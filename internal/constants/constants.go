package constants

// 路由
const (
	APIPrefix    = "/api"
	CallbackPath = "/wechat/callback"
	LoginPath    = "/auth/login"
)

// 请求上下文
const (
	HeaderRequestID     = "X-Request-ID"
	ContextKeyRequestID = "requestID"
)

// 默认管理端来源
const DefaultCORSOrigin = "http://localhost:3000"
