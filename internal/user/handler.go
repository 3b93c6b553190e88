package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wecomCmder/internal/middleware"
)

// Handler 登录相关接口
type Handler struct {
	svc *AccountService
}

// NewHandler 创建登录接口
func NewHandler(svc *AccountService) *Handler {
	return &Handler{svc: svc}
}

// Login 处理管理员登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), &req)
	if errors.Is(err, ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me 获取当前管理员信息
func (h *Handler) Me(c *gin.Context) {
	subject := c.GetString(middleware.ContextKeySubject)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未授权"})
		return
	}
	c.JSON(http.StatusOK, AdminResponse{Username: subject})
}
