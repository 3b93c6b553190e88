package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKeySubject 认证通过后保存在 gin 上下文中的管理员用户名
const ContextKeySubject = "subject"

// JWTAuth 管理后台 bearer token 的签发与校验
type JWTAuth struct {
	secret []byte
	expire time.Duration
	now    func() time.Time
}

// NewJWTAuth 创建 JWTAuth，expireHours 为令牌有效期（小时）
func NewJWTAuth(secret string, expireHours int) *JWTAuth {
	if expireHours <= 0 {
		expireHours = 24
	}
	return &JWTAuth{
		secret: []byte(secret),
		expire: time.Duration(expireHours) * time.Hour,
		now:    time.Now,
	}
}

// Middleware 校验 Authorization 头，WebSocket 连接可以使用 ?token= 参数
func (a *JWTAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		subject, err := a.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的token"})
			return
		}

		c.Set(ContextKeySubject, subject)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("未提供认证token")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && strings.EqualFold(parts[0], "Bearer")) {
		return "", errors.New("无效的token格式")
	}
	return parts[1], nil
}

// ValidateToken 验证JWT token，返回用户名
func (a *JWTAuth) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("意外的签名方法: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("无效的token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("无效的用户名")
	}
	return subject, nil
}

// GenerateToken 生成 JWT token
func (a *JWTAuth) GenerateToken(subject string) (string, time.Time, error) {
	now := a.now()
	expire := now.Add(a.expire)

	claims := jwt.MapClaims{
		"sub": subject,
		"exp": expire.Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expire, nil
}
