package user

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"wecomCmder/internal/logger"
	"wecomCmder/internal/middleware"
)

// ErrInvalidCredentials 用户名或密码错误
var ErrInvalidCredentials = errors.New("用户名或密码错误")

// AccountService 管理后台唯一管理员账号
type AccountService struct {
	username     string
	passwordHash []byte
	auth         *middleware.JWTAuth
	log          *slog.Logger
}

// NewAccountService 创建账号服务。passwordHash 为空时使用明文密码生成哈希。
func NewAccountService(username, password, passwordHash string, auth *middleware.JWTAuth, log *slog.Logger) (*AccountService, error) {
	hash := []byte(passwordHash)
	if len(hash) == 0 {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("生成密码哈希失败: %w", err)
		}
	}

	return &AccountService{
		username:     username,
		passwordHash: hash,
		auth:         auth,
		log:          logger.OrDefault(log, "account"),
	}, nil
}

// Login 校验用户名密码并签发 token
func (s *AccountService) Login(_ context.Context, req *LoginRequest) (*LoginResponse, error) {
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		s.log.Warn("登录失败", "username", req.Username)
		return nil, ErrInvalidCredentials
	}

	token, expire, err := s.auth.GenerateToken(s.username)
	if err != nil {
		return nil, fmt.Errorf("生成token失败: %w", err)
	}

	s.log.Info("登录成功", "username", s.username)
	return &LoginResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: expire}, nil
}

// HashPassword 生成 bcrypt 哈希，用于配置 admin.password_hash
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
