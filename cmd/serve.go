package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"wecomCmder/internal/command"
	"wecomCmder/internal/message"
	"wecomCmder/internal/middleware"
	"wecomCmder/internal/router"
	"wecomCmder/internal/server"
	"wecomCmder/internal/settings"
	"wecomCmder/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动回调与管理后台服务",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.hub.Run(ctx)

	cfg := a.cfg
	auth := middleware.NewJWTAuth(cfg.JWT.Secret, cfg.JWT.Expire)
	account, err := user.NewAccountService(cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.PasswordHash, auth, a.log)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	r := router.SetupRouter(router.Handlers{
		CORSOrigins: cfg.Server.CORSOrigins,
		Auth:        auth,
		Account:     user.NewHandler(account),
		Callback:    server.NewCallbackHandler(a.manager, a.log),
		Settings:    settings.NewAPI(a.settings, a.manager, nil, a.log),
		Messages:    message.NewAPI(a.messages, a.manager.Sender, a.hub, a.log),
		Commands:    command.NewAPI(a.registry, a.states, a.manager.MenuAPI, a.log),
		Hub:         a.hub,
		Logger:      a.log,
	})

	tlsCfg := server.NewTLSConfig(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.Enabled)
	if err := tlsCfg.ValidateCertificates(); err != nil {
		a.log.Warn("TLS证书验证失败，回退到HTTP模式", "error", err)
		tlsCfg = server.NewTLSConfig("", "", false)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := tlsCfg.NewHTTPServer(addr, r)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("服务器已启动", "addr", addr, "tls", tlsCfg.Enabled)
		if err := tlsCfg.Serve(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("服务器启动失败: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}

	a.log.Info("服务器已安全关闭")
	return nil
}
