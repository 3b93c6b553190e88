package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"wecomCmder/internal/command"
	"wecomCmder/internal/config"
	"wecomCmder/internal/database"
	"wecomCmder/internal/logger"
	"wecomCmder/internal/message"
	"wecomCmder/internal/redisclient"
	"wecomCmder/internal/service"
	"wecomCmder/internal/settings"
	"wecomCmder/internal/ws"
)

// app 进程内的长期对象
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *gorm.DB
	sqlDB    *sql.DB
	registry *command.Registry
	states   command.StateStore
	settings settings.Store
	messages message.Store
	hub      *ws.Hub
	manager  *service.Manager
}

// newApp 读取配置并初始化数据库、Redis、命令注册表与运行时
func newApp(ctx context.Context) (*app, error) {
	if err := config.Init(); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	cfg := config.GlobalConfig

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	slog.SetDefault(appLogger)
	log := appLogger.With("component", "main")

	db, err := database.InitDB(cfg.Database.MySQL.DSN, appLogger)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	log.Info("数据库初始化成功")

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		sqlDB:    sqlDB,
		registry: command.NewRegistry(appLogger),
		states:   command.NewGormStateStore(db),
		settings: settings.NewGormStore(db),
		messages: message.NewGormStore(db),
		hub:      ws.NewHub(appLogger),
	}

	command.RegisterBuiltins(a.registry)
	if err := a.registry.RestoreFrom(ctx, a.states); err != nil {
		log.Warn("恢复命令状态失败", "error", err)
	}

	wecomCfg := cfg.WeCom
	if values, err := a.settings.Load(ctx); err != nil {
		log.Warn("读取数据库中的企业微信配置失败，使用配置文件", "error", err)
	} else {
		wecomCfg = settings.Apply(wecomCfg, values)
	}

	deps := service.Deps{
		Registry: a.registry,
		Store:    a.messages,
		Notifier: a.hub,
		Logger:   appLogger,
	}
	if cfg.Redis.Enabled {
		client, err := redisclient.Connect(ctx, redisclient.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, appLogger)
		if err != nil {
			log.Warn("系统将在无Redis的情况下继续运行，access_token 不在进程间共享", "error", err)
		} else {
			deps.TokenStore = redisclient.NewTokenStore(client)
			deps.Dedup = redisclient.NewDeduplicator(client)
		}
	}

	a.manager = service.NewManager(wecomCfg, deps)
	return a, nil
}

// Close 释放数据库与Redis连接
func (a *app) Close() {
	if err := redisclient.Close(); err != nil {
		a.log.Warn("关闭Redis失败", "error", err)
	}
	if err := a.sqlDB.Close(); err != nil {
		a.log.Warn("关闭数据库失败", "error", err)
	}
}
