// Package app 组装运行所需的基础设施与业务服务，供 HTTP 服务与命令行工具共用。
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/calendar"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/database"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/jwt"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/mailer"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/redis"
)

// App 已初始化的依赖
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client // 连接失败时为 nil
	JWT     *jwt.Manager
	Repo    *repository.Repository
	Service *service.Service
}

// Options 启动选项
type Options struct {
	// Migrate 启动时执行数据库迁移
	Migrate bool
}

// New 连接数据库与 Redis，构造日历客户端与业务服务
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, err
	}

	if opts.Migrate {
		sqlDB, err := db.DB()
		if err != nil {
			database.Close(db)
			return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
		}
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			database.Close(db)
			return nil, err
		}
	}

	// Redis 可选：连接失败时降级运行
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单与月报去重将不可用", zap.Error(err))
		rdb = nil
	}

	deps := service.Deps{
		Redis:  rdb,
		Mailer: mailer.New(&cfg.Mail, logger),
	}
	if cfg.Calendar.Enabled {
		client, err := calendar.NewGoogleClient(ctx, &cfg.Calendar, cfg.Report.Location(), logger)
		if err != nil {
			// 日历不可用不影响申请与审批
			logger.Error("日历客户端初始化失败，日历同步已禁用", zap.Error(err))
		} else {
			deps.Calendar = client
			logger.Info("日历同步已启用", zap.String("calendar_id", cfg.Calendar.CalendarID))
		}
	}

	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   rdb,
		JWT:     jwtMgr,
		Repo:    repo,
		Service: service.NewService(cfg, repo, jwtMgr, deps, logger),
	}, nil
}

// Close 释放数据库与 Redis 连接
func (a *App) Close() {
	if err := database.Close(a.DB); err != nil {
		a.Logger.Warn("关闭数据库连接失败", zap.Error(err))
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("关闭 Redis 连接失败", zap.Error(err))
		}
	}
}
