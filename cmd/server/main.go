package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/api/handler"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/api/router"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/app"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/job"
	applogger "github.com/PierreCStars/stars-vacation-management-sub001/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("report_timezone", cfg.Report.Timezone),
	)

	// 3. 数据库、迁移、Redis、日历、业务服务
	a, err := app.New(context.Background(), cfg, logger, app.Options{Migrate: true})
	if err != nil {
		logger.Fatal("初始化失败", zap.Error(err))
	}

	// 4. Handler 与路由
	cookie := &handler.CookieOptions{
		Path:   "/api/v1/auth",
		Secure: cfg.Server.SecureCookie(),
		MaxAge: int(cfg.Auth.RefreshTokenTTLRemember.Seconds()),
	}
	h := handler.NewHandler(a.Service, cookie, cfg.Report.Location())
	engine := router.Setup(cfg, h, a.JWT, a.Redis, logger)

	// 5. 定时任务
	scheduler := job.NewScheduler(&cfg.Job, a.Service.Reminder, a.Service.Report, logger)
	scheduler.Start()

	// 6. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 报表导出与日历对账
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 7. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}
	scheduler.Stop()
	a.Close()

	logger.Info("服务器已关闭")
}
