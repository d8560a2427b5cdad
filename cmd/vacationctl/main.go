// vacationctl 假期系统运维命令：历史数据修复、日历对账、批量清理与手动触发邮件。
//
// 所有命令打印逐条统计；任意一条失败时以退出码 1 结束。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/app"
	applogger "github.com/PierreCStars/stars-vacation-management-sub001/pkg/logger"
)

func main() {
	root, closeApp := newRootCmd(bootstrap)
	err := root.Execute()
	closeApp()
	if err != nil {
		if !errors.Is(err, errHasFailures) {
			fmt.Fprintln(os.Stderr, "错误:", err)
		}
		os.Exit(1)
	}
}

// bootstrap 加载配置并初始化依赖；命令行工具不执行数据库迁移
func bootstrap(ctx context.Context, configPath string) (*services, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("初始化失败", zap.Error(err))
		return nil, nil, err
	}

	svc := &services{
		Maintenance: a.Service.Maintenance,
		Report:      a.Service.Report,
		Reminder:    a.Service.Reminder,
	}
	cleanup := func() {
		a.Close()
		_ = logger.Sync()
	}
	return svc, cleanup, nil
}
