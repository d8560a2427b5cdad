// Package job 后台定时任务：待审批提醒与月度报表发送。
//
// 每个周期依次执行两项任务，单项失败只记录日志，不影响另一项与后续周期。
// 月报是否需要发送由 ReportService.SendDue 根据配置的发送日判断，
// 重复发送由 Redis 标记拦截，因此多实例部署时可同时开启。
package job

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
)

const (
	defaultInterval = time.Hour
	runTimeout      = 5 * time.Minute
)

// Scheduler 定时任务调度器
type Scheduler struct {
	reminder service.ReminderService
	report   service.ReportService
	interval time.Duration
	enabled  bool
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewScheduler 创建调度器
func NewScheduler(cfg *config.JobConfig, reminder service.ReminderService, report service.ReportService, logger *zap.Logger) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		reminder: reminder,
		report:   report,
		interval: interval,
		enabled:  cfg.Enabled,
		logger:   logger,
		now:      time.Now,
	}
}

// Start 启动后台协程，启动时立即执行一次
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		s.logger.Info("定时任务未启用")
		return
	}
	if s.running {
		return
	}

	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.loop()

	s.logger.Info("定时任务已启动", zap.Duration("interval", s.interval))
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.running = false

	s.logger.Info("定时任务已停止")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	s.RunOnce(context.Background())
	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunOnce 执行一个周期：待审批提醒 + 到期月报
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if s.reminder != nil {
		res, err := s.reminder.SendPendingReminders(ctx)
		switch {
		case err != nil:
			s.logger.Error("待审批提醒执行失败", zap.Error(err))
		case res.Error != "":
			s.logger.Warn("待审批提醒邮件发送失败", zap.Int("pending", res.Pending), zap.String("error", res.Error))
		case res.Sent:
			s.logger.Info("待审批提醒已发送", zap.Int("pending", res.Pending), zap.Int("reminded", res.Reminded))
		}
	}

	if s.report != nil {
		if err := s.report.SendDue(ctx, s.now()); err != nil {
			s.logger.Error("月报定时发送失败", zap.Error(err))
		}
	}
}
