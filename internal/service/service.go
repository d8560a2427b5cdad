package service

import (
	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/calendar"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/jwt"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/mailer"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth        AuthService
	Vacation    VacationService
	Calendar    CalendarSyncService // 未启用日历同步时为 nil
	Report      ReportService
	Reminder    ReminderService
	Feed        FeedService
	Maintenance MaintenanceService
}

// Deps 外部依赖；Calendar / Redis 可为 nil
type Deps struct {
	Calendar calendar.Client
	Redis    *redis.Client
	Mailer   mailer.Sender
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	deps Deps,
	logger *zap.Logger,
) *Service {
	loc := cfg.Report.Location()

	var calSvc CalendarSyncService
	if deps.Calendar != nil {
		calSvc = NewCalendarSyncService(repo, deps.Calendar, loc, cfg.Calendar.SyncDelay, logger)
	}

	// 接口变量持有 nil 指针不等于 nil，需显式判断
	var (
		blacklist TokenBlacklist
		marker    OnceMarker
	)
	if deps.Redis != nil {
		blacklist = deps.Redis
		marker = deps.Redis
	}

	notifier := NewNotifier(repo, deps.Mailer, cfg, logger)

	return &Service{
		Auth:        NewAuthService(cfg, repo, jwtMgr, blacklist, logger),
		Vacation:    NewVacationService(repo, calSvc, notifier, logger),
		Calendar:    calSvc,
		Report:      NewReportService(repo, deps.Mailer, marker, cfg, logger),
		Reminder:    NewReminderService(repo, deps.Mailer, cfg, logger),
		Feed:        NewFeedService(repo, loc, logger),
		Maintenance: NewMaintenanceService(repo, calSvc, logger),
	}
}
