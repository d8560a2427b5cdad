package handler

import (
	"time"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth     *AuthHandler
	Vacation *VacationHandler
	Report   *ReportHandler
	Calendar *CalendarHandler
}

// NewHandler 创建 Handler 聚合；loc 为报表时区
func NewHandler(svc *service.Service, cookie *CookieOptions, loc *time.Location) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(svc.Auth, cookie),
		Vacation: NewVacationHandler(svc.Vacation),
		Report:   NewReportHandler(svc.Report, svc.Reminder, loc),
		Calendar: NewCalendarHandler(svc.Feed, svc.Calendar),
	}
}
