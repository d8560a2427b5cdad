package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/calendar"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/response"
)

// CalendarHandler 日历订阅与关联事件 HTTP 处理器
type CalendarHandler struct {
	feedSvc service.FeedService
	syncSvc service.CalendarSyncService // nil 表示未启用日历同步
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(feedSvc service.FeedService, syncSvc service.CalendarSyncService) *CalendarHandler {
	return &CalendarHandler{feedSvc: feedSvc, syncSvc: syncSvc}
}

// Feed 已批准假期的 ICS 订阅源
// GET /api/v1/calendar/feed.ics?company=
func (h *CalendarHandler) Feed(c *gin.Context) {
	ics, err := h.feedSvc.ApprovedFeed(c.Request.Context(), c.Query("company"))
	if err != nil {
		response.InternalError(c)
		return
	}

	c.Header("Content-Disposition", `inline; filename="vacations.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(ics))
}

// LinkedEvent 申请关联的外部日历事件
// GET /api/v1/vacations/:id/calendar-event
func (h *CalendarHandler) LinkedEvent(c *gin.Context) {
	if h.syncSvc == nil {
		handleVacationError(c, service.ErrCalendarDisabled)
		return
	}

	view, err := h.syncSvc.LinkedEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCalendarNotLinked):
			response.NotFound(c, 14001, "申请未关联日历事件")
		case calendar.IsNotFound(err):
			response.NotFound(c, 14002, "关联的日历事件已不存在")
		case calendar.IsPermission(err):
			response.BadGateway(c, 14003, "日历权限不足", err.Error())
		default:
			handleVacationError(c, err)
		}
		return
	}

	response.OK(c, view)
}
