package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/dto"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/response"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ReportHandler 月度报表与提醒 HTTP 处理器
type ReportHandler struct {
	reportSvc   service.ReportService
	reminderSvc service.ReminderService
	loc         *time.Location
	now         func() time.Time
}

// NewReportHandler 创建 ReportHandler；loc 用于推算默认月份
func NewReportHandler(reportSvc service.ReportService, reminderSvc service.ReminderService, loc *time.Location) *ReportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportHandler{reportSvc: reportSvc, reminderSvc: reminderSvc, loc: loc, now: time.Now}
}

// Monthly 月度汇总（JSON）
// GET /api/v1/reports/monthly?year=&month=
func (h *ReportHandler) Monthly(c *gin.Context) {
	year, month, ok := h.bindMonth(c)
	if !ok {
		return
	}

	report, err := h.reportSvc.Monthly(c.Request.Context(), year, month)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.OK(c, report)
}

// MonthlyCSV 导出 CSV
// GET /api/v1/reports/monthly.csv
func (h *ReportHandler) MonthlyCSV(c *gin.Context) {
	year, month, ok := h.bindMonth(c)
	if !ok {
		return
	}

	data, filename, err := h.reportSvc.MonthlyCSV(c.Request.Context(), year, month)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.Attachment(c, filename, contentTypeCSV, data)
}

// MonthlyXLSX 导出 Excel
// GET /api/v1/reports/monthly.xlsx
func (h *ReportHandler) MonthlyXLSX(c *gin.Context) {
	year, month, ok := h.bindMonth(c)
	if !ok {
		return
	}

	data, filename, err := h.reportSvc.MonthlyXLSX(c.Request.Context(), year, month)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.Attachment(c, filename, contentTypeXLSX, data)
}

// SendMonthly 手动发送月报
// POST /api/v1/reports/monthly/send
func (h *ReportHandler) SendMonthly(c *gin.Context) {
	var req dto.SendMonthlyReportRequest
	// 允许空 body，默认发送上月
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	year, month := h.resolveMonth(req.Year, req.Month)

	result, err := h.reportSvc.SendMonthly(c.Request.Context(), year, month, req.Force)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.OK(c, result)
}

// SendReminders 手动触发待审批提醒
// POST /api/v1/reminders/send
func (h *ReportHandler) SendReminders(c *gin.Context) {
	result, err := h.reminderSvc.SendPendingReminders(c.Request.Context())
	if err != nil {
		handleReportError(c, err)
		return
	}
	if result.Error != "" {
		response.BadGateway(c, 13005, "邮件发送失败", result.Error)
		return
	}

	response.OK(c, result)
}

func (h *ReportHandler) bindMonth(c *gin.Context) (int, int, bool) {
	var q dto.MonthlyReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return 0, 0, false
	}
	year, month := h.resolveMonth(q.Year, q.Month)
	return year, month, true
}

// resolveMonth 未指定年月时取上一个自然月
func (h *ReportHandler) resolveMonth(year, month int) (int, int) {
	if year == 0 || month == 0 {
		return service.PreviousMonth(h.now(), h.loc)
	}
	return year, month
}

// handleReportError 报表模块错误映射
func handleReportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidMonth):
		response.BadRequest(c, 13001, "年份或月份无效")
	case errors.Is(err, service.ErrZeroDuration):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, 13002, "已审批申请的天数必须大于 0", err.Error())
	case errors.Is(err, service.ErrTotalsMismatch):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, 13003, "员工合计与总天数不一致", err.Error())
	case errors.Is(err, service.ErrReportAlreadySent):
		response.Conflict(c, 13004, "该月报表已发送")
	case errors.Is(err, service.ErrMailSendFailed):
		response.BadGateway(c, 13005, "邮件发送失败", err.Error())
	case errors.Is(err, service.ErrNoRecipients):
		response.BadRequest(c, 13006, "未配置报表收件人")
	default:
		response.InternalError(c)
	}
}
