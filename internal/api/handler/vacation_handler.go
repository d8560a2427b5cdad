package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/dto"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/response"
)

// VacationHandler 假期申请 HTTP 处理器
type VacationHandler struct {
	vacationSvc service.VacationService
}

// NewVacationHandler 创建 VacationHandler
func NewVacationHandler(vacationSvc service.VacationService) *VacationHandler {
	return &VacationHandler{vacationSvc: vacationSvc}
}

// Create 提交假期申请
// POST /api/v1/vacations
func (h *VacationHandler) Create(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	var req dto.CreateVacationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.vacationSvc.Create(c.Request.Context(), &req, actor)
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.Created(c, result)
}

// ListMine 我的假期申请
// GET /api/v1/vacations/me
func (h *VacationHandler) ListMine(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	list, err := h.vacationSvc.ListMine(c.Request.Context(), actor)
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.OK(c, list)
}

// List 管理端分页列表
// GET /api/v1/vacations
func (h *VacationHandler) List(c *gin.Context) {
	var req dto.VacationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.vacationSvc.List(c.Request.Context(), &req)
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// Get 申请详情
// GET /api/v1/vacations/:id
func (h *VacationHandler) Get(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.vacationSvc.GetByID(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.OK(c, result)
}

// Update 修改申请
// PUT /api/v1/vacations/:id
func (h *VacationHandler) Update(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	var req dto.UpdateVacationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.vacationSvc.Update(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.OK(c, result)
}

// Review 管理员审批
// PUT /api/v1/vacations/:id/review
func (h *VacationHandler) Review(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	var req dto.ReviewVacationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.vacationSvc.Review(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.OK(c, result)
}

// Delete 删除申请（先删除关联日历事件）
// DELETE /api/v1/vacations/:id
func (h *VacationHandler) Delete(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	if err := h.vacationSvc.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		handleVacationError(c, err)
		return
	}

	response.OK(c, nil)
}

// Conflicts 单条申请的冲突列表
// GET /api/v1/vacations/:id/conflicts
func (h *VacationHandler) Conflicts(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	list, err := h.vacationSvc.Conflicts(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.OK(c, list)
}

// ConflictsOverview 冲突看板
// GET /api/v1/vacations/conflicts?company=
func (h *VacationHandler) ConflictsOverview(c *gin.Context) {
	result, err := h.vacationSvc.ConflictsOverview(c.Request.Context(), c.Query("company"))
	if err != nil {
		handleVacationError(c, err)
		return
	}

	response.OK(c, result)
}

// Sync 按需触发日历对账
// POST /api/v1/vacations/:id/sync
func (h *VacationHandler) Sync(c *gin.Context) {
	result, err := h.vacationSvc.Sync(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleVacationError(c, err)
		return
	}
	if !result.Success {
		// 权限类错误不应重试
		if result.Permission {
			response.ErrorWithDetails(c, http.StatusBadGateway, 12011, "日历权限不足", result.Error)
			return
		}
		response.BadGateway(c, 12010, "日历同步失败", result.Error)
		return
	}

	response.OK(c, result)
}

// handleVacationError 假期模块错误映射
func handleVacationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVacationNotFound):
		response.NotFound(c, 12001, "假期申请不存在")
	case errors.Is(err, service.ErrVacationDateInvalid):
		response.BadRequest(c, 12002, "日期格式无效或结束日期早于开始日期")
	case errors.Is(err, service.ErrVacationHalfDayRange):
		response.BadRequest(c, 12003, "半天请假只能用于单日申请")
	case errors.Is(err, service.ErrVacationForbidden):
		response.Forbidden(c, 12004, "无权操作该假期申请")
	case errors.Is(err, service.ErrVacationNotEditable):
		response.Forbidden(c, 12005, "已审批的申请只能由管理员修改")
	case errors.Is(err, service.ErrReviewStatusInvalid):
		response.BadRequest(c, 12006, "审批状态只能为 Approved 或 Denied")
	case errors.Is(err, service.ErrAlreadyReviewed):
		response.Conflict(c, 12007, "申请已是该审批状态")
	case errors.Is(err, service.ErrZeroDuration):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, 12008, "已审批申请的天数必须大于 0", err.Error())
	case errors.Is(err, service.ErrCalendarDisabled):
		response.Error(c, http.StatusServiceUnavailable, 12009, "未启用日历同步")
	case errors.Is(err, service.ErrCalendarRemoveFailed):
		response.BadGateway(c, 12010, "删除关联日历事件失败", err.Error())
	default:
		response.InternalError(c)
	}
}
