package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/dto"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
)

// ── 假期申请模块业务错误 ──

var (
	ErrVacationNotFound     = errors.New("假期申请不存在")
	ErrVacationDateInvalid  = errors.New("日期格式无效或结束日期早于开始日期")
	ErrVacationHalfDayRange = errors.New("半天请假只能用于单日申请")
	ErrVacationForbidden    = errors.New("无权操作该假期申请")
	ErrVacationNotEditable  = errors.New("已审批的申请只能由管理员修改")
	ErrReviewStatusInvalid  = errors.New("审批状态只能为 Approved 或 Denied")
	ErrAlreadyReviewed      = errors.New("申请已是该审批状态")
	ErrCalendarDisabled     = errors.New("未启用日历同步")
	ErrCalendarRemoveFailed = errors.New("删除关联日历事件失败")
)

// Actor 当前操作人
type Actor struct {
	UserID  string
	Name    string
	Email   string
	Company string
	Role    string
}

// IsAdmin 是否为管理员
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// VacationService 假期申请业务接口
type VacationService interface {
	Create(ctx context.Context, req *dto.CreateVacationRequest, actor Actor) (*dto.VacationResponse, error)
	GetByID(ctx context.Context, id string, actor Actor) (*dto.VacationResponse, error)
	ListMine(ctx context.Context, actor Actor) ([]dto.VacationResponse, error)
	List(ctx context.Context, req *dto.VacationListRequest) ([]dto.VacationResponse, int64, error)
	Update(ctx context.Context, id string, req *dto.UpdateVacationRequest, actor Actor) (*dto.VacationResponse, error)
	Review(ctx context.Context, id string, req *dto.ReviewVacationRequest, actor Actor) (*dto.VacationResponse, error)
	Delete(ctx context.Context, id string, actor Actor) error
	Conflicts(ctx context.Context, id string, actor Actor) ([]ConflictEvent, error)
	// ConflictsOverview 管理看板：company 为空时覆盖全部公司
	ConflictsOverview(ctx context.Context, company string) (map[string][]ConflictEvent, error)
	Sync(ctx context.Context, id string) (*SyncResult, error)
}

type vacationService struct {
	repo     *repository.Repository
	calendar CalendarSyncService
	notifier *Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewVacationService 创建 VacationService 实例；calendar 为 nil 表示未启用日历同步
func NewVacationService(
	repo *repository.Repository,
	calendar CalendarSyncService,
	notifier *Notifier,
	logger *zap.Logger,
) VacationService {
	return &vacationService{
		repo:     repo,
		calendar: calendar,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// ────────────────────── Create ──────────────────────

func (s *vacationService) Create(ctx context.Context, req *dto.CreateVacationRequest, actor Actor) (*dto.VacationResponse, error) {
	start, end, ok := dateRange(req.StartDate, req.EndDate)
	if !ok {
		return nil, ErrVacationDateInvalid
	}
	if req.IsHalfDay && start != end {
		return nil, ErrVacationHalfDayRange
	}

	company := strings.TrimSpace(req.Company)
	if company == "" {
		company = actor.Company
	}

	v := &model.VacationRequest{
		UserName:  actor.Name,
		UserEmail: actor.Email,
		Company:   company,
		StartDate: start,
		EndDate:   end,
		Type:      model.NormalizeType(req.Type),
		Status:    model.StatusPending,
		IsHalfDay: req.IsHalfDay,
		Reason:    strings.TrimSpace(req.Reason),
	}
	if actor.UserID != "" {
		uid := actor.UserID
		v.UserID = &uid
		v.CreatedBy = &uid
		v.UpdatedBy = &uid
	}
	if req.IsHalfDay {
		v.HalfDayType = model.ParseHalfDayType(req.HalfDayType)
		if v.HalfDayType == nil {
			h := model.HalfDayMorning
			v.HalfDayType = &h
		}
	}
	days := CalculateDuration(DurationInput{
		DurationDays: req.DurationDays,
		IsHalfDay:    req.IsHalfDay,
		StartDate:    start,
		EndDate:      end,
	})
	v.DurationDays = &days

	if err := s.repo.Vacation.Create(ctx, v); err != nil {
		s.logger.Error("创建假期申请失败", zap.String("email", actor.Email), zap.Error(err))
		return nil, err
	}

	s.logger.Info("假期申请已提交",
		zap.String("id", v.ID),
		zap.String("email", v.UserEmail),
		zap.String("start", v.StartDate),
		zap.String("end", v.EndDate),
	)

	if s.notifier != nil {
		var conflicts []ConflictEvent
		if candidates, err := s.repo.Vacation.ListByCompany(ctx, v.Company); err == nil {
			conflicts = FindConflicts(*v, candidates)
		}
		s.notifier.NewRequest(ctx, v, len(conflicts))
	}

	return toVacationResponse(v), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *vacationService) GetByID(ctx context.Context, id string, actor Actor) (*dto.VacationResponse, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !isOwner(v, actor) {
		return nil, ErrVacationForbidden
	}
	return toVacationResponse(v), nil
}

// ────────────────────── List ──────────────────────

func (s *vacationService) ListMine(ctx context.Context, actor Actor) ([]dto.VacationResponse, error) {
	list, err := s.repo.Vacation.ListByUserEmail(ctx, actor.Email)
	if err != nil {
		s.logger.Error("查询个人假期申请失败", zap.String("email", actor.Email), zap.Error(err))
		return nil, err
	}
	return toVacationResponses(list), nil
}

func (s *vacationService) List(ctx context.Context, req *dto.VacationListRequest) ([]dto.VacationResponse, int64, error) {
	filter := repository.VacationFilter{
		Company:   req.Company,
		UserEmail: req.Email,
		From:      req.From,
		To:        req.To,
	}
	if req.Status != "" {
		filter.Status = model.NormalizeStatus(req.Status)
	}

	list, total, err := s.repo.Vacation.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出假期申请失败", zap.Error(err))
		return nil, 0, err
	}
	return toVacationResponses(list), total, nil
}

// ────────────────────── Update ──────────────────────

func (s *vacationService) Update(ctx context.Context, id string, req *dto.UpdateVacationRequest, actor Actor) (*dto.VacationResponse, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if !isOwner(v, actor) {
			return nil, ErrVacationForbidden
		}
		if v.Status != model.StatusPending {
			return nil, ErrVacationNotEditable
		}
	}

	startRaw, endRaw := v.StartDate, v.EndDate
	if req.StartDate != nil {
		startRaw = *req.StartDate
	}
	if req.EndDate != nil {
		endRaw = *req.EndDate
	}
	start, end, ok := dateRange(startRaw, endRaw)
	if !ok {
		return nil, ErrVacationDateInvalid
	}

	isHalfDay := v.IsHalfDay
	if req.IsHalfDay != nil {
		isHalfDay = *req.IsHalfDay
	}
	if isHalfDay && start != end {
		return nil, ErrVacationHalfDayRange
	}

	halfDayType := v.HalfDayType
	if req.HalfDayType != nil {
		halfDayType = model.ParseHalfDayType(*req.HalfDayType)
	}
	if !isHalfDay {
		halfDayType = nil
	} else if halfDayType == nil {
		h := model.HalfDayMorning
		halfDayType = &h
	}

	vType := v.Type
	if req.Type != nil {
		vType = model.NormalizeType(*req.Type)
	}
	reason := v.Reason
	if req.Reason != nil {
		reason = strings.TrimSpace(*req.Reason)
	}

	// 日期或半天变化时重新推导天数，显式传入优先
	days := CalculateDuration(DurationInput{
		DurationDays: req.DurationDays,
		IsHalfDay:    isHalfDay,
		StartDate:    start,
		EndDate:      end,
	})

	fields := map[string]interface{}{
		"start_date":    start,
		"end_date":      end,
		"type":          vType,
		"is_half_day":   isHalfDay,
		"half_day_type": halfDayType,
		"duration_days": days,
		"reason":        reason,
		"updated_at":    s.now(),
	}
	if actor.UserID != "" {
		fields["updated_by"] = actor.UserID
	}
	if err := s.repo.Vacation.UpdateFields(ctx, id, fields); err != nil {
		s.logger.Error("更新假期申请失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	v.StartDate, v.EndDate = start, end
	v.Type = vType
	v.IsHalfDay, v.HalfDayType = isHalfDay, halfDayType
	v.DurationDays = &days
	v.Reason = reason

	resp := toVacationResponse(v)
	if s.calendar != nil && v.Status == model.StatusApproved {
		res := s.calendar.ReconcileRequest(ctx, v)
		resp = toVacationResponse(v)
		resp.CalendarSync = toSyncInfo(res)
	}
	return resp, nil
}

// ────────────────────── Review ──────────────────────

func (s *vacationService) Review(ctx context.Context, id string, req *dto.ReviewVacationRequest, actor Actor) (*dto.VacationResponse, error) {
	target := model.NormalizeStatus(req.Status)
	if target == model.StatusPending {
		return nil, ErrReviewStatusInvalid
	}

	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status == target {
		return nil, ErrAlreadyReviewed
	}

	previous := v.Status
	v.Status = target
	if target == model.StatusApproved {
		if err := ValidateReviewedDuration(v); err != nil {
			s.logger.Error("审批数据完整性错误", zap.String("id", id), zap.Error(err))
			v.Status = previous
			return nil, err
		}
	}

	now := s.now()
	fields := map[string]interface{}{
		"status":     target,
		"updated_at": now,
	}
	if actor.UserID != "" {
		fields["updated_by"] = actor.UserID
	}
	if v.DurationDays == nil {
		days := CalculateDuration(DurationInputOf(v))
		fields["duration_days"] = days
		v.DurationDays = &days
	}
	// 审批信息只在首次离开 Pending 时写入
	if v.ReviewedAt == nil {
		reviewer, email := actor.Name, actor.Email
		fields["reviewed_by"] = reviewer
		fields["reviewer_email"] = email
		fields["reviewed_at"] = now
		v.ReviewedBy, v.ReviewerEmail, v.ReviewedAt = &reviewer, &email, &now
		if c := strings.TrimSpace(req.Comment); c != "" {
			fields["admin_comment"] = c
			v.AdminComment = &c
		}
	}

	if err := s.repo.Vacation.UpdateFields(ctx, id, fields); err != nil {
		s.logger.Error("保存审批结果失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("假期申请已审批",
		zap.String("id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
		zap.String("reviewer", actor.Email),
	)

	var syncInfo *dto.CalendarSyncInfo
	if s.calendar != nil {
		syncInfo = toSyncInfo(s.calendar.ReconcileRequest(ctx, v))
	}

	if s.notifier != nil {
		s.notifier.Reviewed(ctx, v)
	}

	resp := toVacationResponse(v)
	resp.CalendarSync = syncInfo
	return resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *vacationService) Delete(ctx context.Context, id string, actor Actor) error {
	v, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		if !isOwner(v, actor) {
			return ErrVacationForbidden
		}
		if v.Status != model.StatusPending {
			return ErrVacationNotEditable
		}
	}

	if v.LinkedEventID() != "" {
		if s.calendar == nil {
			s.logger.Warn("日历同步未启用，删除申请时保留外部事件",
				zap.String("id", id), zap.String("event_id", v.LinkedEventID()))
		} else if res := s.calendar.RemoveEvent(ctx, v); !res.Success {
			return ErrCalendarRemoveFailed
		}
	}

	if err := s.repo.Vacation.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVacationNotFound
		}
		s.logger.Error("删除假期申请失败", zap.String("id", id), zap.Error(err))
		return err
	}

	s.logger.Info("假期申请已删除", zap.String("id", id), zap.String("operator", actor.Email))
	return nil
}

// ────────────────────── Conflicts ──────────────────────

func (s *vacationService) Conflicts(ctx context.Context, id string, actor Actor) ([]ConflictEvent, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !isOwner(v, actor) {
		return nil, ErrVacationForbidden
	}

	candidates, err := s.repo.Vacation.ListByCompany(ctx, v.Company)
	if err != nil {
		s.logger.Error("查询同公司申请失败", zap.String("company", v.Company), zap.Error(err))
		return nil, err
	}
	conflicts := FindConflicts(*v, candidates)
	if conflicts == nil {
		conflicts = []ConflictEvent{}
	}
	return conflicts, nil
}

func (s *vacationService) ConflictsOverview(ctx context.Context, company string) (map[string][]ConflictEvent, error) {
	var (
		list []model.VacationRequest
		err  error
	)
	if company != "" {
		list, err = s.repo.Vacation.ListByCompany(ctx, company)
	} else {
		list, err = s.repo.Vacation.ListAll(ctx)
	}
	if err != nil {
		s.logger.Error("查询申请失败", zap.Error(err))
		return nil, err
	}
	return FindAllConflicts(list), nil
}

// ────────────────────── Sync ──────────────────────

func (s *vacationService) Sync(ctx context.Context, id string) (*SyncResult, error) {
	if s.calendar == nil {
		return nil, ErrCalendarDisabled
	}
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	res := s.calendar.ReconcileRequest(ctx, v)
	return &res, nil
}

// ── 辅助函数 ──

func (s *vacationService) load(ctx context.Context, id string) (*model.VacationRequest, error) {
	v, err := s.repo.Vacation.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVacationNotFound
		}
		s.logger.Error("查询假期申请失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return v, nil
}

func isOwner(v *model.VacationRequest, actor Actor) bool {
	if v.UserID != nil && actor.UserID != "" && *v.UserID == actor.UserID {
		return true
	}
	return actor.Email != "" && strings.EqualFold(v.UserEmail, actor.Email)
}

func toVacationResponse(v *model.VacationRequest) *dto.VacationResponse {
	resp := &dto.VacationResponse{
		ID:           v.ID,
		UserName:     v.UserName,
		UserEmail:    v.UserEmail,
		Company:      v.Company,
		StartDate:    v.StartDate,
		EndDate:      v.EndDate,
		Type:         string(v.Type),
		Status:       string(v.Status),
		IsHalfDay:    v.IsHalfDay,
		DurationDays: CalculateDuration(DurationInputOf(v)),
		Reason:       v.Reason,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
	if v.HalfDayType != nil {
		resp.HalfDayType = string(*v.HalfDayType)
	}
	resp.CalendarEventID = deref(v.CalendarEventID)
	resp.CalendarSyncError = deref(v.CalendarSyncError)
	resp.ReviewedBy = deref(v.ReviewedBy)
	resp.ReviewerEmail = deref(v.ReviewerEmail)
	resp.AdminComment = deref(v.AdminComment)
	if v.CalendarSyncedAt != nil {
		resp.CalendarSyncedAt = v.CalendarSyncedAt.Format(time.RFC3339)
	}
	if v.ReviewedAt != nil {
		resp.ReviewedAt = v.ReviewedAt.Format(time.RFC3339)
	}
	return resp
}

func toVacationResponses(list []model.VacationRequest) []dto.VacationResponse {
	out := make([]dto.VacationResponse, 0, len(list))
	for i := range list {
		out = append(out, *toVacationResponse(&list[i]))
	}
	return out
}

func toSyncInfo(r SyncResult) *dto.CalendarSyncInfo {
	return &dto.CalendarSyncInfo{
		Success: r.Success,
		Action:  r.Action,
		State:   r.State,
		EventID: r.EventID,
		Error:   r.Error,
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
