package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/calendar"
)

// 同步状态
const (
	SyncStateNoEvent     = "NoEvent"
	SyncStateEventLinked = "EventLinked"
	SyncStateEventStale  = "EventStale"
)

// 同步动作
const (
	SyncActionNone      = "none"
	SyncActionCreated   = "created"
	SyncActionAttached  = "attached"
	SyncActionUpdated   = "updated"
	SyncActionRecreated = "recreated"
	SyncActionDeleted   = "deleted"
)

// 半天请假的时间窗口（报表时区）
const (
	morningStartHour   = 9
	morningEndHour     = 13
	afternoonStartHour = 14
	afternoonEndHour   = 18
)

// SyncResult 单条申请的日历同步结果；正常运行时错误只通过 Error 字段返回
type SyncResult struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Action    string `json:"action"`
	State     string `json:"state"`
	EventID   string `json:"event_id,omitempty"`
	Error     string `json:"error,omitempty"`
	// Permission 权限类错误，调用方不应自动重试
	Permission bool `json:"permission,omitempty"`
}

// BulkSyncResult 批量同步汇总
type BulkSyncResult struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []SyncResult `json:"results"`
}

// ErrCalendarNotLinked 申请没有关联日历事件
var ErrCalendarNotLinked = errors.New("申请未关联日历事件")

// LinkedEventView 外部日历上的事件，日期已换算为包含的结束日
type LinkedEventView struct {
	RequestID string     `json:"request_id"`
	EventID   string     `json:"event_id"`
	Summary   string     `json:"summary"`
	AllDay    bool       `json:"all_day"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	// InSync 外部事件日期与申请一致
	InSync bool `json:"in_sync"`
}

// CalendarSyncService 申请与共享日历事件的对账
type CalendarSyncService interface {
	// Reconcile 按 ID 加载申请并对账
	Reconcile(ctx context.Context, id string) SyncResult
	// ReconcileRequest 对已加载的申请对账，成功后 v 的关联字段同步更新
	ReconcileRequest(ctx context.Context, v *model.VacationRequest) SyncResult
	// RemoveEvent 删除申请关联的事件并清除关联，用于删除申请之前
	RemoveEvent(ctx context.Context, v *model.VacationRequest) SyncResult
	// ReconcileMany 依次对账，两次外部调用之间固定间隔；单条失败不影响后续
	ReconcileMany(ctx context.Context, requests []model.VacationRequest) BulkSyncResult
	// LinkedEvent 读取申请关联的外部事件
	LinkedEvent(ctx context.Context, id string) (*LinkedEventView, error)
}

type calendarSyncService struct {
	repo   *repository.Repository
	client calendar.Client
	loc    *time.Location
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewCalendarSyncService 创建日历同步服务；client 由调用方构造并注入
func NewCalendarSyncService(
	repo *repository.Repository,
	client calendar.Client,
	loc *time.Location,
	delay time.Duration,
	logger *zap.Logger,
) CalendarSyncService {
	if loc == nil {
		loc = time.UTC
	}
	return &calendarSyncService{
		repo:   repo,
		client: client,
		loc:    loc,
		delay:  delay,
		logger: logger,
		now:    time.Now,
	}
}

// ────────────────────── Reconcile ──────────────────────

func (s *calendarSyncService) Reconcile(ctx context.Context, id string) SyncResult {
	v, err := s.repo.Vacation.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SyncResult{RequestID: id, Action: SyncActionNone, Error: ErrVacationNotFound.Error()}
		}
		s.logger.Error("查询假期申请失败", zap.String("id", id), zap.Error(err))
		return SyncResult{RequestID: id, Action: SyncActionNone, Error: err.Error()}
	}
	return s.ReconcileRequest(ctx, v)
}

func (s *calendarSyncService) ReconcileRequest(ctx context.Context, v *model.VacationRequest) SyncResult {
	status := model.NormalizeStatus(string(v.Status))
	linked := v.LinkedEventID()

	// 1. 非 Approved：删除已关联事件
	if status != model.StatusApproved {
		if linked == "" {
			return SyncResult{RequestID: v.ID, Success: true, Action: SyncActionNone, State: SyncStateNoEvent}
		}
		return s.RemoveEvent(ctx, v)
	}

	// 2. Approved 且无关联：创建
	if linked == "" {
		return s.create(ctx, v, SyncActionCreated, true)
	}

	ev, err := s.buildEvent(v)
	if err != nil {
		return s.fail(ctx, v, SyncStateEventLinked, err)
	}

	// 3. Approved 且日期变化：更新，失败则新建
	if datesChanged(v) {
		return s.update(ctx, v, linked, ev)
	}

	// 4. Approved 且日期未变：探测事件是否仍存在，并核对事件时段
	got, err := s.client.Get(ctx, linked)
	switch {
	case err == nil:
		if !eventMatches(got, ev) {
			s.logger.Info("日历事件与申请不一致，更新事件",
				zap.String("id", v.ID),
				zap.String("event_id", linked),
			)
			return s.update(ctx, v, linked, ev)
		}
		if v.CalendarEventID == nil || *v.CalendarEventID != linked || datesUnsynced(v) {
			// 关联仅存在于历史别名中或缺少同步日期，归并到规范字段
			if err := s.link(ctx, v, linked); err != nil {
				return s.fail(ctx, v, SyncStateEventLinked, err)
			}
		}
		return SyncResult{RequestID: v.ID, Success: true, Action: SyncActionNone, State: SyncStateEventLinked, EventID: linked}
	case calendar.IsNotFound(err):
		s.logger.Info("日历事件已失效，清除关联后重建", zap.String("id", v.ID), zap.String("stale_event_id", linked))
		if perr := s.clearLinkage(ctx, v, nil); perr != nil {
			return s.fail(ctx, v, SyncStateEventStale, perr)
		}
		return s.create(ctx, v, SyncActionRecreated, true)
	default:
		// 探测失败时仍尝试创建；create 先按 UID 查找，事件仍在时直接关联
		s.logger.Warn("探测日历事件失败，继续尝试创建",
			zap.String("id", v.ID),
			zap.String("event_id", linked),
			zap.Error(err),
		)
		return s.create(ctx, v, SyncActionRecreated, true)
	}
}

// update 更新已关联事件；失败时删除旧事件并新建
func (s *calendarSyncService) update(ctx context.Context, v *model.VacationRequest, linked string, ev *calendar.Event) SyncResult {
	if err := s.client.Update(ctx, linked, ev); err != nil {
		s.logger.Warn("更新日历事件失败，改为新建",
			zap.String("id", v.ID),
			zap.String("event_id", linked),
			zap.Error(err),
		)
		if !calendar.IsNotFound(err) {
			if derr := s.client.Delete(ctx, linked); derr != nil && !calendar.IsNotFound(derr) {
				s.logger.Warn("删除旧日历事件失败", zap.String("event_id", linked), zap.Error(derr))
			}
		}
		if perr := s.clearLinkage(ctx, v, nil); perr != nil {
			return s.fail(ctx, v, SyncStateEventStale, perr)
		}
		return s.create(ctx, v, SyncActionRecreated, false)
	}
	if err := s.link(ctx, v, linked); err != nil {
		return s.fail(ctx, v, SyncStateEventLinked, err)
	}
	s.logger.Info("日历事件已更新", zap.String("id", v.ID), zap.String("event_id", linked))
	return SyncResult{RequestID: v.ID, Success: true, Action: SyncActionUpdated, State: SyncStateEventLinked, EventID: linked}
}

// ────────────────────── RemoveEvent ──────────────────────

func (s *calendarSyncService) RemoveEvent(ctx context.Context, v *model.VacationRequest) SyncResult {
	linked := v.LinkedEventID()
	if linked == "" {
		return SyncResult{RequestID: v.ID, Success: true, Action: SyncActionNone, State: SyncStateNoEvent}
	}

	if err := s.client.Delete(ctx, linked); err != nil && !calendar.IsNotFound(err) {
		return s.fail(ctx, v, SyncStateEventLinked, err)
	}
	if err := s.clearLinkage(ctx, v, nil); err != nil {
		return s.fail(ctx, v, SyncStateEventStale, err)
	}

	s.logger.Info("日历事件已删除", zap.String("id", v.ID), zap.String("event_id", linked))
	return SyncResult{RequestID: v.ID, Success: true, Action: SyncActionDeleted, State: SyncStateNoEvent}
}

// ────────────────────── ReconcileMany ──────────────────────

func (s *calendarSyncService) ReconcileMany(ctx context.Context, requests []model.VacationRequest) BulkSyncResult {
	out := BulkSyncResult{Total: len(requests), Results: make([]SyncResult, 0, len(requests))}
	for i := range requests {
		if i > 0 && s.delay > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(s.delay):
			}
		}

		res := s.ReconcileRequest(ctx, &requests[i])
		out.Results = append(out.Results, res)
		if res.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}

	s.logger.Info("批量日历同步完成",
		zap.Int("total", out.Total),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
	)
	return out
}

// ────────────────────── LinkedEvent ──────────────────────

func (s *calendarSyncService) LinkedEvent(ctx context.Context, id string) (*LinkedEventView, error) {
	v, err := s.repo.Vacation.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVacationNotFound
		}
		return nil, err
	}
	linked := v.LinkedEventID()
	if linked == "" {
		return nil, ErrCalendarNotLinked
	}

	ev, err := s.client.Get(ctx, linked)
	if err != nil {
		return nil, err
	}

	view := &LinkedEventView{RequestID: v.ID, EventID: ev.ID, Summary: ev.Summary, AllDay: ev.AllDay}
	if ev.AllDay {
		end, err := calendar.InclusiveEndDate(ev.EndDate)
		if err != nil {
			return nil, err
		}
		view.StartDate, view.EndDate = ev.StartDate, end
	} else {
		start, end := ev.Start.In(s.loc), ev.End.In(s.loc)
		view.Start, view.End = &start, &end
		view.StartDate, view.EndDate = start.Format(dateLayout), end.Format(dateLayout)
	}
	view.InSync = view.StartDate == v.StartDate && view.EndDate == v.EndDate
	return view, nil
}

// ── 内部实现 ──

// create 创建事件；lookup 为 true 时先按幂等 UID 查找已有事件
func (s *calendarSyncService) create(ctx context.Context, v *model.VacationRequest, action string, lookup bool) SyncResult {
	ev, err := s.buildEvent(v)
	if err != nil {
		return s.fail(ctx, v, SyncStateNoEvent, err)
	}

	if lookup {
		found, err := s.client.FindByUID(ctx, ev.UID)
		switch {
		case err == nil:
			if !eventMatches(found, ev) {
				if uerr := s.client.Update(ctx, found.ID, ev); uerr != nil {
					return s.fail(ctx, v, SyncStateNoEvent, uerr)
				}
			}
			if perr := s.link(ctx, v, found.ID); perr != nil {
				return s.fail(ctx, v, SyncStateEventLinked, perr)
			}
			s.logger.Info("按 UID 关联已有日历事件", zap.String("id", v.ID), zap.String("event_id", found.ID))
			return SyncResult{RequestID: v.ID, Success: true, Action: SyncActionAttached, State: SyncStateEventLinked, EventID: found.ID}
		case calendar.IsNotFound(err):
		default:
			s.logger.Warn("按 UID 查找日历事件失败，继续创建", zap.String("uid", ev.UID), zap.Error(err))
		}
	}

	eventID, err := s.client.Create(ctx, ev)
	if err != nil {
		return s.fail(ctx, v, SyncStateNoEvent, err)
	}
	if err := s.link(ctx, v, eventID); err != nil {
		// 事件已创建但关联未保存；下次对账会按 UID 找回
		res := s.fail(ctx, v, SyncStateNoEvent, err)
		res.EventID = eventID
		return res
	}

	s.logger.Info("日历事件已创建", zap.String("id", v.ID), zap.String("event_id", eventID))
	return SyncResult{RequestID: v.ID, Success: true, Action: action, State: SyncStateEventLinked, EventID: eventID}
}

// link 写入规范关联字段并清空历史别名
func (s *calendarSyncService) link(ctx context.Context, v *model.VacationRequest, eventID string) error {
	now := s.now()
	start, end := v.StartDate, v.EndDate
	fields := map[string]interface{}{
		"calendar_event_id":        eventID,
		"google_calendar_event_id": nil,
		"google_event_id":          nil,
		"synced_start_date":        start,
		"synced_end_date":          end,
		"calendar_synced_at":       now,
		"calendar_sync_error":      nil,
	}
	if err := s.repo.Vacation.UpdateFields(ctx, v.ID, fields); err != nil {
		return fmt.Errorf("保存日历关联失败: %w", err)
	}

	v.CalendarEventID = &eventID
	v.LegacyGoogleCalendarEventID = nil
	v.LegacyGoogleEventID = nil
	v.SyncedStartDate = &start
	v.SyncedEndDate = &end
	v.CalendarSyncedAt = &now
	v.CalendarSyncError = nil
	return nil
}

// clearLinkage 清除全部关联字段；syncErr 非空时一并记录
func (s *calendarSyncService) clearLinkage(ctx context.Context, v *model.VacationRequest, syncErr *string) error {
	now := s.now()
	fields := map[string]interface{}{
		"calendar_event_id":        nil,
		"google_calendar_event_id": nil,
		"google_event_id":          nil,
		"synced_start_date":        nil,
		"synced_end_date":          nil,
		"calendar_synced_at":       now,
		"calendar_sync_error":      syncErr,
	}
	if err := s.repo.Vacation.UpdateFields(ctx, v.ID, fields); err != nil {
		return fmt.Errorf("清除日历关联失败: %w", err)
	}

	v.CalendarEventID = nil
	v.LegacyGoogleCalendarEventID = nil
	v.LegacyGoogleEventID = nil
	v.SyncedStartDate = nil
	v.SyncedEndDate = nil
	v.CalendarSyncedAt = &now
	v.CalendarSyncError = syncErr
	return nil
}

// fail 记录同步错误并返回失败结果，不向上抛出
func (s *calendarSyncService) fail(ctx context.Context, v *model.VacationRequest, state string, err error) SyncResult {
	msg := err.Error()
	res := SyncResult{RequestID: v.ID, Action: SyncActionNone, State: state, Error: msg}

	var pe *calendar.PermissionError
	if errors.As(err, &pe) {
		res.Permission = true
		s.logger.Error("日历权限错误",
			zap.String("id", v.ID),
			zap.String("calendar_id", pe.CalendarID),
			zap.String("expected_identity", pe.ExpectedIdentity),
			zap.String("actual_identity", pe.ActualIdentity),
			zap.Error(pe.Err),
		)
	} else {
		s.logger.Error("日历同步失败", zap.String("id", v.ID), zap.String("state", state), zap.Error(err))
	}

	now := s.now()
	fields := map[string]interface{}{
		"calendar_synced_at":  now,
		"calendar_sync_error": msg,
	}
	if perr := s.repo.Vacation.UpdateFields(ctx, v.ID, fields); perr != nil {
		s.logger.Error("记录同步错误失败", zap.String("id", v.ID), zap.Error(perr))
	} else {
		v.CalendarSyncedAt = &now
		v.CalendarSyncError = &msg
	}
	return res
}

// buildEvent 由申请构造外部日历事件
func (s *calendarSyncService) buildEvent(v *model.VacationRequest) (*calendar.Event, error) {
	start, end, ok := dateRange(v.StartDate, v.EndDate)
	if !ok {
		return nil, fmt.Errorf("申请 %s 日期无效: %s ~ %s", v.ID, v.StartDate, v.EndDate)
	}

	vType := model.NormalizeType(string(v.Type))
	ev := &calendar.Event{
		UID:           v.CalendarUID(),
		Summary:       fmt.Sprintf("%s - %s", v.UserName, vType),
		Description:   eventDescription(v, vType),
		AttendeeEmail: v.UserEmail,
	}

	if v.IsHalfDay && start == end {
		day, _ := time.Parse(dateLayout, start)
		from, to := morningStartHour, morningEndHour
		if v.HalfDayType != nil && *v.HalfDayType == model.HalfDayAfternoon {
			from, to = afternoonStartHour, afternoonEndHour
		}
		// 按墙上时间构造，夏令时切换日不偏移
		y, m, d := day.Date()
		ev.Start = time.Date(y, m, d, from, 0, 0, 0, s.loc)
		ev.End = time.Date(y, m, d, to, 0, 0, 0, s.loc)
		ev.Summary += " (" + halfDayLabel(v.HalfDayType) + ")"
		return ev, nil
	}

	exclusive, err := calendar.ExclusiveEndDate(end)
	if err != nil {
		return nil, err
	}
	ev.AllDay = true
	ev.StartDate = start
	ev.EndDate = exclusive
	return ev, nil
}

func eventDescription(v *model.VacationRequest, vType model.VacationType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Employee: %s <%s>\n", v.UserName, v.UserEmail)
	fmt.Fprintf(&b, "Company: %s\n", v.Company)
	fmt.Fprintf(&b, "Type: %s\n", vType)
	fmt.Fprintf(&b, "Dates: %s to %s\n", v.StartDate, v.EndDate)
	if v.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", v.Reason)
	}
	fmt.Fprintf(&b, "Request ID: %s", v.ID)
	return b.String()
}

func halfDayLabel(h *model.HalfDayType) string {
	if h != nil && *h == model.HalfDayAfternoon {
		return "Afternoon"
	}
	return "Morning"
}

// datesChanged 当前日期与上次同步到日历的日期不一致
// 没有同步日期的历史记录返回 false，由存在性探测核对事件时段
func datesChanged(v *model.VacationRequest) bool {
	if datesUnsynced(v) {
		return false
	}
	return *v.SyncedStartDate != v.StartDate || *v.SyncedEndDate != v.EndDate
}

func datesUnsynced(v *model.VacationRequest) bool {
	return v.SyncedStartDate == nil || v.SyncedEndDate == nil
}

// eventMatches 外部事件与期望事件的时段一致：全天事件比较日期，半天事件比较起止时刻
func eventMatches(got, want *calendar.Event) bool {
	if got.AllDay != want.AllDay {
		return false
	}
	if want.AllDay {
		return got.StartDate == want.StartDate && got.EndDate == want.EndDate
	}
	return got.Start.Equal(want.Start) && got.End.Equal(want.End)
}
