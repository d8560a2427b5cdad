package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
)

// MaintenanceResult 批处理任务的逐条统计
type MaintenanceResult struct {
	Scanned int      `json:"scanned"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// OK 没有任何失败
func (r *MaintenanceResult) OK() bool { return r.Failed == 0 }

func (r *MaintenanceResult) fail(format string, args ...interface{}) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// MaintenanceService 历史数据修复与批量运维
type MaintenanceService interface {
	// Backfill 将历史状态/类型写法归一为规范值，并补齐缺失的天数
	Backfill(ctx context.Context) (*MaintenanceResult, error)
	// MigrateLinkage 一次性把历史别名字段并入 calendar_event_id 并清空别名
	MigrateLinkage(ctx context.Context) (*MaintenanceResult, error)
	// Reconcile 对单条（id 非空）或全部申请做日历对账
	Reconcile(ctx context.Context, id string) (*BulkSyncResult, error)
	// Cleanup 删除在 before 之前结束的指定状态申请，先删除关联日历事件
	Cleanup(ctx context.Context, before string, status model.VacationStatus) (*MaintenanceResult, error)
}

type maintenanceService struct {
	repo     *repository.Repository
	calendar CalendarSyncService
	logger   *zap.Logger
}

// NewMaintenanceService 创建 MaintenanceService 实例；calendar 可为 nil
func NewMaintenanceService(repo *repository.Repository, calendar CalendarSyncService, logger *zap.Logger) MaintenanceService {
	return &maintenanceService{repo: repo, calendar: calendar, logger: logger}
}

// ────────────────────── Backfill ──────────────────────

func (s *maintenanceService) Backfill(ctx context.Context) (*MaintenanceResult, error) {
	rows, err := s.repo.Vacation.ListRawLabels(ctx)
	if err != nil {
		s.logger.Error("读取原始申请数据失败", zap.Error(err))
		return nil, err
	}

	result := &MaintenanceResult{Scanned: len(rows)}

	// 相同目标值的记录合并为一次分块批量更新
	type patch struct {
		column string
		value  interface{}
	}
	groups := make(map[string][]string)
	patches := make(map[string]patch)
	add := func(column string, value interface{}, id string) {
		key := fmt.Sprintf("%s=%v", column, value)
		groups[key] = append(groups[key], id)
		patches[key] = patch{column: column, value: value}
	}

	for _, r := range rows {
		if status := string(model.NormalizeStatus(r.Status)); status != r.Status {
			add("status", status, r.ID)
		}
		if vType := string(model.NormalizeType(r.Type)); vType != r.Type {
			add("type", vType, r.ID)
		}
		if r.DurationDays == nil || *r.DurationDays <= 0 {
			days := CalculateDuration(DurationInput{
				IsHalfDay: r.IsHalfDay,
				StartDate: r.StartDate,
				EndDate:   r.EndDate,
			})
			if days > 0 {
				add("duration_days", days, r.ID)
			} else {
				result.fail("%s: 日期无效，无法推导天数 (%s ~ %s)", r.ID, r.StartDate, r.EndDate)
			}
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	touched := make(map[string]bool)
	for _, k := range keys {
		ids := groups[k]
		p := patches[k]
		n, err := s.repo.Vacation.BatchUpdate(ctx, ids, map[string]interface{}{p.column: p.value})
		for _, id := range ids[:n] {
			touched[id] = true
		}
		if err != nil {
			s.logger.Error("批量回填失败", zap.String("patch", k), zap.Int("committed", n), zap.Error(err))
			result.fail("%s: %v", k, err)
		}
	}
	result.Updated = len(touched)

	s.logger.Info("历史数据回填完成",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ────────────────────── MigrateLinkage ──────────────────────

func (s *maintenanceService) MigrateLinkage(ctx context.Context) (*MaintenanceResult, error) {
	list, err := s.repo.Vacation.ListWithLegacyLinkage(ctx)
	if err != nil {
		s.logger.Error("查询历史关联字段失败", zap.Error(err))
		return nil, err
	}

	result := &MaintenanceResult{Scanned: len(list)}
	clearOnly := make([]string, 0, len(list))

	for i := range list {
		v := &list[i]
		if v.CalendarEventID != nil && *v.CalendarEventID != "" {
			clearOnly = append(clearOnly, v.ID)
			continue
		}
		eventID := v.LinkedEventID()
		if eventID != "" && model.NormalizeStatus(string(v.Status)) != model.StatusApproved {
			// 非 Approved 不保留关联：删除外部事件并清空全部关联字段
			if s.calendar == nil {
				result.fail("%s: 非 Approved 申请存在历史日历事件但未启用日历同步", v.ID)
				continue
			}
			if res := s.calendar.RemoveEvent(ctx, v); !res.Success {
				result.fail("%s: %s", v.ID, res.Error)
				continue
			}
			result.Updated++
			continue
		}
		fields := map[string]interface{}{
			"google_calendar_event_id": nil,
			"google_event_id":          nil,
		}
		if eventID != "" {
			fields["calendar_event_id"] = eventID
		}
		if err := s.repo.Vacation.UpdateFields(ctx, v.ID, fields); err != nil {
			result.fail("%s: %v", v.ID, err)
			continue
		}
		result.Updated++
	}

	if len(clearOnly) > 0 {
		n, err := s.repo.Vacation.BatchUpdate(ctx, clearOnly, map[string]interface{}{
			"google_calendar_event_id": nil,
			"google_event_id":          nil,
		})
		result.Updated += n
		if err != nil {
			result.fail("清空历史别名: %v", err)
		}
	}

	s.logger.Info("日历关联字段迁移完成",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ────────────────────── Reconcile ──────────────────────

func (s *maintenanceService) Reconcile(ctx context.Context, id string) (*BulkSyncResult, error) {
	if s.calendar == nil {
		return nil, ErrCalendarDisabled
	}

	if id != "" {
		res := s.calendar.Reconcile(ctx, id)
		out := &BulkSyncResult{Total: 1, Results: []SyncResult{res}}
		if res.Success {
			out.Succeeded = 1
		} else {
			out.Failed = 1
		}
		return out, nil
	}

	list, err := s.repo.Vacation.ListAll(ctx)
	if err != nil {
		s.logger.Error("查询全部申请失败", zap.Error(err))
		return nil, err
	}
	res := s.calendar.ReconcileMany(ctx, list)
	return &res, nil
}

// ────────────────────── Cleanup ──────────────────────

func (s *maintenanceService) Cleanup(ctx context.Context, before string, status model.VacationStatus) (*MaintenanceResult, error) {
	if _, _, ok := dateRange(before, before); !ok {
		return nil, ErrVacationDateInvalid
	}

	list, err := s.repo.Vacation.ListEndedBefore(ctx, status, before)
	if err != nil {
		s.logger.Error("查询待清理申请失败", zap.Error(err))
		return nil, err
	}

	result := &MaintenanceResult{Scanned: len(list)}
	ids := make([]string, 0, len(list))
	for i := range list {
		v := &list[i]
		if v.LinkedEventID() != "" {
			if s.calendar == nil {
				result.fail("%s: 存在关联日历事件但未启用日历同步", v.ID)
				continue
			}
			if res := s.calendar.RemoveEvent(ctx, v); !res.Success {
				result.fail("%s: %s", v.ID, res.Error)
				continue
			}
		}
		ids = append(ids, v.ID)
	}

	n, err := s.repo.Vacation.BatchDelete(ctx, ids)
	result.Updated = n
	if err != nil {
		s.logger.Error("批量删除失败", zap.Int("deleted", n), zap.Int("total", len(ids)), zap.Error(err))
		result.Failed += len(ids) - n
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	s.logger.Info("历史申请清理完成",
		zap.String("before", before),
		zap.String("status", string(status)),
		zap.Int("deleted", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
