package service

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/calendar"
)

// ── ICS 订阅源 ──────────────────────────────────────────────
//
// 已批准的申请以全天 VEVENT 输出，UID 与共享日历事件一致（vacation-{id}），
// DTEND 为不包含的结束日。半天申请输出带时间的事件。
// ─────────────────────────────────────────────────────────────

const (
	icsProductID    = "-//Stars//Vacation Management//EN"
	icsCalendarName = "Stars vacations"
	feedLookback    = 90 // 天
	feedLookahead   = 365
)

// FeedService ICS 订阅源
type FeedService interface {
	// ApprovedFeed 生成已批准假期的 ICS；company 为空时包含全部公司
	ApprovedFeed(ctx context.Context, company string) (string, error)
}

type feedService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewFeedService 创建 FeedService 实例
func NewFeedService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) FeedService {
	if loc == nil {
		loc = time.UTC
	}
	return &feedService{repo: repo, loc: loc, logger: logger, now: time.Now}
}

func (s *feedService) ApprovedFeed(ctx context.Context, company string) (string, error) {
	today := s.now().In(s.loc)
	from := today.AddDate(0, 0, -feedLookback).Format(dateLayout)
	to := today.AddDate(0, 0, feedLookahead).Format(dateLayout)

	list, err := s.repo.Vacation.ListByDateRange(ctx, from, to)
	if err != nil {
		s.logger.Error("查询订阅源申请失败", zap.Error(err))
		return "", err
	}

	approved := make([]model.VacationRequest, 0, len(list))
	for _, v := range list {
		if v.Status != model.StatusApproved {
			continue
		}
		if company != "" && v.Company != company {
			continue
		}
		approved = append(approved, v)
	}

	return BuildICS(approved, s.loc, s.now())
}

// BuildICS 将申请序列化为 iCalendar 文本；日期无效的申请被跳过
func BuildICS(list []model.VacationRequest, loc *time.Location, stamp time.Time) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetXWRCalName(icsCalendarName)
	cal.SetXWRTimezone(loc.String())

	for i := range list {
		v := &list[i]
		start, end, ok := dateRange(v.StartDate, v.EndDate)
		if !ok {
			continue
		}

		e := cal.AddEvent(v.CalendarUID())
		e.SetDtStampTime(stamp.UTC())
		e.SetCreatedTime(v.CreatedAt.UTC())
		vType := model.NormalizeType(string(v.Type))
		e.SetSummary(fmt.Sprintf("%s - %s", v.UserName, vType))
		e.SetDescription(eventDescription(v, vType))
		if v.UserEmail != "" {
			e.AddAttendee("mailto:" + v.UserEmail)
		}

		if v.IsHalfDay && start == end {
			day, _ := time.ParseInLocation(dateLayout, start, loc)
			from, to := morningStartHour, morningEndHour
			if v.HalfDayType != nil && *v.HalfDayType == model.HalfDayAfternoon {
				from, to = afternoonStartHour, afternoonEndHour
			}
			e.SetStartAt(day.Add(time.Duration(from) * time.Hour))
			e.SetEndAt(day.Add(time.Duration(to) * time.Hour))
			continue
		}

		exclusive, err := calendar.ExclusiveEndDate(end)
		if err != nil {
			return "", err
		}
		startDay, _ := time.ParseInLocation(dateLayout, start, loc)
		endDay, _ := time.ParseInLocation(dateLayout, exclusive, loc)
		e.SetAllDayStartAt(startDay)
		e.SetAllDayEndAt(endDay)
	}

	return cal.Serialize(), nil
}
