package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
)

// uidProperty 事件私有扩展属性名，保存 vacation-{id} 幂等标识
const uidProperty = "vacationUid"

// GoogleClient 基于 Google Calendar API 的 Client 实现
type GoogleClient struct {
	svc              *gcal.Service
	calendarID       string
	expectedIdentity string
	actualIdentity   string
	loc              *time.Location
	logger           *zap.Logger
}

// NewGoogleClient 使用服务账号凭据创建客户端
func NewGoogleClient(ctx context.Context, cfg *config.CalendarConfig, loc *time.Location, logger *zap.Logger) (*GoogleClient, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("读取日历凭据失败: %w", err)
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("解析日历凭据失败: %w", err)
	}

	svc, err := gcal.NewService(ctx,
		option.WithCredentialsJSON(data),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("初始化 Google Calendar 客户端失败: %w", err)
	}

	if cfg.ServiceAccountEmail != "" && cfg.ServiceAccountEmail != creds.ClientEmail {
		logger.Warn("日历凭据身份与配置不一致",
			zap.String("expected", cfg.ServiceAccountEmail),
			zap.String("actual", creds.ClientEmail),
		)
	}

	return &GoogleClient{
		svc:              svc,
		calendarID:       cfg.CalendarID,
		expectedIdentity: cfg.ServiceAccountEmail,
		actualIdentity:   creds.ClientEmail,
		loc:              loc,
		logger:           logger,
	}, nil
}

// CalendarID 目标日历 ID
func (c *GoogleClient) CalendarID() string { return c.calendarID }

func (c *GoogleClient) Create(ctx context.Context, ev *Event) (string, error) {
	created, err := c.svc.Events.Insert(c.calendarID, c.toGoogle(ev)).Context(ctx).Do()
	if err != nil {
		return "", c.classify(err)
	}
	return created.Id, nil
}

func (c *GoogleClient) Update(ctx context.Context, eventID string, ev *Event) error {
	_, err := c.svc.Events.Patch(c.calendarID, eventID, c.toGoogle(ev)).Context(ctx).Do()
	if err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *GoogleClient) Delete(ctx context.Context, eventID string) error {
	if err := c.svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *GoogleClient) Get(ctx context.Context, eventID string) (*Event, error) {
	ge, err := c.svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, c.classify(err)
	}
	// 已删除事件仍可按 ID 取回，状态为 cancelled
	if ge.Status == "cancelled" {
		return nil, ErrNotFound
	}
	return c.fromGoogle(ge), nil
}

func (c *GoogleClient) FindByUID(ctx context.Context, uid string) (*Event, error) {
	list, err := c.svc.Events.List(c.calendarID).
		PrivateExtendedProperty(uidProperty + "=" + uid).
		ShowDeleted(false).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.classify(err)
	}
	if len(list.Items) == 0 {
		return nil, ErrNotFound
	}
	return c.fromGoogle(list.Items[0]), nil
}

// ── 转换 ──

func (c *GoogleClient) toGoogle(ev *Event) *gcal.Event {
	ge := &gcal.Event{
		Summary:      ev.Summary,
		Description:  ev.Description,
		Transparency: "transparent",
	}
	ge.ExtendedProperties = &gcal.EventExtendedProperties{
		Private: map[string]string{uidProperty: ev.UID},
	}
	if ev.AllDay {
		ge.Start = &gcal.EventDateTime{Date: ev.StartDate}
		ge.End = &gcal.EventDateTime{Date: ev.EndDate}
	} else {
		ge.Start = &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: c.loc.String()}
		ge.End = &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: c.loc.String()}
	}
	if ev.AttendeeEmail != "" {
		ge.Attendees = []*gcal.EventAttendee{{Email: ev.AttendeeEmail}}
	}
	return ge
}

func (c *GoogleClient) fromGoogle(ge *gcal.Event) *Event {
	ev := &Event{
		ID:          ge.Id,
		Summary:     ge.Summary,
		Description: ge.Description,
	}
	if ge.ExtendedProperties != nil {
		ev.UID = ge.ExtendedProperties.Private[uidProperty]
	}
	if len(ge.Attendees) > 0 {
		ev.AttendeeEmail = ge.Attendees[0].Email
	}
	if ge.Start != nil && ge.Start.Date != "" {
		ev.AllDay = true
		ev.StartDate = ge.Start.Date
		if ge.End != nil {
			ev.EndDate = ge.End.Date
		}
		return ev
	}
	if ge.Start != nil {
		ev.Start, _ = time.Parse(time.RFC3339, ge.Start.DateTime)
	}
	if ge.End != nil {
		ev.End, _ = time.Parse(time.RFC3339, ge.End.DateTime)
	}
	return ev
}

// classify 将 Google API 错误归类为 ErrNotFound / PermissionError
func (c *GoogleClient) classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return &PermissionError{
			CalendarID:       c.calendarID,
			ExpectedIdentity: c.expectedIdentity,
			ActualIdentity:   c.actualIdentity,
			Err:              err,
		}
	default:
		return err
	}
}
