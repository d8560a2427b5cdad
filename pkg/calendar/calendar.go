// Package calendar 封装共享日历（外部日历服务）的最小操作集合。
//
// 全天事件在外部日历上使用"结束日期不包含"语义：存储的结束日期为包含日，
// 写入时需要 +1 天（ExclusiveEndDate），读回展示时需要 -1 天（InclusiveEndDate）。
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ErrNotFound 事件在外部日历上不存在（已删除或 ID 失效）
var ErrNotFound = errors.New("日历事件不存在")

// PermissionError 凭据身份不匹配或授权不足
type PermissionError struct {
	CalendarID       string
	ExpectedIdentity string
	ActualIdentity   string
	Err              error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("日历权限不足: calendar=%s expected=%s actual=%s: %v",
		e.CalendarID, e.ExpectedIdentity, e.ActualIdentity, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// IsNotFound 判断错误是否为事件不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermission 判断错误是否为权限错误
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// Event 外部日历事件
//
// AllDay=true 时使用 StartDate/EndDate（EndDate 为不包含的结束日），
// 否则使用 Start/End 时间段。
type Event struct {
	ID            string
	UID           string
	Summary       string
	Description   string
	AttendeeEmail string
	AllDay        bool
	StartDate     string
	EndDate       string
	Start         time.Time
	End           time.Time
}

// Client 外部日历客户端
type Client interface {
	Create(ctx context.Context, ev *Event) (string, error)
	Update(ctx context.Context, eventID string, ev *Event) error
	Delete(ctx context.Context, eventID string) error
	Get(ctx context.Context, eventID string) (*Event, error)
	// FindByUID 按幂等 UID 查找事件，不存在时返回 ErrNotFound
	FindByUID(ctx context.Context, uid string) (*Event, error)
	CalendarID() string
}

// ExclusiveEndDate 包含的结束日 → 外部日历不包含的结束日
func ExclusiveEndDate(inclusive string) (string, error) {
	t, err := time.Parse(dateLayout, inclusive)
	if err != nil {
		return "", fmt.Errorf("无效的结束日期 %q: %w", inclusive, err)
	}
	return t.AddDate(0, 0, 1).Format(dateLayout), nil
}

// InclusiveEndDate 外部日历不包含的结束日 → 包含的结束日
func InclusiveEndDate(exclusive string) (string, error) {
	t, err := time.Parse(dateLayout, exclusive)
	if err != nil {
		return "", fmt.Errorf("无效的结束日期 %q: %w", exclusive, err)
	}
	return t.AddDate(0, 0, -1).Format(dateLayout), nil
}
