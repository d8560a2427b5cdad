package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
)

const dateLayout = "2006-01-02"

// ErrZeroDuration 已审批申请的天数为零：数据完整性错误，必须中断报表
var ErrZeroDuration = errors.New("已审批申请的天数必须大于 0")

// DurationIntegrityError 携带出错申请的标识
type DurationIntegrityError struct {
	RequestID string
	UserEmail string
	Status    model.VacationStatus
	Duration  float64
}

func (e *DurationIntegrityError) Error() string {
	return fmt.Sprintf("申请 %s (%s, %s) 天数为 %v: %v",
		e.RequestID, e.UserEmail, e.Status, e.Duration, ErrZeroDuration)
}

func (e *DurationIntegrityError) Unwrap() error { return ErrZeroDuration }

// DurationInput 计算天数所需的字段
type DurationInput struct {
	DurationDays *float64
	IsHalfDay    bool
	HalfDayType  *model.HalfDayType
	StartDate    string
	EndDate      string
}

// DurationInputOf 从申请中提取计算字段
func DurationInputOf(v *model.VacationRequest) DurationInput {
	return DurationInput{
		DurationDays: v.DurationDays,
		IsHalfDay:    v.IsHalfDay,
		HalfDayType:  v.HalfDayType,
		StartDate:    v.StartDate,
		EndDate:      v.EndDate,
	}
}

// CalculateDuration 计算请假天数
//
// 优先级：显式天数（>0，原样返回）→ 半天 0.5 → 按日期闭区间计数（至少 1）。
// 没有开始日期或日期无法解析时返回 0。
func CalculateDuration(in DurationInput) float64 {
	if in.DurationDays != nil && *in.DurationDays > 0 {
		return *in.DurationDays
	}
	if in.IsHalfDay {
		return 0.5
	}
	if in.StartDate == "" {
		return 0
	}

	start, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return 0
	}
	end := start
	if in.EndDate != "" {
		if end, err = time.Parse(dateLayout, in.EndDate); err != nil {
			return 0
		}
	}

	days := math.Floor(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// ValidateReviewedDuration 已审批（或已离开 Pending）的申请天数必须大于 0
func ValidateReviewedDuration(v *model.VacationRequest) error {
	if !v.IsReviewed() {
		return nil
	}
	d := CalculateDuration(DurationInputOf(v))
	if d <= 0 {
		return &DurationIntegrityError{
			RequestID: v.ID,
			UserEmail: v.UserEmail,
			Status:    v.Status,
			Duration:  d,
		}
	}
	return nil
}

// SumDurations 精确累加天数，不做任何取整
func SumDurations(days ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, d := range days {
		total = total.Add(decimal.NewFromFloat(d))
	}
	return total
}
