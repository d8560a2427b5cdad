package model

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ── 状态与类型枚举 ──

// VacationStatus 申请状态，仅允许三个规范值
type VacationStatus string

const (
	StatusPending  VacationStatus = "Pending"
	StatusApproved VacationStatus = "Approved"
	StatusDenied   VacationStatus = "Denied"
)

// VacationType 假期类型，仅允许四个规范值
type VacationType string

const (
	TypePaidVacation VacationType = "Paid Vacation"
	TypeUnpaidLeave  VacationType = "Unpaid Leave"
	TypeSickLeave    VacationType = "Sick Leave"
	TypeOther        VacationType = "Other"
)

// HalfDayType 半天请假的时段
type HalfDayType string

const (
	HalfDayMorning   HalfDayType = "morning"
	HalfDayAfternoon HalfDayType = "afternoon"
)

var statusSynonyms = map[string]VacationStatus{
	"approved":  StatusApproved,
	"approve":   StatusApproved,
	"ok":        StatusApproved,
	"accepted":  StatusApproved,
	"validated": StatusApproved,
	"denied":    StatusDenied,
	"reject":    StatusDenied,
	"rejected":  StatusDenied,
	"declined":  StatusDenied,
	"pending":   StatusPending,
	"waiting":   StatusPending,
	"submitted": StatusPending,
}

var typeSynonyms = map[string]VacationType{
	"paid_leave":      TypePaidVacation,
	"paid leave":      TypePaidVacation,
	"paidvacation":    TypePaidVacation,
	"paid-vacation":   TypePaidVacation,
	"paid":            TypePaidVacation,
	"vacation":        TypePaidVacation,
	"paid_vacation":   TypePaidVacation,
	"paid vacation":   TypePaidVacation,
	"unpaid_leave":    TypeUnpaidLeave,
	"unpaid leave":    TypeUnpaidLeave,
	"unpaid":          TypeUnpaidLeave,
	"unpaidleave":     TypeUnpaidLeave,
	"unpaid-leave":    TypeUnpaidLeave,
	"unpaid_vacation": TypeUnpaidLeave,
	"unpaid vacation": TypeUnpaidLeave,
	"sick_leave":      TypeSickLeave,
	"sick leave":      TypeSickLeave,
	"sick":            TypeSickLeave,
	"sickleave":       TypeSickLeave,
	"sick-leave":      TypeSickLeave,
	"illness":         TypeSickLeave,
	"medical":         TypeSickLeave,
	"other":           TypeOther,
}

// NormalizeStatus 将历史遗留的任意状态字符串归一为规范状态
// 无法识别（含空串）时回落为 Pending，不报错
func NormalizeStatus(raw string) VacationStatus {
	if s, ok := statusSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusPending
}

// StatusSpellings 归一为 s 的全部已知写法（小写，含规范值本身），供数据库查询匹配未回填的历史数据
func StatusSpellings(s VacationStatus) []string {
	var out []string
	for raw, st := range statusSynonyms {
		if st == s {
			out = append(out, raw)
		}
	}
	sort.Strings(out)
	return out
}

// NormalizeType 将任意类型字符串归一为规范类型，无法识别时为 Other
func NormalizeType(raw string) VacationType {
	if t, ok := typeSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return TypeOther
}

// ParseHalfDayType 解析半天时段；无法识别时返回 nil
func ParseHalfDayType(raw string) *HalfDayType {
	var h HalfDayType
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "morning", "am":
		h = HalfDayMorning
	case "afternoon", "pm":
		h = HalfDayAfternoon
	default:
		return nil
	}
	return &h
}

// Scan 读取数据库时即归一化，遗留写法不会流出持久层
func (s *VacationStatus) Scan(src interface{}) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("VacationStatus.Scan: %w", err)
	}
	*s = NormalizeStatus(raw)
	return nil
}

// Value 只写入规范值
func (s VacationStatus) Value() (driver.Value, error) {
	return string(NormalizeStatus(string(s))), nil
}

// Scan 读取数据库时即归一化
func (t *VacationType) Scan(src interface{}) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("VacationType.Scan: %w", err)
	}
	*t = NormalizeType(raw)
	return nil
}

// Value 只写入规范值
func (t VacationType) Value() (driver.Value, error) {
	return string(NormalizeType(string(t))), nil
}

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case []byte:
		return string(v), nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}

// ── 假期申请 ──

// VacationRequest 假期申请表，对应 vacation_requests
type VacationRequest struct {
	ID          string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID      *string        `gorm:"type:uuid"                                      json:"user_id,omitempty"`
	UserName    string         `gorm:"type:varchar(100);not null"                     json:"user_name"`
	UserEmail   string         `gorm:"type:varchar(255);not null"                     json:"user_email"`
	Company     string         `gorm:"type:varchar(100);not null"                     json:"company"`
	StartDate   string         `gorm:"type:varchar(10);not null"                      json:"start_date"`
	EndDate     string         `gorm:"type:varchar(10);not null"                      json:"end_date"`
	Type        VacationType   `gorm:"type:varchar(50);not null;default:'Other'"      json:"type"`
	Status      VacationStatus `gorm:"type:varchar(50);not null;default:'Pending'"    json:"status"`
	IsHalfDay   bool           `gorm:"not null;default:false"                         json:"is_half_day"`
	HalfDayType *HalfDayType   `gorm:"type:varchar(10)"                               json:"half_day_type,omitempty"`
	// 显式天数，支持 0.5 / 1.5 等小数
	DurationDays *float64 `gorm:"type:numeric(6,2)" json:"duration_days,omitempty"`
	Reason       string   `gorm:"type:text"         json:"reason,omitempty"`

	// 日历关联：唯一规范字段
	CalendarEventID *string `gorm:"type:varchar(255)" json:"calendar_event_id,omitempty"`
	// 历史别名，仅供一次性迁移读取，清除关联时一并清空
	LegacyGoogleCalendarEventID *string    `gorm:"column:google_calendar_event_id;type:varchar(255)" json:"-"`
	LegacyGoogleEventID         *string    `gorm:"column:google_event_id;type:varchar(255)"          json:"-"`
	SyncedStartDate             *string    `gorm:"type:varchar(10)"                                  json:"-"`
	SyncedEndDate               *string    `gorm:"type:varchar(10)"                                  json:"-"`
	CalendarSyncedAt            *time.Time `json:"calendar_synced_at,omitempty"`
	CalendarSyncError           *string    `gorm:"type:text" json:"calendar_sync_error,omitempty"`

	// 审批信息：离开 Pending 时仅写入一次
	ReviewedBy    *string    `gorm:"type:varchar(100)" json:"reviewed_by,omitempty"`
	ReviewerEmail *string    `gorm:"type:varchar(255)" json:"reviewer_email,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	AdminComment  *string    `gorm:"type:text"         json:"admin_comment,omitempty"`

	LastRemindedAt *time.Time `json:"last_reminded_at,omitempty"`
	BaseModel
}

// TableName 指定表名
func (VacationRequest) TableName() string { return "vacation_requests" }

// CalendarUID 外部日历事件的幂等标识
func (v *VacationRequest) CalendarUID() string {
	return "vacation-" + v.ID
}

// LinkedEventID 当前关联的事件 ID；规范字段为空时回退到历史别名
func (v *VacationRequest) LinkedEventID() string {
	for _, p := range []*string{v.CalendarEventID, v.LegacyGoogleCalendarEventID, v.LegacyGoogleEventID} {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}

// IsReviewed 是否已离开 Pending
func (v *VacationRequest) IsReviewed() bool {
	return v.Status != StatusPending || v.ReviewedAt != nil
}
