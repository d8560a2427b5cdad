package dto

// ── 假期申请 DTO ──

// CreateVacationRequest 提交假期申请
type CreateVacationRequest struct {
	StartDate    string   `json:"start_date"    binding:"required,datetime=2006-01-02"`
	EndDate      string   `json:"end_date"      binding:"omitempty,datetime=2006-01-02"`
	Type         string   `json:"type"          binding:"max=50"`
	IsHalfDay    bool     `json:"is_half_day"`
	HalfDayType  string   `json:"half_day_type" binding:"omitempty,oneof=morning afternoon"`
	DurationDays *float64 `json:"duration_days" binding:"omitempty,gt=0,lte=366"`
	Reason       string   `json:"reason"        binding:"max=2000"`
	Company      string   `json:"company"       binding:"max=100"` // 为空时取申请人所属公司
}

// UpdateVacationRequest 修改假期申请；nil 字段不修改
type UpdateVacationRequest struct {
	StartDate    *string  `json:"start_date"    binding:"omitempty,datetime=2006-01-02"`
	EndDate      *string  `json:"end_date"      binding:"omitempty,datetime=2006-01-02"`
	Type         *string  `json:"type"          binding:"omitempty,max=50"`
	IsHalfDay    *bool    `json:"is_half_day"`
	HalfDayType  *string  `json:"half_day_type" binding:"omitempty,oneof=morning afternoon"`
	DurationDays *float64 `json:"duration_days" binding:"omitempty,gt=0,lte=366"`
	Reason       *string  `json:"reason"        binding:"omitempty,max=2000"`
}

// ReviewVacationRequest 审批请求；status 接受历史写法（如 validated / rejected）
type ReviewVacationRequest struct {
	Status  string `json:"status"  binding:"required,max=50"`
	Comment string `json:"comment" binding:"max=2000"`
}

// VacationListRequest 管理端列表查询参数
type VacationListRequest struct {
	PaginationRequest
	Status  string `form:"status"  binding:"omitempty,max=50"`
	Company string `form:"company" binding:"omitempty,max=100"`
	Email   string `form:"email"   binding:"omitempty,email"`
	From    string `form:"from"    binding:"omitempty,datetime=2006-01-02"`
	To      string `form:"to"      binding:"omitempty,datetime=2006-01-02"`
}

// ── 假期申请响应 ──

// CalendarSyncInfo 最近一次日历同步结果
type CalendarSyncInfo struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	State   string `json:"state"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VacationResponse 假期申请响应
type VacationResponse struct {
	ID                string            `json:"id"`
	UserName          string            `json:"user_name"`
	UserEmail         string            `json:"user_email"`
	Company           string            `json:"company"`
	StartDate         string            `json:"start_date"`
	EndDate           string            `json:"end_date"`
	Type              string            `json:"type"`
	Status            string            `json:"status"`
	IsHalfDay         bool              `json:"is_half_day"`
	HalfDayType       string            `json:"half_day_type,omitempty"`
	DurationDays      float64           `json:"duration_days"`
	Reason            string            `json:"reason,omitempty"`
	CalendarEventID   string            `json:"calendar_event_id,omitempty"`
	CalendarSyncedAt  string            `json:"calendar_synced_at,omitempty"`
	CalendarSyncError string            `json:"calendar_sync_error,omitempty"`
	ReviewedBy        string            `json:"reviewed_by,omitempty"`
	ReviewerEmail     string            `json:"reviewer_email,omitempty"`
	ReviewedAt        string            `json:"reviewed_at,omitempty"`
	AdminComment      string            `json:"admin_comment,omitempty"`
	CreatedAt         string            `json:"created_at"`
	CalendarSync      *CalendarSyncInfo `json:"calendar_sync,omitempty"`
}
