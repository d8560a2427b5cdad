package dto

// ── 报表模块 DTO ──

// MonthlyReportQuery 月报查询参数；缺省为上一个自然月
type MonthlyReportQuery struct {
	Year  int `form:"year"  json:"year"  binding:"omitempty,min=2000,max=2100"`
	Month int `form:"month" json:"month" binding:"omitempty,min=1,max=12"`
}

// SendMonthlyReportRequest 手动发送月报
type SendMonthlyReportRequest struct {
	MonthlyReportQuery
	Force bool `json:"force"`
}
