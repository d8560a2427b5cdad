package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/mailer"
)

// ── 报表模块业务错误 ──

var (
	ErrInvalidMonth       = errors.New("年份或月份无效")
	ErrTotalsMismatch     = errors.New("员工合计与总天数不一致")
	ErrReportAlreadySent  = errors.New("该月报表已发送")
	ErrNoRecipients       = errors.New("未配置报表收件人")
	ErrMailSendFailed     = errors.New("邮件发送失败")
	ErrReportGenerateFail = errors.New("生成报表文件失败")
)

// approvedForReport 月报接受的原始状态（小写），比规范状态更宽松
var approvedForReport = []string{"approved", "validated"}

// totalsTolerance 员工合计与总天数允许的误差
var totalsTolerance = decimal.NewFromFloat(0.01)

const reportMarkerTTL = 40 * 24 * time.Hour

// OnceMarker 跨进程的一次性标记
type OnceMarker interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ClearOnce(ctx context.Context, key string) error
}

// ReportWindow 报表月份窗口，边界按配置的时区计算
type ReportWindow struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timezone  string    `json:"timezone"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
}

// VacationRow 报表中的一行，对应一条申请（不按员工去重）
type VacationRow struct {
	RequestID string  `json:"request_id"`
	UserName  string  `json:"user_name"`
	UserEmail string  `json:"user_email"`
	Company   string  `json:"company"`
	Type      string  `json:"type"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	HalfDay   string  `json:"half_day,omitempty"`
	Days      float64 `json:"days"`
}

// EmployeeTotal 单个员工的合计
type EmployeeTotal struct {
	UserName  string  `json:"user_name"`
	UserEmail string  `json:"user_email"`
	Company   string  `json:"company"`
	Requests  int     `json:"requests"`
	TotalDays float64 `json:"total_days"`
}

// ReportTotals 总计与员工合计
type ReportTotals struct {
	TotalDays   float64         `json:"total_days"`
	PerEmployee []EmployeeTotal `json:"per_employee"`
}

// MonthlyReport 月度汇总
type MonthlyReport struct {
	Window      ReportWindow  `json:"window"`
	Rows        []VacationRow `json:"rows"`
	Totals      ReportTotals  `json:"totals"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// SendReportResult 月报发送结果
type SendReportResult struct {
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	Rows       int      `json:"rows"`
	Recipients []string `json:"recipients"`
	ProviderID string   `json:"provider_id,omitempty"`
}

// MonthWindow 计算 [当月第一天 00:00, 当月最后一天 23:59:59.999999999]
func MonthWindow(year, month int, loc *time.Location) (ReportWindow, error) {
	if year < 1970 || year > 9999 || month < 1 || month > 12 {
		return ReportWindow{}, ErrInvalidMonth
	}
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return ReportWindow{
		Year:      year,
		Month:     month,
		Timezone:  loc.String(),
		Start:     start,
		End:       end,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
	}, nil
}

// PreviousMonth now 所在时区的上一个月
func PreviousMonth(now time.Time, loc *time.Location) (int, int) {
	first := time.Date(now.In(loc).Year(), now.In(loc).Month(), 1, 0, 0, 0, 0, loc)
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}

// overlapsWindow 开始或结束日落在窗口内，或申请跨越整个窗口
func overlapsWindow(start, end string, w ReportWindow) bool {
	startIn := start >= w.StartDate && start <= w.EndDate
	endIn := end >= w.StartDate && end <= w.EndDate
	spans := start <= w.StartDate && end >= w.EndDate
	return startIn || endIn || spans
}

// Totals 汇总总天数与员工合计；使用十进制累加，不做取整
func Totals(rows []VacationRow) ReportTotals {
	all := make([]float64, 0, len(rows))
	perEmployee := make(map[string][]float64)
	index := make(map[string]int)
	var employees []EmployeeTotal

	for _, r := range rows {
		all = append(all, r.Days)

		key := strings.ToLower(strings.TrimSpace(r.UserEmail))
		if key == "" {
			key = "name:" + r.UserName
		}
		i, ok := index[key]
		if !ok {
			i = len(employees)
			index[key] = i
			employees = append(employees, EmployeeTotal{
				UserName:  r.UserName,
				UserEmail: r.UserEmail,
				Company:   r.Company,
			})
		}
		employees[i].Requests++
		perEmployee[key] = append(perEmployee[key], r.Days)
	}

	for key, i := range index {
		employees[i].TotalDays = SumDurations(perEmployee[key]...).InexactFloat64()
	}

	return ReportTotals{
		TotalDays:   SumDurations(all...).InexactFloat64(),
		PerEmployee: employees,
	}
}

// CheckTotals 校验 sum(行天数) == sum(员工合计) == 总天数（误差 0.01 以内）
func CheckTotals(rows []VacationRow, totals ReportTotals) error {
	rowDays := make([]float64, len(rows))
	for i, r := range rows {
		rowDays[i] = r.Days
	}
	empDays := make([]float64, len(totals.PerEmployee))
	for i, e := range totals.PerEmployee {
		empDays[i] = e.TotalDays
	}
	rowSum, empSum := SumDurations(rowDays...), SumDurations(empDays...)
	total := decimal.NewFromFloat(totals.TotalDays)

	if empSum.Sub(total).Abs().GreaterThan(totalsTolerance) || rowSum.Sub(total).Abs().GreaterThan(totalsTolerance) {
		return fmt.Errorf("%w: rows=%s employees=%s total=%s",
			ErrTotalsMismatch, rowSum.String(), empSum.String(), total.String())
	}
	return nil
}

// ReportService 月度汇总报表
type ReportService interface {
	// GetApprovedForMonth 查询与月份窗口重叠的已批准申请，天数为零时中断
	GetApprovedForMonth(ctx context.Context, w ReportWindow) ([]VacationRow, error)
	Monthly(ctx context.Context, year, month int) (*MonthlyReport, error)
	MonthlyCSV(ctx context.Context, year, month int) ([]byte, string, error)
	MonthlyXLSX(ctx context.Context, year, month int) ([]byte, string, error)
	// SendMonthly 发送月报；force 为 false 时同一月份只发送一次
	SendMonthly(ctx context.Context, year, month int, force bool) (*SendReportResult, error)
	// SendDue 到达配置的发送日时发送上月报表
	SendDue(ctx context.Context, now time.Time) error
}

type reportService struct {
	repo    *repository.Repository
	sender  mailer.Sender
	marker  OnceMarker
	mailCfg *config.MailConfig
	cfg     *config.ReportConfig
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportService 创建 ReportService 实例；marker 为 nil 时不做发送去重
func NewReportService(
	repo *repository.Repository,
	sender mailer.Sender,
	marker OnceMarker,
	cfg *config.Config,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		repo:    repo,
		sender:  sender,
		marker:  marker,
		mailCfg: &cfg.Mail,
		cfg:     &cfg.Report,
		loc:     cfg.Report.Location(),
		logger:  logger,
		now:     time.Now,
	}
}

// ────────────────────── GetApprovedForMonth ──────────────────────

func (s *reportService) GetApprovedForMonth(ctx context.Context, w ReportWindow) ([]VacationRow, error) {
	list, err := s.repo.Vacation.ListApprovedRaw(ctx, w.StartDate, w.EndDate, approvedForReport)
	if err != nil {
		s.logger.Error("查询月度已批准申请失败", zap.Error(err))
		return nil, err
	}

	rows := make([]VacationRow, 0, len(list))
	for i := range list {
		v := &list[i]
		status := strings.ToLower(strings.TrimSpace(string(v.Status)))
		if status != "approved" && status != "validated" {
			continue
		}
		// 日期损坏的记录天数为 0，同样中断报表
		if err := ValidateReviewedDuration(v); err != nil {
			s.logger.Error("月报数据完整性错误", zap.String("id", v.ID), zap.Error(err))
			return nil, err
		}
		start, end, ok := dateRange(v.StartDate, v.EndDate)
		if !ok || !overlapsWindow(start, end, w) {
			continue
		}

		row := VacationRow{
			RequestID: v.ID,
			UserName:  v.UserName,
			UserEmail: v.UserEmail,
			Company:   v.Company,
			Type:      string(model.NormalizeType(string(v.Type))),
			StartDate: start,
			EndDate:   end,
			Days:      CalculateDuration(DurationInputOf(v)),
		}
		if v.IsHalfDay {
			row.HalfDay = halfDayLabel(v.HalfDayType)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ────────────────────── Monthly ──────────────────────

func (s *reportService) Monthly(ctx context.Context, year, month int) (*MonthlyReport, error) {
	w, err := MonthWindow(year, month, s.loc)
	if err != nil {
		return nil, err
	}

	rows, err := s.GetApprovedForMonth(ctx, w)
	if err != nil {
		return nil, err
	}

	totals := Totals(rows)
	if err := CheckTotals(rows, totals); err != nil {
		s.logger.Error("月报合计校验失败", zap.Error(err))
		return nil, err
	}

	return &MonthlyReport{
		Window:      w,
		Rows:        rows,
		Totals:      totals,
		GeneratedAt: s.now(),
	}, nil
}

func (s *reportService) MonthlyCSV(ctx context.Context, year, month int) ([]byte, string, error) {
	report, err := s.Monthly(ctx, year, month)
	if err != nil {
		return nil, "", err
	}
	data, err := RenderMonthlyCSV(report)
	if err != nil {
		s.logger.Error("生成 CSV 失败", zap.Error(err))
		return nil, "", ErrReportGenerateFail
	}
	return data, reportFilename(report.Window, "csv"), nil
}

func (s *reportService) MonthlyXLSX(ctx context.Context, year, month int) ([]byte, string, error) {
	report, err := s.Monthly(ctx, year, month)
	if err != nil {
		return nil, "", err
	}
	data, err := RenderMonthlyXLSX(report)
	if err != nil {
		s.logger.Error("生成 Excel 失败", zap.Error(err))
		return nil, "", ErrReportGenerateFail
	}
	return data, reportFilename(report.Window, "xlsx"), nil
}

// ────────────────────── SendMonthly ──────────────────────

func (s *reportService) SendMonthly(ctx context.Context, year, month int, force bool) (*SendReportResult, error) {
	report, err := s.Monthly(ctx, year, month)
	if err != nil {
		return nil, err
	}

	recipients, err := s.adminRecipients(ctx)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("report:monthly:%04d-%02d", year, month)
	if !force && s.marker != nil {
		first, err := s.marker.MarkOnce(ctx, key, reportMarkerTTL)
		if err != nil {
			s.logger.Error("写入月报发送标记失败", zap.String("key", key), zap.Error(err))
			return nil, err
		}
		if !first {
			return nil, ErrReportAlreadySent
		}
	}

	html, err := RenderMonthlyHTML(report)
	if err != nil {
		s.logger.Error("生成月报 HTML 失败", zap.Error(err))
		s.clearMarker(ctx, key, force)
		return nil, ErrReportGenerateFail
	}
	csvData, err := RenderMonthlyCSV(report)
	if err != nil {
		s.logger.Error("生成月报 CSV 失败", zap.Error(err))
		s.clearMarker(ctx, key, force)
		return nil, ErrReportGenerateFail
	}

	res := s.sender.Send(ctx, &mailer.Message{
		To:       recipients,
		Subject:  fmt.Sprintf("Vacation summary %04d-%02d", year, month),
		HTMLBody: html,
		TextBody: RenderMonthlyText(report),
		Attachments: []mailer.Attachment{{
			Filename:    reportFilename(report.Window, "csv"),
			ContentType: "text/csv",
			Data:        csvData,
		}},
	})
	if !res.Success {
		s.clearMarker(ctx, key, force)
		return nil, fmt.Errorf("%w: %s", ErrMailSendFailed, res.Error)
	}

	s.logger.Info("月报已发送",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("rows", len(report.Rows)),
		zap.Int("recipients", len(recipients)),
	)

	return &SendReportResult{
		Year:       year,
		Month:      month,
		Rows:       len(report.Rows),
		Recipients: recipients,
		ProviderID: res.ProviderID,
	}, nil
}

func (s *reportService) SendDue(ctx context.Context, now time.Time) error {
	if now.In(s.loc).Day() != s.cfg.MonthlyDay {
		return nil
	}
	year, month := PreviousMonth(now, s.loc)
	_, err := s.SendMonthly(ctx, year, month, false)
	if errors.Is(err, ErrReportAlreadySent) {
		return nil
	}
	return err
}

func (s *reportService) clearMarker(ctx context.Context, key string, force bool) {
	if force || s.marker == nil {
		return
	}
	if err := s.marker.ClearOnce(ctx, key); err != nil {
		s.logger.Warn("清除月报发送标记失败", zap.String("key", key), zap.Error(err))
	}
}

// adminRecipients 优先使用配置的收件人，否则取全部管理员
func (s *reportService) adminRecipients(ctx context.Context) ([]string, error) {
	return resolveAdminRecipients(ctx, s.repo, s.mailCfg, s.logger)
}

func resolveAdminRecipients(ctx context.Context, repo *repository.Repository, cfg *config.MailConfig, logger *zap.Logger) ([]string, error) {
	if len(cfg.AdminTo) > 0 {
		return cfg.AdminTo, nil
	}
	admins, err := repo.User.ListAdmins(ctx)
	if err != nil {
		logger.Error("查询管理员失败", zap.Error(err))
		return nil, err
	}
	out := make([]string, 0, len(admins))
	for _, a := range admins {
		if a.Email != "" {
			out = append(out, a.Email)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

// ── 渲染 ──

var reportColumns = []string{"Employee", "Email", "Company", "Type", "Start", "End", "Half day", "Days"}

func reportFilename(w ReportWindow, ext string) string {
	return fmt.Sprintf("vacations_%04d-%02d.%s", w.Year, w.Month, ext)
}

func formatDays(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

var monthlyHTML = template.Must(template.New("monthly").Funcs(template.FuncMap{
	"days": formatDays,
}).Parse(`<h2>Vacation summary {{printf "%04d-%02d" .Window.Year .Window.Month}}</h2>
<p>{{.Window.StartDate}} to {{.Window.EndDate}} ({{.Window.Timezone}})</p>
<table border="1" cellpadding="4" cellspacing="0">
<thead><tr><th>Employee</th><th>Email</th><th>Company</th><th>Type</th><th>Start</th><th>End</th><th>Half day</th><th>Days</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.UserName}}</td><td>{{.UserEmail}}</td><td>{{.Company}}</td><td>{{.Type}}</td><td>{{.StartDate}}</td><td>{{.EndDate}}</td><td>{{.HalfDay}}</td><td>{{days .Days}}</td></tr>
{{- end}}
</tbody>
</table>
<h3>Per employee</h3>
<table border="1" cellpadding="4" cellspacing="0">
<thead><tr><th>Employee</th><th>Email</th><th>Requests</th><th>Days</th></tr></thead>
<tbody>
{{- range .Totals.PerEmployee}}
<tr><td>{{.UserName}}</td><td>{{.UserEmail}}</td><td>{{.Requests}}</td><td>{{days .TotalDays}}</td></tr>
{{- end}}
</tbody>
</table>
<p><strong>Total: {{days .Totals.TotalDays}} days</strong></p>
`))

// RenderMonthlyHTML 邮件正文表格；每条申请一行
func RenderMonthlyHTML(r *MonthlyReport) (string, error) {
	var buf bytes.Buffer
	if err := monthlyHTML.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderMonthlyText 纯文本正文
func RenderMonthlyText(r *MonthlyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vacation summary %04d-%02d (%s to %s)\n\n",
		r.Window.Year, r.Window.Month, r.Window.StartDate, r.Window.EndDate)
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "- %s <%s>: %s %s to %s, %s day(s)\n",
			row.UserName, row.UserEmail, row.Type, row.StartDate, row.EndDate, formatDays(row.Days))
	}
	fmt.Fprintf(&b, "\nTotal: %s days across %d request(s)\n", formatDays(r.Totals.TotalDays), len(r.Rows))
	return b.String()
}

// RenderMonthlyCSV 表头 + 每条申请一行
func RenderMonthlyCSV(r *MonthlyReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportColumns); err != nil {
		return nil, err
	}
	for _, row := range r.Rows {
		if err := w.Write([]string{
			row.UserName, row.UserEmail, row.Company, row.Type,
			row.StartDate, row.EndDate, row.HalfDay, formatDays(row.Days),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderMonthlyXLSX 明细 Sheet（每条申请一行）+ 员工合计 Sheet
func RenderMonthlyXLSX(r *MonthlyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	detail := "Requests"
	idx, err := f.NewSheet(detail)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, h := range reportColumns {
		f.SetCellValue(detail, cell(colName(i), 1), h)
	}
	f.SetCellStyle(detail, "A1", cell(colName(len(reportColumns)-1), 1), headerStyle)
	f.SetColWidth(detail, "A", "C", 24)
	f.SetColWidth(detail, "D", "G", 14)

	row := 2
	for _, rr := range r.Rows {
		f.SetCellValue(detail, cell("A", row), rr.UserName)
		f.SetCellValue(detail, cell("B", row), rr.UserEmail)
		f.SetCellValue(detail, cell("C", row), rr.Company)
		f.SetCellValue(detail, cell("D", row), rr.Type)
		f.SetCellValue(detail, cell("E", row), rr.StartDate)
		f.SetCellValue(detail, cell("F", row), rr.EndDate)
		f.SetCellValue(detail, cell("G", row), rr.HalfDay)
		f.SetCellValue(detail, cell("H", row), rr.Days)
		row++
	}

	summary := "Per employee"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, err
	}
	for i, h := range []string{"Employee", "Email", "Company", "Requests", "Days"} {
		f.SetCellValue(summary, cell(colName(i), 1), h)
	}
	f.SetCellStyle(summary, "A1", "E1", headerStyle)
	f.SetColWidth(summary, "A", "C", 24)

	row = 2
	for _, e := range r.Totals.PerEmployee {
		f.SetCellValue(summary, cell("A", row), e.UserName)
		f.SetCellValue(summary, cell("B", row), e.UserEmail)
		f.SetCellValue(summary, cell("C", row), e.Company)
		f.SetCellValue(summary, cell("D", row), e.Requests)
		f.SetCellValue(summary, cell("E", row), e.TotalDays)
		row++
	}
	f.SetCellValue(summary, cell("A", row), "Total")
	f.SetCellValue(summary, cell("E", row), r.Totals.TotalDays)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
