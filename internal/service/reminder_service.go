package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/mailer"
)

// ReminderResult 待审批提醒结果
type ReminderResult struct {
	Pending  int    `json:"pending"`
	Reminded int    `json:"reminded"`
	Sent     bool   `json:"sent"`
	Error    string `json:"error,omitempty"`
}

// ReminderService 待审批申请提醒
type ReminderService interface {
	// SendPendingReminders 汇总超时未审批的申请并发送一封提醒邮件
	SendPendingReminders(ctx context.Context) (*ReminderResult, error)
}

type reminderService struct {
	repo    *repository.Repository
	sender  mailer.Sender
	mailCfg *config.MailConfig
	cfg     *config.ReportConfig
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

// NewReminderService 创建 ReminderService 实例
func NewReminderService(repo *repository.Repository, sender mailer.Sender, cfg *config.Config, logger *zap.Logger) ReminderService {
	return &reminderService{
		repo:    repo,
		sender:  sender,
		mailCfg: &cfg.Mail,
		cfg:     &cfg.Report,
		baseURL: cfg.Server.BaseURL,
		logger:  logger,
		now:     time.Now,
	}
}

var reminderHTML = template.Must(template.New("reminder").Funcs(template.FuncMap{
	"days": formatDays,
}).Parse(`<p>{{len .Rows}} vacation request(s) are waiting for review.</p>
<table border="1" cellpadding="4" cellspacing="0">
<thead><tr><th>Employee</th><th>Company</th><th>Type</th><th>Start</th><th>End</th><th>Days</th><th>Submitted</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.UserName}}</td><td>{{.Company}}</td><td>{{.Type}}</td><td>{{.StartDate}}</td><td>{{.EndDate}}</td><td>{{days .Days}}</td><td>{{.Submitted}}</td></tr>
{{- end}}
</tbody>
</table>
<p><a href="{{.Link}}">Open the dashboard</a></p>
`))

type reminderRow struct {
	UserName  string
	Company   string
	Type      model.VacationType
	StartDate string
	EndDate   string
	Days      float64
	Submitted string
}

func (s *reminderService) SendPendingReminders(ctx context.Context) (*ReminderResult, error) {
	now := s.now()
	list, err := s.repo.Vacation.ListPendingForReminder(ctx, now.Add(-s.cfg.ReminderAfter), now.Add(-s.cfg.ReminderInterval))
	if err != nil {
		s.logger.Error("查询待提醒申请失败", zap.Error(err))
		return nil, err
	}

	result := &ReminderResult{Pending: len(list)}
	if len(list) == 0 {
		return result, nil
	}

	to, err := resolveAdminRecipients(ctx, s.repo, s.mailCfg, s.logger)
	if err != nil {
		return nil, err
	}

	rows := make([]reminderRow, 0, len(list))
	ids := make([]string, 0, len(list))
	for i := range list {
		v := &list[i]
		rows = append(rows, reminderRow{
			UserName:  v.UserName,
			Company:   v.Company,
			Type:      v.Type,
			StartDate: v.StartDate,
			EndDate:   v.EndDate,
			Days:      CalculateDuration(DurationInputOf(v)),
			Submitted: v.CreatedAt.Format("2006-01-02 15:04"),
		})
		ids = append(ids, v.ID)
	}

	var buf bytes.Buffer
	if err := reminderHTML.Execute(&buf, map[string]interface{}{
		"Rows": rows,
		"Link": s.baseURL + "/admin/vacations?status=Pending",
	}); err != nil {
		s.logger.Error("渲染提醒邮件失败", zap.Error(err))
		return nil, err
	}

	res := s.sender.Send(ctx, &mailer.Message{
		To:       to,
		Subject:  fmt.Sprintf("%d vacation request(s) awaiting review", len(list)),
		HTMLBody: buf.String(),
	})
	if !res.Success {
		result.Error = res.Error
		return result, fmt.Errorf("%w: %s", ErrMailSendFailed, res.Error)
	}
	result.Sent = true

	n, err := s.repo.Vacation.BatchUpdate(ctx, ids, map[string]interface{}{"last_reminded_at": now})
	result.Reminded = n
	if err != nil {
		s.logger.Error("更新提醒时间失败", zap.Int("updated", n), zap.Int("total", len(ids)), zap.Error(err))
		result.Error = err.Error()
		return result, err
	}

	s.logger.Info("待审批提醒已发送", zap.Int("pending", len(list)), zap.Int("recipients", len(to)))
	return result, nil
}
