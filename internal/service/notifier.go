package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/mailer"
)

// Notifier 业务邮件通知；发送失败只记录日志，不影响主流程
type Notifier struct {
	repo    *repository.Repository
	sender  mailer.Sender
	mailCfg *config.MailConfig
	baseURL string
	logger  *zap.Logger
}

// NewNotifier 创建 Notifier
func NewNotifier(repo *repository.Repository, sender mailer.Sender, cfg *config.Config, logger *zap.Logger) *Notifier {
	return &Notifier{
		repo:    repo,
		sender:  sender,
		mailCfg: &cfg.Mail,
		baseURL: cfg.Server.BaseURL,
		logger:  logger,
	}
}

var newRequestHTML = template.Must(template.New("new").Parse(`<p>{{.V.UserName}} ({{.V.UserEmail}}, {{.V.Company}}) submitted a vacation request.</p>
<ul>
<li>Type: {{.V.Type}}</li>
<li>Dates: {{.V.StartDate}} to {{.V.EndDate}}</li>
<li>Days: {{.Days}}</li>
{{- if .V.Reason}}<li>Reason: {{.V.Reason}}</li>{{end}}
{{- if .Conflicts}}<li><strong>{{.Conflicts}} overlapping request(s) in the same company</strong></li>{{end}}
</ul>
<p><a href="{{.Link}}">Review the request</a></p>
`))

var reviewedHTML = template.Must(template.New("reviewed").Parse(`<p>Hello {{.V.UserName}},</p>
<p>Your vacation request from {{.V.StartDate}} to {{.V.EndDate}} was <strong>{{.V.Status}}</strong>{{if .Reviewer}} by {{.Reviewer}}{{end}}.</p>
{{- if .Comment}}<p>Comment: {{.Comment}}</p>{{end}}
`))

// NewRequest 新申请通知管理员
func (n *Notifier) NewRequest(ctx context.Context, v *model.VacationRequest, conflicts int) {
	to, err := resolveAdminRecipients(ctx, n.repo, n.mailCfg, n.logger)
	if err != nil {
		n.logger.Warn("新申请通知未发送：无管理员收件人", zap.String("id", v.ID), zap.Error(err))
		return
	}

	var buf bytes.Buffer
	err = newRequestHTML.Execute(&buf, map[string]interface{}{
		"V":         v,
		"Days":      formatDays(CalculateDuration(DurationInputOf(v))),
		"Conflicts": conflicts,
		"Link":      fmt.Sprintf("%s/admin/vacations/%s", n.baseURL, v.ID),
	})
	if err != nil {
		n.logger.Error("渲染新申请通知失败", zap.Error(err))
		return
	}

	n.send(ctx, &mailer.Message{
		To:       to,
		Subject:  fmt.Sprintf("New vacation request: %s (%s to %s)", v.UserName, v.StartDate, v.EndDate),
		HTMLBody: buf.String(),
	})
}

// Reviewed 审批结果通知申请人
func (n *Notifier) Reviewed(ctx context.Context, v *model.VacationRequest) {
	if v.UserEmail == "" {
		return
	}

	var buf bytes.Buffer
	err := reviewedHTML.Execute(&buf, map[string]interface{}{
		"V":        v,
		"Reviewer": deref(v.ReviewedBy),
		"Comment":  deref(v.AdminComment),
	})
	if err != nil {
		n.logger.Error("渲染审批通知失败", zap.Error(err))
		return
	}

	n.send(ctx, &mailer.Message{
		To:       []string{v.UserEmail},
		Subject:  fmt.Sprintf("Your vacation request was %s", v.Status),
		HTMLBody: buf.String(),
	})
}

func (n *Notifier) send(ctx context.Context, msg *mailer.Message) {
	if res := n.sender.Send(ctx, msg); !res.Success {
		n.logger.Warn("通知邮件发送失败", zap.String("subject", msg.Subject), zap.String("error", res.Error))
	}
}
