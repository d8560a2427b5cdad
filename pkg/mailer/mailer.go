// Package mailer 邮件发送：SMTP 实现与未配置 SMTP 时的日志降级实现。
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
)

// Attachment 邮件附件
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message 待发送邮件
type Message struct {
	To          []string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Result 发送结果；发送失败不返回 error，由调用方决定是否重试
type Result struct {
	Success    bool
	ProviderID string
	Error      string
}

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, msg *Message) Result
}

// New 根据配置选择 SMTP 或日志实现
func New(cfg *config.MailConfig, logger *zap.Logger) Sender {
	if !cfg.Enabled() {
		logger.Warn("未配置 SMTP，邮件仅写入日志")
		return &LogSender{logger: logger}
	}
	return &SMTPSender{cfg: cfg, logger: logger}
}

// ── SMTP ──

// SMTPSender 通过 SMTP 发送邮件
type SMTPSender struct {
	cfg    *config.MailConfig
	logger *zap.Logger
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) Result {
	if len(msg.To) == 0 {
		return Result{Error: "收件人为空"}
	}

	m, messageID, err := s.build(msg)
	if err != nil {
		s.logger.Error("构建邮件失败", zap.String("subject", msg.Subject), zap.Error(err))
		return Result{Error: err.Error()}
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.SMTPHost, opts...)
	if err != nil {
		s.logger.Error("创建 SMTP 客户端失败", zap.Error(err))
		return Result{Error: err.Error()}
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.Error("发送邮件失败",
			zap.String("subject", msg.Subject),
			zap.Strings("to", msg.To),
			zap.Error(err),
		)
		return Result{Error: err.Error()}
	}

	s.logger.Info("邮件已发送",
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(msg.To)),
		zap.String("message_id", messageID),
	)
	return Result{Success: true, ProviderID: messageID}
}

func (s *SMTPSender) build(msg *Message) (*mail.Msg, string, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, "", fmt.Errorf("无效的发件人 %q: %w", s.cfg.From, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, "", fmt.Errorf("无效的收件人: %w", err)
	}
	m.Subject(msg.Subject)

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), domainOf(s.cfg.From))
	m.SetMessageIDWithValue(messageID)

	text := msg.TextBody
	if text == "" {
		text = msg.Subject
	}
	m.SetBodyString(mail.TypeTextPlain, text)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}

	for _, a := range msg.Attachments {
		m.AttachReadSeeker(a.Filename, bytes.NewReader(a.Data),
			mail.WithFileContentType(mail.ContentType(a.ContentType)))
	}

	return m, messageID, nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return "localhost"
}

// ── 日志降级 ──

// LogSender 未配置 SMTP 时仅记录日志，视为发送成功
type LogSender struct {
	logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, msg *Message) Result {
	if len(msg.To) == 0 {
		return Result{Error: "收件人为空"}
	}
	s.logger.Info("邮件（未发送，SMTP 未配置）",
		zap.String("subject", msg.Subject),
		zap.Strings("to", msg.To),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return Result{Success: true, ProviderID: "log"}
}
