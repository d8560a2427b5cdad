package mailer

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
)

func TestNew_SelectsLogSenderWithoutSMTP(t *testing.T) {
	s := New(&config.MailConfig{}, zap.NewNop())
	if _, ok := s.(*LogSender); !ok {
		t.Fatalf("未配置 SMTP 时应返回 LogSender，实际=%T", s)
	}

	res := s.Send(context.Background(), &Message{To: []string{"hr@stars.mc"}, Subject: "test"})
	if !res.Success || res.ProviderID != "log" {
		t.Errorf("LogSender 应返回成功，实际=%+v", res)
	}
}

func TestSend_EmptyRecipients(t *testing.T) {
	s := New(&config.MailConfig{SMTPHost: "smtp.example.com", From: "noreply@stars.mc"}, zap.NewNop())
	res := s.Send(context.Background(), &Message{Subject: "test"})
	if res.Success || res.Error == "" {
		t.Errorf("收件人为空应失败，实际=%+v", res)
	}
}

func TestSMTPSender_Build(t *testing.T) {
	s := &SMTPSender{cfg: &config.MailConfig{From: "Vacations <noreply@stars.mc>"}, logger: zap.NewNop()}
	_, id, err := s.build(&Message{
		To:       []string{"hr@stars.mc"},
		Subject:  "月报",
		HTMLBody: "<p>hi</p>",
		Attachments: []Attachment{
			{Filename: "report.csv", ContentType: "text/csv", Data: []byte("a,b\n")},
		},
	})
	if err != nil {
		t.Fatalf("build 失败: %v", err)
	}
	if got := domainOf("Vacations <noreply@stars.mc>"); got != "stars.mc" {
		t.Errorf("domainOf 期望 stars.mc，实际=%s", got)
	}
	if id == "" {
		t.Error("Message-ID 不应为空")
	}
}
