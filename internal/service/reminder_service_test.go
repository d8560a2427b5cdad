package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
)

func TestSendPendingReminders(t *testing.T) {
	repo, users, vacations := newTestRepo()
	addAdmin(users, "hr@stars.mc")
	sender := &mockSender{}
	svc := NewReminderService(repo, sender, testConfig(), testLogger()).(*reminderService)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	old := vacations.add(&model.VacationRequest{
		UserName: "Old", UserEmail: "old@stars.mc", Company: "Stars",
		StartDate: "2025-04-01", EndDate: "2025-04-02", Status: model.StatusPending,
		BaseModel: model.BaseModel{CreatedAt: now.Add(-72 * time.Hour)},
	})
	// 提交不足 48 小时
	vacations.add(&model.VacationRequest{
		UserName: "Fresh", UserEmail: "fresh@stars.mc", Company: "Stars",
		StartDate: "2025-04-01", EndDate: "2025-04-01", Status: model.StatusPending,
		BaseModel: model.BaseModel{CreatedAt: now.Add(-time.Hour)},
	})
	// 已审批
	vacations.add(&model.VacationRequest{
		UserName: "Done", UserEmail: "done@stars.mc", Company: "Stars",
		StartDate: "2025-04-01", EndDate: "2025-04-01", Status: model.StatusApproved,
		BaseModel: model.BaseModel{CreatedAt: now.Add(-96 * time.Hour)},
	})

	result, err := svc.SendPendingReminders(context.Background())
	if err != nil {
		t.Fatalf("SendPendingReminders 失败: %v", err)
	}
	if result.Pending != 1 || result.Reminded != 1 || !result.Sent {
		t.Errorf("期望提醒 1 条，实际=%+v", result)
	}
	if sender.count() != 1 {
		t.Fatalf("期望发送 1 封邮件，实际=%d", sender.count())
	}
	if !strings.Contains(sender.sent[0].HTMLBody, "Old") || strings.Contains(sender.sent[0].HTMLBody, "Fresh") {
		t.Error("提醒邮件内容不正确")
	}
	if r := vacations.get(old.ID).LastRemindedAt; r == nil || !r.Equal(now) {
		t.Errorf("应更新 last_reminded_at，实际=%v", r)
	}

	// 间隔内不重复提醒
	result, err = svc.SendPendingReminders(context.Background())
	if err != nil {
		t.Fatalf("SendPendingReminders 失败: %v", err)
	}
	if result.Pending != 0 || sender.count() != 1 {
		t.Errorf("24 小时内不应重复提醒，实际=%+v", result)
	}
}

func TestSendPendingReminders_MailFailureKeepsTimestamp(t *testing.T) {
	repo, users, vacations := newTestRepo()
	addAdmin(users, "hr@stars.mc")
	sender := &mockSender{fail: "smtp down"}
	svc := NewReminderService(repo, sender, testConfig(), testLogger())

	v := vacations.add(&model.VacationRequest{
		UserName: "Old", UserEmail: "old@stars.mc", Company: "Stars",
		StartDate: "2025-04-01", EndDate: "2025-04-02", Status: model.StatusPending,
		BaseModel: model.BaseModel{CreatedAt: time.Now().Add(-72 * time.Hour)},
	})

	result, err := svc.SendPendingReminders(context.Background())
	if err == nil {
		t.Fatal("邮件发送失败应返回错误")
	}
	if result == nil || result.Sent || result.Error == "" {
		t.Errorf("结果应记录失败原因，实际=%+v", result)
	}
	if vacations.get(v.ID).LastRemindedAt != nil {
		t.Error("发送失败时不应更新 last_reminded_at")
	}
}
