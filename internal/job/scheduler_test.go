package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
)

// ── Mock ──

type mockReminder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockReminder) SendPendingReminders(_ context.Context) (*service.ReminderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &service.ReminderResult{Pending: 1, Reminded: 1, Sent: true}, nil
}

func (m *mockReminder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockReport 仅实现 SendDue
type mockReport struct {
	service.ReportService
	mu    sync.Mutex
	dueAt []time.Time
	err   error
}

func (m *mockReport) SendDue(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dueAt = append(m.dueAt, now)
	return m.err
}

func (m *mockReport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dueAt)
}

// ── Tests ──

func TestRunOnce_RunsBothJobs(t *testing.T) {
	reminder := &mockReminder{}
	report := &mockReport{}
	s := NewScheduler(&config.JobConfig{Enabled: true, Interval: time.Hour}, reminder, report, zap.NewNop())
	fixed := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.RunOnce(context.Background())

	if reminder.count() != 1 {
		t.Errorf("提醒应执行 1 次, got %d", reminder.count())
	}
	if report.count() != 1 || !report.dueAt[0].Equal(fixed) {
		t.Errorf("月报应以当前时间调用 SendDue, got %v", report.dueAt)
	}
}

func TestRunOnce_ReminderFailureDoesNotBlockReport(t *testing.T) {
	reminder := &mockReminder{err: errors.New("db down")}
	report := &mockReport{}
	s := NewScheduler(&config.JobConfig{Enabled: true}, reminder, report, zap.NewNop())

	s.RunOnce(context.Background())

	if report.count() != 1 {
		t.Errorf("提醒失败后月报仍应执行, got %d", report.count())
	}
}

func TestStartStop(t *testing.T) {
	reminder := &mockReminder{}
	report := &mockReport{}
	s := NewScheduler(&config.JobConfig{Enabled: true, Interval: 10 * time.Millisecond}, reminder, report, zap.NewNop())

	s.Start()
	s.Start() // 重复启动无副作用
	deadline := time.Now().Add(2 * time.Second)
	for reminder.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if reminder.count() < 2 {
		t.Errorf("应至少执行 2 个周期, got %d", reminder.count())
	}
	stopped := reminder.count()
	time.Sleep(30 * time.Millisecond)
	if reminder.count() != stopped {
		t.Error("Stop 之后不应继续执行")
	}
	s.Stop() // 重复停止无副作用
}

func TestStart_Disabled(t *testing.T) {
	reminder := &mockReminder{}
	s := NewScheduler(&config.JobConfig{Enabled: false}, reminder, &mockReport{}, zap.NewNop())

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	if reminder.count() != 0 {
		t.Errorf("未启用时不应执行, got %d", reminder.count())
	}
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(&config.JobConfig{Enabled: true}, nil, nil, zap.NewNop())
	if s.interval != defaultInterval {
		t.Errorf("expected %v, got %v", defaultInterval, s.interval)
	}
	// 依赖为 nil 时 RunOnce 不应 panic
	s.RunOnce(context.Background())
}
