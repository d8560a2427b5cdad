package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/mailer"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User // key: user_id
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		user.UserID = "user-" + user.Email
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) ListAdmins(_ context.Context) ([]model.User, error) {
	var result []model.User
	for _, u := range m.users {
		if u.Role == model.RoleAdmin {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	m.users[user.UserID] = user
	return nil
}

// ── Mock VacationRepository ──

// mockVacationRepo 按插入顺序保存申请；UpdateFields 会把字段写回结构体
type mockVacationRepo struct {
	mu      sync.Mutex
	items   map[string]*model.VacationRequest
	order   []string
	raw     []repository.RawVacationLabels
	seq     int
	updates []map[string]interface{}

	failUpdate error
	// batchFailAfter >= 0 时 BatchUpdate / BatchDelete 在处理该数量后失败
	batchFailAfter int
}

func newMockVacationRepo() *mockVacationRepo {
	return &mockVacationRepo{items: make(map[string]*model.VacationRequest), batchFailAfter: -1}
}

func (m *mockVacationRepo) add(v *model.VacationRequest) *model.VacationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		m.seq++
		v.ID = fmt.Sprintf("vac-%d", m.seq)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	m.items[v.ID] = v
	m.order = append(m.order, v.ID)
	return v
}

func (m *mockVacationRepo) snapshot(filter func(*model.VacationRequest) bool) []model.VacationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.VacationRequest
	for _, id := range m.order {
		v, ok := m.items[id]
		if !ok {
			continue
		}
		if filter == nil || filter(v) {
			out = append(out, *v)
		}
	}
	return out
}

func (m *mockVacationRepo) get(id string) *model.VacationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *mockVacationRepo) Create(_ context.Context, v *model.VacationRequest) error {
	m.add(v)
	return nil
}

func (m *mockVacationRepo) GetByID(_ context.Context, id string) (*model.VacationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockVacationRepo) List(_ context.Context, filter repository.VacationFilter, offset, limit int) ([]model.VacationRequest, int64, error) {
	all := m.snapshot(func(v *model.VacationRequest) bool {
		if filter.Status != "" && model.NormalizeStatus(string(v.Status)) != filter.Status {
			return false
		}
		if filter.Company != "" && v.Company != filter.Company {
			return false
		}
		if filter.UserEmail != "" && !strings.EqualFold(v.UserEmail, filter.UserEmail) {
			return false
		}
		return true
	})
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockVacationRepo) ListAll(_ context.Context) ([]model.VacationRequest, error) {
	return m.snapshot(nil), nil
}

func (m *mockVacationRepo) ListByUserEmail(_ context.Context, email string) ([]model.VacationRequest, error) {
	return m.snapshot(func(v *model.VacationRequest) bool { return strings.EqualFold(v.UserEmail, email) }), nil
}

func (m *mockVacationRepo) ListByDateRange(_ context.Context, from, to string) ([]model.VacationRequest, error) {
	return m.snapshot(func(v *model.VacationRequest) bool { return v.StartDate <= to && v.EndDate >= from }), nil
}

func (m *mockVacationRepo) ListApprovedRaw(_ context.Context, from, to string, statuses []string) ([]model.VacationRequest, error) {
	return m.snapshot(func(v *model.VacationRequest) bool {
		s := strings.ToLower(strings.TrimSpace(string(v.Status)))
		matched := false
		for _, want := range statuses {
			if s == want {
				matched = true
			}
		}
		return matched && v.StartDate <= to && v.EndDate >= from
	}), nil
}

func (m *mockVacationRepo) ListByCompany(_ context.Context, company string) ([]model.VacationRequest, error) {
	return m.snapshot(func(v *model.VacationRequest) bool { return v.Company == company }), nil
}

func (m *mockVacationRepo) ListPendingForReminder(_ context.Context, createdBefore, remindedBefore time.Time) ([]model.VacationRequest, error) {
	return m.snapshot(func(v *model.VacationRequest) bool {
		if model.NormalizeStatus(string(v.Status)) != model.StatusPending || !v.CreatedAt.Before(createdBefore) {
			return false
		}
		return v.LastRemindedAt == nil || v.LastRemindedAt.Before(remindedBefore)
	}), nil
}

func (m *mockVacationRepo) ListEndedBefore(_ context.Context, status model.VacationStatus, before string) ([]model.VacationRequest, error) {
	return m.snapshot(func(v *model.VacationRequest) bool { return model.NormalizeStatus(string(v.Status)) == status && v.EndDate < before }), nil
}

func (m *mockVacationRepo) ListWithLegacyLinkage(_ context.Context) ([]model.VacationRequest, error) {
	return m.snapshot(func(v *model.VacationRequest) bool {
		return v.LegacyGoogleCalendarEventID != nil || v.LegacyGoogleEventID != nil
	}), nil
}

func (m *mockVacationRepo) ListRawLabels(_ context.Context) ([]repository.RawVacationLabels, error) {
	return m.raw, nil
}

func (m *mockVacationRepo) UpdateFields(_ context.Context, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	v, ok := m.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.updates = append(m.updates, fields)
	applyFields(v, fields)
	return nil
}

func (m *mockVacationRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockVacationRepo) BatchUpdate(_ context.Context, ids []string, fields map[string]interface{}) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if m.batchFailAfter >= 0 && i >= m.batchFailAfter {
			return i, fmt.Errorf("batch failed after %d", i)
		}
		if v, ok := m.items[id]; ok {
			applyFields(v, fields)
		}
		for j := range m.raw {
			if m.raw[j].ID == id {
				applyRawFields(&m.raw[j], fields)
			}
		}
	}
	return len(ids), nil
}

func (m *mockVacationRepo) BatchDelete(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if m.batchFailAfter >= 0 && i >= m.batchFailAfter {
			return i, fmt.Errorf("batch failed after %d", i)
		}
		delete(m.items, id)
	}
	return len(ids), nil
}

// applyFields 模拟 GORM Updates(map) 的列写入
func applyFields(v *model.VacationRequest, fields map[string]interface{}) {
	for k, val := range fields {
		switch k {
		case "status":
			switch s := val.(type) {
			case model.VacationStatus:
				v.Status = s
			case string:
				v.Status = model.VacationStatus(s)
			}
		case "type":
			switch s := val.(type) {
			case model.VacationType:
				v.Type = s
			case string:
				v.Type = model.VacationType(s)
			}
		case "start_date":
			v.StartDate = val.(string)
		case "end_date":
			v.EndDate = val.(string)
		case "is_half_day":
			v.IsHalfDay = val.(bool)
		case "half_day_type":
			v.HalfDayType, _ = val.(*model.HalfDayType)
		case "duration_days":
			d := val.(float64)
			v.DurationDays = &d
		case "reason":
			v.Reason = val.(string)
		case "calendar_event_id":
			v.CalendarEventID = strPtr(val)
		case "google_calendar_event_id":
			v.LegacyGoogleCalendarEventID = strPtr(val)
		case "google_event_id":
			v.LegacyGoogleEventID = strPtr(val)
		case "synced_start_date":
			v.SyncedStartDate = strPtr(val)
		case "synced_end_date":
			v.SyncedEndDate = strPtr(val)
		case "calendar_sync_error":
			v.CalendarSyncError = strPtr(val)
		case "calendar_synced_at":
			t := val.(time.Time)
			v.CalendarSyncedAt = &t
		case "reviewed_by":
			v.ReviewedBy = strPtr(val)
		case "reviewer_email":
			v.ReviewerEmail = strPtr(val)
		case "admin_comment":
			v.AdminComment = strPtr(val)
		case "reviewed_at":
			t := val.(time.Time)
			v.ReviewedAt = &t
		case "last_reminded_at":
			t := val.(time.Time)
			v.LastRemindedAt = &t
		}
	}
}

func applyRawFields(r *repository.RawVacationLabels, fields map[string]interface{}) {
	for k, val := range fields {
		switch k {
		case "status":
			r.Status = val.(string)
		case "type":
			r.Type = val.(string)
		case "duration_days":
			d := val.(float64)
			r.DurationDays = &d
		}
	}
}

func strPtr(val interface{}) *string {
	switch s := val.(type) {
	case string:
		return &s
	case *string:
		return s
	default:
		return nil
	}
}

// ── Mock Mailer / OnceMarker ──

type mockSender struct {
	mu   sync.Mutex
	sent []*mailer.Message
	fail string
}

func (m *mockSender) Send(_ context.Context, msg *mailer.Message) mailer.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != "" {
		return mailer.Result{Error: m.fail}
	}
	m.sent = append(m.sent, msg)
	return mailer.Result{Success: true, ProviderID: fmt.Sprintf("msg-%d", len(m.sent))}
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockMarker struct {
	keys map[string]bool
}

func newMockMarker() *mockMarker { return &mockMarker{keys: make(map[string]bool)} }

func (m *mockMarker) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockMarker) ClearOnce(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

// ── 测试辅助 ──

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{BaseURL: "http://localhost:8080"},
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret-key-for-unit-testing-2026",
			AccessTokenTTL:          15 * time.Minute,
			RefreshTokenTTLDefault:  24 * time.Hour,
			RefreshTokenTTLRemember: 7 * 24 * time.Hour,
		},
		Mail: config.MailConfig{From: "vacations@stars.mc"},
		Report: config.ReportConfig{
			Timezone:         "Europe/Paris",
			MonthlyDay:       1,
			ReminderAfter:    48 * time.Hour,
			ReminderInterval: 24 * time.Hour,
		},
	}
}

func newTestRepo() (*repository.Repository, *mockUserRepo, *mockVacationRepo) {
	users := newMockUserRepo()
	vacations := newMockVacationRepo()
	return &repository.Repository{User: users, Vacation: vacations}, users, vacations
}

func addAdmin(users *mockUserRepo, email string) {
	_ = users.Create(context.Background(), &model.User{
		Name:  "Admin",
		Email: email,
		Role:  model.RoleAdmin,
	})
}

func ptrFloat(f float64) *float64 { return &f }

func ptrString(s string) *string { return &s }

func testLogger() *zap.Logger { return zap.NewNop() }
