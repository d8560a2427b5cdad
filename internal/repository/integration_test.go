//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=vacations password=vacations dbname=vacations_test sslmode=disable TimeZone=Europe/Paris"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.AutoMigrate(&model.User{}, &model.VacationRequest{}); err != nil {
		fmt.Fprintf(os.Stderr, "AutoMigrate 失败: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// seedVacations 写入一组测试申请并返回清理函数
func seedVacations(t *testing.T, company string, items ...model.VacationRequest) ([]model.VacationRequest, func()) {
	t.Helper()
	ctx := context.Background()

	created := make([]model.VacationRequest, 0, len(items))
	for i := range items {
		v := items[i]
		v.Company = company
		if v.UserName == "" {
			v.UserName = "测试员工"
		}
		if v.UserEmail == "" {
			v.UserEmail = fmt.Sprintf("emp%d@stars.mc", i)
		}
		if err := testDB.WithContext(ctx).Create(&v).Error; err != nil {
			t.Fatalf("创建申请失败: %v", err)
		}
		created = append(created, v)
	}

	cleanup := func() {
		testDB.Where("company = ?", company).Delete(&model.VacationRequest{})
	}
	return created, cleanup
}

func uniqueCompany() string {
	return fmt.Sprintf("company-%d", time.Now().UnixNano())
}

// ═══════════════════════════════════════════════════════════
// Test: Normalization at the persistence boundary
// ═══════════════════════════════════════════════════════════

func TestVacation_LegacyStatusNormalizedOnRead(t *testing.T) {
	company := uniqueCompany()
	_, cleanup := seedVacations(t, company)
	defer cleanup()

	ctx := context.Background()
	err := testDB.Exec(
		`INSERT INTO vacation_requests (user_name, user_email, company, start_date, end_date, type, status)
		 VALUES ('遗留', 'legacy@stars.mc', ?, '2025-01-10', '2025-01-12', 'PAID_LEAVE', 'validated')`,
		company,
	).Error
	if err != nil {
		t.Fatalf("写入遗留数据失败: %v", err)
	}

	repo := repository.NewRepository(testDB)
	list, err := repo.Vacation.ListByCompany(ctx, company)
	if err != nil {
		t.Fatalf("ListByCompany 失败: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("期望 1 条，实际 %d", len(list))
	}
	if list[0].Status != model.StatusApproved || list[0].Type != model.TypePaidVacation {
		t.Errorf("期望归一为 Approved/Paid Vacation，实际 %s/%s", list[0].Status, list[0].Type)
	}

	raw, err := repo.Vacation.ListApprovedRaw(ctx, "2025-01-01", "2025-01-31", []string{"approved", "validated"})
	if err != nil {
		t.Fatalf("ListApprovedRaw 失败: %v", err)
	}
	found := false
	for _, v := range raw {
		if v.Company == company {
			found = true
		}
	}
	if !found {
		t.Error("宽松状态匹配应包含 validated 记录")
	}
}

func TestVacation_StatusFiltersMatchLegacySpellings(t *testing.T) {
	company := uniqueCompany()
	_, cleanup := seedVacations(t, company)
	defer cleanup()

	ctx := context.Background()
	old := time.Now().Add(-72 * time.Hour)
	err := testDB.Exec(
		`INSERT INTO vacation_requests (user_name, user_email, company, start_date, end_date, type, status, created_at, updated_at)
		 VALUES ('拒绝', 'a@stars.mc', ?, '2023-01-10', '2023-01-12', 'Other', ' Rejected ', ?, ?),
		        ('待审', 'b@stars.mc', ?, '2023-02-10', '2023-02-12', 'Other', 'waiting', ?, ?),
		        ('未知', 'c@stars.mc', ?, '2023-03-10', '2023-03-12', 'Other', 'archived', ?, ?),
		        ('通过', 'd@stars.mc', ?, '2023-04-10', '2023-04-12', 'Other', 'OK', ?, ?)`,
		company, old, old, company, old, old, company, old, old, company, old, old,
	).Error
	if err != nil {
		t.Fatalf("写入遗留数据失败: %v", err)
	}

	repo := repository.NewRepository(testDB)
	countCompany := func(list []model.VacationRequest) int {
		n := 0
		for _, v := range list {
			if v.Company == company {
				n++
			}
		}
		return n
	}

	ended, err := repo.Vacation.ListEndedBefore(ctx, model.StatusDenied, "2024-01-01")
	if err != nil {
		t.Fatalf("ListEndedBefore 失败: %v", err)
	}
	if got := countCompany(ended); got != 1 {
		t.Errorf("Denied 清理期望 1 条（含 Rejected 写法），实际 %d", got)
	}

	pending, err := repo.Vacation.ListPendingForReminder(ctx, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("ListPendingForReminder 失败: %v", err)
	}
	if got := countCompany(pending); got != 2 {
		t.Errorf("Pending 提醒期望 2 条（waiting 与无法识别的写法），实际 %d", got)
	}

	list, _, err := repo.Vacation.List(ctx, repository.VacationFilter{Status: model.StatusApproved, Company: company}, 0, 10)
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if len(list) != 1 || list[0].Status != model.StatusApproved {
		t.Errorf("Approved 过滤期望 1 条（OK 写法），实际 %d", len(list))
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Date range queries
// ═══════════════════════════════════════════════════════════

func TestVacation_ListByDateRange_Inclusive(t *testing.T) {
	company := uniqueCompany()
	_, cleanup := seedVacations(t, company,
		model.VacationRequest{StartDate: "2025-01-28", EndDate: "2025-02-01", Status: model.StatusApproved},
		model.VacationRequest{StartDate: "2025-02-28", EndDate: "2025-03-02", Status: model.StatusApproved},
		model.VacationRequest{StartDate: "2025-03-03", EndDate: "2025-03-04", Status: model.StatusApproved},
	)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	list, err := repo.Vacation.ListByDateRange(context.Background(), "2025-02-01", "2025-02-28")
	if err != nil {
		t.Fatalf("ListByDateRange 失败: %v", err)
	}

	n := 0
	for _, v := range list {
		if v.Company == company {
			n++
		}
	}
	if n != 2 {
		t.Errorf("期望 2 条与二月重叠的申请，实际 %d", n)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Batch Operations
// ═══════════════════════════════════════════════════════════

func TestVacation_BatchUpdateAndDelete(t *testing.T) {
	company := uniqueCompany()
	items := make([]model.VacationRequest, 12)
	for i := range items {
		items[i] = model.VacationRequest{StartDate: "2024-05-01", EndDate: "2024-05-02", Status: model.StatusDenied}
	}
	created, cleanup := seedVacations(t, company, items...)
	defer cleanup()

	ids := make([]string, len(created))
	for i, v := range created {
		ids[i] = v.ID
	}

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	now := time.Now()
	n, err := repo.Vacation.BatchUpdate(ctx, ids, map[string]interface{}{"last_reminded_at": now})
	if err != nil || n != len(ids) {
		t.Fatalf("BatchUpdate 期望 %d 条成功，实际 %d, err=%v", len(ids), n, err)
	}

	old, err := repo.Vacation.ListEndedBefore(ctx, model.StatusDenied, "2024-06-01")
	if err != nil {
		t.Fatalf("ListEndedBefore 失败: %v", err)
	}
	if len(old) < len(ids) {
		t.Errorf("期望至少 %d 条过期拒绝申请，实际 %d", len(ids), len(old))
	}

	n, err = repo.Vacation.BatchDelete(ctx, ids)
	if err != nil || n != len(ids) {
		t.Fatalf("BatchDelete 期望 %d 条成功，实际 %d, err=%v", len(ids), n, err)
	}

	_, err = repo.Vacation.GetByID(ctx, ids[0])
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("删除后期望 ErrRecordNotFound，实际 %v", err)
	}
}

func TestVacation_UpdateFields_NotFound(t *testing.T) {
	repo := repository.NewRepository(testDB)
	err := repo.Vacation.UpdateFields(context.Background(), "00000000-0000-0000-0000-000000000000",
		map[string]interface{}{"reason": "x"})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("期望 ErrRecordNotFound，实际 %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Users
// ═══════════════════════════════════════════════════════════

func TestUser_GetByEmail_CaseInsensitive(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	email := fmt.Sprintf("Admin%d@Stars.mc", time.Now().UnixNano())
	u := &model.User{Name: "管理员", Email: email, Company: "Stars", PasswordHash: "$2a$10$placeholder", Role: model.RoleAdmin}
	if err := repo.User.Create(ctx, u); err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	defer testDB.Unscoped().Where("user_id = ?", u.UserID).Delete(&model.User{})

	got, err := repo.User.GetByEmail(ctx, u.Email)
	if err != nil {
		t.Fatalf("GetByEmail 失败: %v", err)
	}
	if got.UserID != u.UserID {
		t.Errorf("ID 不匹配: expected %s, got %s", u.UserID, got.UserID)
	}

	admins, err := repo.User.ListAdmins(ctx)
	if err != nil || len(admins) == 0 {
		t.Errorf("ListAdmins 应至少返回 1 个管理员, err=%v", err)
	}
}
