package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
)

func setupReportService(t *testing.T) (*reportService, *mockVacationRepo, *mockSender, *mockMarker) {
	t.Helper()
	repo, users, vacations := newTestRepo()
	addAdmin(users, "hr@stars.mc")
	sender := &mockSender{}
	marker := newMockMarker()
	svc := NewReportService(repo, sender, marker, testConfig(), testLogger()).(*reportService)
	svc.now = func() time.Time { return time.Date(2025, 2, 1, 8, 0, 0, 0, svc.loc) }
	return svc, vacations, sender, marker
}

func seedMonth(vacations *mockVacationRepo) {
	half := model.HalfDayMorning
	for _, v := range []*model.VacationRequest{
		// 同一员工同月两条申请，必须各占一行
		{UserName: "Alice", UserEmail: "alice@stars.mc", Company: "Stars", StartDate: "2025-01-06", EndDate: "2025-01-08", Status: model.StatusApproved},
		{UserName: "Alice", UserEmail: "ALICE@stars.mc", Company: "Stars", StartDate: "2025-01-20", EndDate: "2025-01-20", Status: model.StatusApproved, IsHalfDay: true, HalfDayType: &half},
		{UserName: "Bob", UserEmail: "bob@stars.mc", Company: "Stars", StartDate: "2024-12-30", EndDate: "2025-01-02", Status: "validated", DurationDays: ptrFloat(1.5)},
		// 跨越整月
		{UserName: "Carol", UserEmail: "carol@stars.mc", Company: "Yachts", StartDate: "2024-12-20", EndDate: "2025-02-05", Status: " APPROVED ", DurationDays: ptrFloat(20)},
		// 不计入
		{UserName: "Dan", UserEmail: "dan@stars.mc", Company: "Stars", StartDate: "2025-01-10", EndDate: "2025-01-10", Status: model.StatusPending},
		{UserName: "Eve", UserEmail: "eve@stars.mc", Company: "Stars", StartDate: "2025-02-03", EndDate: "2025-02-04", Status: model.StatusApproved},
		{UserName: "Fay", UserEmail: "fay@stars.mc", Company: "Stars", StartDate: "2025-01-13", EndDate: "2025-01-14", Status: model.StatusDenied},
	} {
		vacations.add(v)
	}
}

func TestMonthWindow(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Paris")

	w, err := MonthWindow(2024, 2, loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", w.StartDate)
	assert.Equal(t, "2024-02-29", w.EndDate)
	assert.Equal(t, "Europe/Paris", w.Timezone)
	assert.True(t, w.End.Add(time.Nanosecond).Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, loc)))

	_, err = MonthWindow(2025, 13, loc)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestPreviousMonth_UsesReportTimezone(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Paris")
	// UTC 仍是 1 月 31 日，巴黎已是 2 月 1 日
	now := time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC)

	year, month := PreviousMonth(now, loc)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 1, month)

	year, month = PreviousMonth(time.Date(2025, 1, 15, 12, 0, 0, 0, loc), loc)
	assert.Equal(t, 2024, year)
	assert.Equal(t, 12, month)
}

func TestGetApprovedForMonth_RowPerRequest(t *testing.T) {
	svc, vacations, _, _ := setupReportService(t)
	seedMonth(vacations)

	w, _ := MonthWindow(2025, 1, svc.loc)
	rows, err := svc.GetApprovedForMonth(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.UserName)
	}
	assert.Equal(t, []string{"Alice", "Alice", "Bob", "Carol"}, names)
	assert.Equal(t, 3.0, rows[0].Days)
	assert.Equal(t, 0.5, rows[1].Days)
	assert.Equal(t, "Morning", rows[1].HalfDay)
	assert.Equal(t, 1.5, rows[2].Days)
}

func TestMonthly_TotalsMatch(t *testing.T) {
	svc, vacations, _, _ := setupReportService(t)
	seedMonth(vacations)

	report, err := svc.Monthly(context.Background(), 2025, 1)
	require.NoError(t, err)

	assert.Len(t, report.Rows, 4)
	assert.Equal(t, 25.0, report.Totals.TotalDays)
	require.Len(t, report.Totals.PerEmployee, 3)
	assert.Equal(t, 2, report.Totals.PerEmployee[0].Requests)
	assert.Equal(t, 3.5, report.Totals.PerEmployee[0].TotalDays)
	assert.NoError(t, CheckTotals(report.Rows, report.Totals))
}

func TestMonthly_ZeroDurationHalts(t *testing.T) {
	svc, vacations, sender, _ := setupReportService(t)
	seedMonth(vacations)
	broken := vacations.add(&model.VacationRequest{
		UserName: "Broken", UserEmail: "broken@stars.mc", Company: "Stars",
		StartDate: "", EndDate: "2025-01-10", Status: model.StatusApproved,
	})

	_, err := svc.Monthly(context.Background(), 2025, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrZeroDuration)

	var ie *DurationIntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, broken.ID, ie.RequestID)

	_, err = svc.SendMonthly(context.Background(), 2025, 1, false)
	assert.ErrorIs(t, err, ErrZeroDuration)
	assert.Equal(t, 0, sender.count())
}

func TestCheckTotals_Mismatch(t *testing.T) {
	rows := []VacationRow{{UserEmail: "a@stars.mc", Days: 1}, {UserEmail: "b@stars.mc", Days: 2}}
	totals := Totals(rows)
	require.NoError(t, CheckTotals(rows, totals))

	totals.PerEmployee[0].TotalDays = 1.5
	assert.ErrorIs(t, CheckTotals(rows, totals), ErrTotalsMismatch)
}

func TestTotals_NoDedupAndFractions(t *testing.T) {
	var rows []VacationRow
	for i := 0; i < 10; i++ {
		rows = append(rows, VacationRow{UserEmail: "same@stars.mc", Days: 0.1})
	}
	totals := Totals(rows)
	assert.Equal(t, 1.0, totals.TotalDays)
	require.Len(t, totals.PerEmployee, 1)
	assert.Equal(t, 10, totals.PerEmployee[0].Requests)
}

func TestRenderers_OneRowPerRequest(t *testing.T) {
	svc, vacations, _, _ := setupReportService(t)
	seedMonth(vacations)
	report, err := svc.Monthly(context.Background(), 2025, 1)
	require.NoError(t, err)

	html, err := RenderMonthlyHTML(report)
	require.NoError(t, err)
	// 明细表每行一个 <tr>，另有两个表头与员工合计行
	assert.Equal(t, len(report.Rows)+len(report.Totals.PerEmployee)+2, strings.Count(html, "<tr>"))

	data, err := RenderMonthlyCSV(report)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, len(report.Rows)+1)
	assert.Equal(t, reportColumns, records[0])

	text := RenderMonthlyText(report)
	assert.Equal(t, len(report.Rows), strings.Count(text, "\n- "))

	xlsx, err := RenderMonthlyXLSX(report)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(xlsx))
	require.NoError(t, err)
	defer f.Close()
	sheetRows, err := f.GetRows("Requests")
	require.NoError(t, err)
	assert.Len(t, sheetRows, len(report.Rows)+1)
}

func TestMonthlyCSV_Filename(t *testing.T) {
	svc, vacations, _, _ := setupReportService(t)
	seedMonth(vacations)

	_, name, err := svc.MonthlyCSV(context.Background(), 2025, 1)
	require.NoError(t, err)
	assert.Equal(t, "vacations_2025-01.csv", name)
}

func TestSendMonthly_OncePerMonth(t *testing.T) {
	svc, vacations, sender, _ := setupReportService(t)
	seedMonth(vacations)

	res, err := svc.SendMonthly(context.Background(), 2025, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, []string{"hr@stars.mc"}, res.Recipients)
	require.Equal(t, 1, sender.count())
	msg := sender.sent[0]
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "vacations_2025-01.csv", msg.Attachments[0].Filename)

	_, err = svc.SendMonthly(context.Background(), 2025, 1, false)
	assert.ErrorIs(t, err, ErrReportAlreadySent)

	_, err = svc.SendMonthly(context.Background(), 2025, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 2, sender.count())
}

func TestSendMonthly_FailureClearsMarker(t *testing.T) {
	svc, vacations, sender, marker := setupReportService(t)
	seedMonth(vacations)
	sender.fail = "smtp down"

	_, err := svc.SendMonthly(context.Background(), 2025, 1, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMailSendFailed))
	assert.Empty(t, marker.keys)

	sender.fail = ""
	_, err = svc.SendMonthly(context.Background(), 2025, 1, false)
	assert.NoError(t, err)
}

func TestSendDue(t *testing.T) {
	svc, vacations, sender, _ := setupReportService(t)
	seedMonth(vacations)

	require.NoError(t, svc.SendDue(context.Background(), time.Date(2025, 2, 5, 9, 0, 0, 0, svc.loc)))
	assert.Equal(t, 0, sender.count())

	due := time.Date(2025, 2, 1, 9, 0, 0, 0, svc.loc)
	require.NoError(t, svc.SendDue(context.Background(), due))
	require.NoError(t, svc.SendDue(context.Background(), due.Add(time.Hour)))
	assert.Equal(t, 1, sender.count())
	assert.Contains(t, sender.sent[0].Subject, "2025-01")
}

func TestSendMonthly_NoRecipients(t *testing.T) {
	repo, _, vacations := newTestRepo()
	seedMonth(vacations)
	svc := NewReportService(repo, &mockSender{}, nil, testConfig(), testLogger())

	_, err := svc.SendMonthly(context.Background(), 2025, 1, false)
	assert.ErrorIs(t, err, ErrNoRecipients)
}
