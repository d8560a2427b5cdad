package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
)

func vacation(id, company, start, end string, status model.VacationStatus) model.VacationRequest {
	return model.VacationRequest{
		ID:        id,
		UserName:  "User " + id,
		UserEmail: id + "@stars.mc",
		Company:   company,
		StartDate: start,
		EndDate:   end,
		Status:    status,
	}
}

func TestFindConflicts_BoundaryInclusive(t *testing.T) {
	a := vacation("A", "Stars", "2025-01-10", "2025-01-12", model.StatusApproved)
	b := vacation("B", "Stars", "2025-01-12", "2025-01-14", model.StatusApproved)

	got := FindConflicts(a, []model.VacationRequest{a, b})
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].RequestID)
	assert.Equal(t, ConflictSameCompany, got[0].Type)
	assert.Equal(t, SeverityHigh, got[0].Severity)
	assert.Equal(t, "2025-01-12", got[0].StartDate)
	assert.Equal(t, "2025-01-14", got[0].EndDate)
	assert.Equal(t, model.StatusApproved, got[0].Status)
	assert.NotEmpty(t, got[0].Details)
}

func TestFindConflicts_Adjacent(t *testing.T) {
	a := vacation("A", "Stars", "2025-01-10", "2025-01-11", model.StatusApproved)
	c := vacation("C", "Stars", "2025-01-12", "2025-01-14", model.StatusApproved)

	assert.Empty(t, FindConflicts(a, []model.VacationRequest{c}))
}

func TestFindConflicts_DifferentCompany(t *testing.T) {
	a := vacation("A", "Stars", "2025-01-10", "2025-01-20", model.StatusApproved)
	x := vacation("X", "Monaco Yachts", "2025-01-10", "2025-01-20", model.StatusApproved)

	assert.Empty(t, FindConflicts(a, []model.VacationRequest{x}))
}

func TestFindConflicts_IgnoresDeniedAndSelf(t *testing.T) {
	a := vacation("A", "Stars", "2025-01-10", "2025-01-20", model.StatusPending)
	d := vacation("D", "Stars", "2025-01-10", "2025-01-20", model.StatusDenied)
	p := vacation("P", "Stars", "2025-01-15", "2025-01-15", model.StatusPending)

	got := FindConflicts(a, []model.VacationRequest{a, d, p})
	require.Len(t, got, 1)
	assert.Equal(t, "P", got[0].RequestID)
}

func TestFindConflicts_KeepsCandidateOrder(t *testing.T) {
	target := vacation("T", "Stars", "2025-02-01", "2025-02-28", model.StatusApproved)
	candidates := []model.VacationRequest{
		vacation("3", "Stars", "2025-02-20", "2025-02-21", model.StatusApproved),
		vacation("1", "Stars", "2025-02-01", "2025-02-01", model.StatusPending),
		vacation("2", "Stars", "2025-01-25", "2025-02-03", model.StatusApproved),
	}

	got := FindConflicts(target, candidates)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "1", "2"}, []string{got[0].RequestID, got[1].RequestID, got[2].RequestID})
}

func TestFindConflicts_MissingEndDateIsSingleDay(t *testing.T) {
	target := vacation("T", "Stars", "2025-03-05", "", model.StatusPending)
	hit := vacation("H", "Stars", "2025-03-01", "2025-03-05", model.StatusApproved)
	miss := vacation("M", "Stars", "2025-03-06", "2025-03-07", model.StatusApproved)

	got := FindConflicts(target, []model.VacationRequest{hit, miss})
	require.Len(t, got, 1)
	assert.Equal(t, "H", got[0].RequestID)
}

func TestFindAllConflicts(t *testing.T) {
	list := []model.VacationRequest{
		vacation("A", "Stars", "2025-01-10", "2025-01-12", model.StatusApproved),
		vacation("B", "Stars", "2025-01-12", "2025-01-14", model.StatusPending),
		vacation("C", "Stars", "2025-03-01", "2025-03-02", model.StatusApproved),
	}

	got := FindAllConflicts(list)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "A")
	assert.Contains(t, got, "B")
	assert.NotContains(t, got, "C")
}
