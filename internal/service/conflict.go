package service

import (
	"fmt"
	"time"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
)

// 冲突类型与严重程度
const (
	ConflictSameCompany = "same-company"
	SeverityHigh        = "high"
)

// ConflictEvent 同公司日期重叠的一条冲突记录
type ConflictEvent struct {
	Type      string               `json:"type"`
	Severity  string               `json:"severity"`
	Details   string               `json:"details"`
	RequestID string               `json:"request_id"`
	UserName  string               `json:"user_name"`
	UserEmail string               `json:"user_email"`
	StartDate string               `json:"start_date"`
	EndDate   string               `json:"end_date"`
	Status    model.VacationStatus `json:"status"`
}

// FindConflicts 找出与 target 同公司且日期（闭区间）重叠的 Approved/Pending 申请
// 输出顺序与 candidates 一致
func FindConflicts(target model.VacationRequest, candidates []model.VacationRequest) []ConflictEvent {
	tStart, tEnd, ok := dateRange(target.StartDate, target.EndDate)
	if !ok {
		return nil
	}

	var out []ConflictEvent
	for i := range candidates {
		c := &candidates[i]
		if c.ID == target.ID || c.Company != target.Company {
			continue
		}
		status := model.NormalizeStatus(string(c.Status))
		if status != model.StatusApproved && status != model.StatusPending {
			continue
		}
		cStart, cEnd, ok := dateRange(c.StartDate, c.EndDate)
		if !ok {
			continue
		}
		if cStart <= tEnd && cEnd >= tStart {
			out = append(out, ConflictEvent{
				Type:     ConflictSameCompany,
				Severity: SeverityHigh,
				Details: fmt.Sprintf("%s (%s) 的假期 %s ~ %s 与该申请重叠",
					c.UserName, status, cStart, cEnd),
				RequestID: c.ID,
				UserName:  c.UserName,
				UserEmail: c.UserEmail,
				StartDate: cStart,
				EndDate:   cEnd,
				Status:    status,
			})
		}
	}
	return out
}

// FindAllConflicts 对集合中每个申请计算冲突，仅包含存在冲突的申请
func FindAllConflicts(requests []model.VacationRequest) map[string][]ConflictEvent {
	result := make(map[string][]ConflictEvent)
	for i := range requests {
		if c := FindConflicts(requests[i], requests); len(c) > 0 {
			result[requests[i].ID] = c
		}
	}
	return result
}

// dateRange 校验日期后返回可直接按字典序比较的 YYYY-MM-DD 字符串
// 缺少结束日期时视为当天
func dateRange(start, end string) (string, string, bool) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return "", "", false
	}
	e := s
	if end != "" {
		if e, err = time.Parse(dateLayout, end); err != nil {
			return "", "", false
		}
	}
	if e.Before(s) {
		return "", "", false
	}
	return s.Format(dateLayout), e.Format(dateLayout), true
}
