package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/database"
	pkgerrors "github.com/PierreCStars/stars-vacation-management-sub001/pkg/errors"
)

// VacationFilter 管理端列表筛选条件；零值字段不参与过滤
type VacationFilter struct {
	Status    model.VacationStatus
	Company   string
	UserEmail string
	From      string // YYYY-MM-DD，与 To 一起按区间重叠过滤
	To        string
}

// RawVacationLabels 未经归一化的原始列，供历史数据回填使用
type RawVacationLabels struct {
	ID           string
	Status       string
	Type         string
	DurationDays *float64
	IsHalfDay    bool
	StartDate    string
	EndDate      string
}

// VacationRepository 假期申请数据访问接口
type VacationRepository interface {
	Create(ctx context.Context, v *model.VacationRequest) error
	GetByID(ctx context.Context, id string) (*model.VacationRequest, error)
	List(ctx context.Context, filter VacationFilter, offset, limit int) ([]model.VacationRequest, int64, error)
	ListAll(ctx context.Context) ([]model.VacationRequest, error)
	ListByUserEmail(ctx context.Context, email string) ([]model.VacationRequest, error)
	// ListByDateRange 返回与 [from, to] 存在交集的申请（按日期字符串比较）
	ListByDateRange(ctx context.Context, from, to string) ([]model.VacationRequest, error)
	// ListApprovedRaw 按原始 status 列宽松匹配（大小写不敏感），用于月报
	ListApprovedRaw(ctx context.Context, from, to string, statuses []string) ([]model.VacationRequest, error)
	ListByCompany(ctx context.Context, company string) ([]model.VacationRequest, error)
	ListPendingForReminder(ctx context.Context, createdBefore, remindedBefore time.Time) ([]model.VacationRequest, error)
	ListEndedBefore(ctx context.Context, status model.VacationStatus, before string) ([]model.VacationRequest, error)
	ListWithLegacyLinkage(ctx context.Context) ([]model.VacationRequest, error)
	ListRawLabels(ctx context.Context) ([]RawVacationLabels, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	// BatchUpdate 按 database.MaxBatchSize 分块依次提交，失败时已提交批次不回滚
	BatchUpdate(ctx context.Context, ids []string, fields map[string]interface{}) (int, error)
	BatchDelete(ctx context.Context, ids []string) (int, error)
}

// vacationRepo VacationRepository 的 GORM 实现
type vacationRepo struct {
	db *gorm.DB
}

// NewVacationRepo 创建 VacationRepository 实例
func NewVacationRepo(db *gorm.DB) VacationRepository {
	return &vacationRepo{db: db}
}

func (r *vacationRepo) Create(ctx context.Context, v *model.VacationRequest) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *vacationRepo) GetByID(ctx context.Context, id string) (*model.VacationRequest, error) {
	var v model.VacationRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *vacationRepo) List(ctx context.Context, filter VacationFilter, offset, limit int) ([]model.VacationRequest, int64, error) {
	var list []model.VacationRequest
	var total int64

	db := r.db.WithContext(ctx).Model(&model.VacationRequest{})
	if filter.Status != "" {
		db = whereStatus(db, filter.Status)
	}
	if filter.Company != "" {
		db = db.Where("company = ?", filter.Company)
	}
	if filter.UserEmail != "" {
		db = db.Where("LOWER(user_email) = LOWER(?)", filter.UserEmail)
	}
	if filter.From != "" {
		db = db.Where("end_date >= ?", filter.From)
	}
	if filter.To != "" {
		db = db.Where("start_date <= ?", filter.To)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).
		Order("start_date DESC, created_at DESC").
		Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

func (r *vacationRepo) ListAll(ctx context.Context) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&list).Error
	return list, err
}

func (r *vacationRepo) ListByUserEmail(ctx context.Context, email string) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := r.db.WithContext(ctx).
		Where("LOWER(user_email) = LOWER(?)", email).
		Order("start_date DESC").
		Find(&list).Error
	return list, err
}

func (r *vacationRepo) ListByDateRange(ctx context.Context, from, to string) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := r.db.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", to, from).
		Order("start_date ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *vacationRepo) ListApprovedRaw(ctx context.Context, from, to string, statuses []string) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := r.db.WithContext(ctx).
		Where("LOWER(TRIM(status)) IN ?", statuses).
		Where("start_date <= ? AND end_date >= ?", to, from).
		Order("user_name ASC, start_date ASC").
		Find(&list).Error
	return list, err
}

func (r *vacationRepo) ListByCompany(ctx context.Context, company string) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := r.db.WithContext(ctx).
		Where("company = ?", company).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *vacationRepo) ListPendingForReminder(ctx context.Context, createdBefore, remindedBefore time.Time) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := whereStatus(r.db.WithContext(ctx), model.StatusPending).
		Where("created_at <= ?", createdBefore).
		Where("last_reminded_at IS NULL OR last_reminded_at <= ?", remindedBefore).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *vacationRepo) ListEndedBefore(ctx context.Context, status model.VacationStatus, before string) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := whereStatus(r.db.WithContext(ctx), status).
		Where("end_date < ?", before).
		Order("end_date ASC").
		Find(&list).Error
	return list, err
}

// whereStatus 按归一化语义匹配 status 列，未回填的历史写法同样命中；
// Pending 还包括无法识别的写法
func whereStatus(db *gorm.DB, status model.VacationStatus) *gorm.DB {
	if model.NormalizeStatus(string(status)) == model.StatusPending {
		others := append(model.StatusSpellings(model.StatusApproved), model.StatusSpellings(model.StatusDenied)...)
		return db.Where("LOWER(TRIM(status)) NOT IN ?", others)
	}
	return db.Where("LOWER(TRIM(status)) IN ?", model.StatusSpellings(model.NormalizeStatus(string(status))))
}

func (r *vacationRepo) ListWithLegacyLinkage(ctx context.Context) ([]model.VacationRequest, error) {
	var list []model.VacationRequest
	err := r.db.WithContext(ctx).
		Where("google_calendar_event_id IS NOT NULL OR google_event_id IS NOT NULL").
		Find(&list).Error
	return list, err
}

func (r *vacationRepo) ListRawLabels(ctx context.Context) ([]RawVacationLabels, error) {
	var rows []RawVacationLabels
	err := r.db.WithContext(ctx).
		Table(model.VacationRequest{}.TableName()).
		Select("id, status, type, duration_days, is_half_day, start_date, end_date").
		Order("created_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *vacationRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.VacationRequest{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *vacationRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.VacationRequest{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *vacationRepo) BatchUpdate(ctx context.Context, ids []string, fields map[string]interface{}) (int, error) {
	done := 0
	for _, chunk := range database.Chunks(ids, database.MaxBatchSize) {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Model(&model.VacationRequest{}).
				Where("id IN ?", chunk).
				Updates(fields).Error
		})
		if err != nil {
			return done, fmt.Errorf("%w: 已提交 %d/%d: %v", pkgerrors.ErrBatchPartial, done, len(ids), err)
		}
		done += len(chunk)
	}
	return done, nil
}

func (r *vacationRepo) BatchDelete(ctx context.Context, ids []string) (int, error) {
	done := 0
	for _, chunk := range database.Chunks(ids, database.MaxBatchSize) {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Where("id IN ?", chunk).Delete(&model.VacationRequest{}).Error
		})
		if err != nil {
			return done, fmt.Errorf("%w: 已删除 %d/%d: %v", pkgerrors.ErrBatchPartial, done, len(ids), err)
		}
		done += len(chunk)
	}
	return done, nil
}
