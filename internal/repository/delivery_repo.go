package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"gorm.io/gorm"
)

const deliveryInsertBatchSize = 100

type DeliveryListParams struct {
	UserID   *string
	Category *domain.Category
	Status   *domain.DeliveryStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type DeliveryRepository interface {
	CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error
	List(ctx context.Context, params DeliveryListParams) ([]domain.DeliveryRecord, int64, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

// CreateBatch inserts all records in one transaction. Either every row is written or none is.
func (r *GormDeliveryRepo) CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error {
	models := make([]DeliveryLogModel, 0, len(records))
	for _, record := range records {
		if model := deliveryModelFromDomain(record); model != nil {
			models = append(models, *model)
		}
	}

	if len(models) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, deliveryInsertBatchSize).Error
	})
}

func (r *GormDeliveryRepo) List(ctx context.Context, params DeliveryListParams) ([]domain.DeliveryRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryLogModel{})

	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryLogModel
	err := query.
		Order("created_at DESC").
		Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}

	return records, total, nil
}
