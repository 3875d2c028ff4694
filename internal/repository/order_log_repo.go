package repository

import (
	"context"

	"pointmarket/internal/model"

	"gorm.io/gorm"
)

type OrderLogRepository struct {
	db *gorm.DB
}

func NewOrderLogRepository(db *gorm.DB) *OrderLogRepository {
	return &OrderLogRepository{db: db}
}

func (r *OrderLogRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.OrderLog) error {
	return conn(r.db, tx).WithContext(ctx).Create(entry).Error
}

func (r *OrderLogRepository) ListByOrderNo(ctx context.Context, orderNo string) ([]*model.OrderLog, error) {
	var logs []*model.OrderLog
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).Order("id ASC").Find(&logs).Error
	return logs, err
}
