package repository

import (
	"context"
	"errors"
	"time"

	"pointmarket/internal/apperr"
	"pointmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 订单号冲突时返回 DuplicateOrderNumber，由调用方重新生成后重试
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	err := conn(r.db, tx).WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.KindDuplicateOrderNumber, err, "订单号重复: %s", order.OrderNo)
	}
	return err
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	var order model.Order
	err := conn(r.db, tx).WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, notFound(err, "订单不存在: %s", orderNo)
	}
	return &order, nil
}

// GetByOrderNoForUpdate 锁定订单行，必须在事务内调用
func (r *OrderRepository) GetByOrderNoForUpdate(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		return nil, notFound(err, "订单不存在: %s", orderNo)
	}
	return &order, nil
}

// FindByBuyerAndProject 按状态查询买家对某个项目的订单，最新的在前
func (r *OrderRepository) FindByBuyerAndProject(ctx context.Context, tx *gorm.DB, buyerID, projectID int64, statuses []string) ([]*model.Order, error) {
	var orders []*model.Order
	err := conn(r.db, tx).WithContext(ctx).
		Where("buyer_id = ? AND project_id = ? AND status IN ?", buyerID, projectID, statuses).
		Order("id DESC").
		Find(&orders).Error
	return orders, err
}

// UpdateStatus 带状态条件的更新，from 状态不匹配时返回 InvalidTransition
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo, fromStatus, toStatus string, fields map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return apperr.New(apperr.KindInvalidTransition, "订单状态不允许从 %s 变更为 %s", fromStatus, toStatus)
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := conn(r.db, tx).WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindInvalidTransition, "订单 %s 已不处于 %s 状态", orderNo, fromStatus)
	}

	return nil
}

// FindSweepCandidates 按主键游标分页查询 timeColumn 早于 before 的指定状态订单
func (r *OrderRepository) FindSweepCandidates(ctx context.Context, status, timeColumn string, before time.Time, afterID int64, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Select("id", "order_no", "status", "created_at", "paid_at").
		Where("status = ? AND id > ?", status, afterID).
		Where(clause.Lt{Column: clause.Column{Name: timeColumn}, Value: before}).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListByUser role 为空时同时查询买入和卖出的订单
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, role, status string, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{})
	switch role {
	case model.RoleBuyer:
		query = query.Where("buyer_id = ?", userID)
	case model.RoleSeller:
		query = query.Where("seller_id = ?", userID)
	default:
		query = query.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
