package repository

import (
	"context"

	"pointmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LiabilityRepository struct {
	db *gorm.DB
}

func NewLiabilityRepository(db *gorm.DB) *LiabilityRepository {
	return &LiabilityRepository{db: db}
}

func (r *LiabilityRepository) Create(ctx context.Context, tx *gorm.DB, liability *model.SellerLiability) error {
	return conn(r.db, tx).WithContext(ctx).Create(liability).Error
}

// ListOpenBySellerForUpdate 锁定卖家未结清的欠款，先产生的先清偿
func (r *LiabilityRepository) ListOpenBySellerForUpdate(ctx context.Context, tx *gorm.DB, sellerID int64) ([]*model.SellerLiability, error) {
	var liabilities []*model.SellerLiability
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("seller_id = ? AND status = ?", sellerID, model.LiabilityStatusOpen).
		Order("id ASC").
		Find(&liabilities).Error
	return liabilities, err
}

func (r *LiabilityRepository) UpdateSettlement(ctx context.Context, tx *gorm.DB, liability *model.SellerLiability) error {
	return tx.WithContext(ctx).
		Model(&model.SellerLiability{}).
		Where("id = ?", liability.ID).
		Updates(map[string]interface{}{
			"settled_amount": liability.SettledAmount,
			"status":         liability.Status,
			"settled_at":     liability.SettledAt,
		}).Error
}

// ListBySeller status 为空时返回全部
func (r *LiabilityRepository) ListBySeller(ctx context.Context, sellerID int64, status string) ([]*model.SellerLiability, error) {
	var liabilities []*model.SellerLiability
	query := r.db.WithContext(ctx).Where("seller_id = ?", sellerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("id ASC").Find(&liabilities).Error
	return liabilities, err
}

func (r *LiabilityRepository) ListByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) ([]*model.SellerLiability, error) {
	var liabilities []*model.SellerLiability
	err := conn(r.db, tx).WithContext(ctx).Where("order_no = ?", orderNo).Order("id ASC").Find(&liabilities).Error
	return liabilities, err
}
