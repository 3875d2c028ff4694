package repository

import (
	"context"

	"pointmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.PointAccount, error) {
	var account model.PointAccount
	err := conn(r.db, tx).WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, notFound(err, "积分账户不存在: %d", userID)
	}
	return &account, nil
}

// EnsureExists 不存在时创建零余额账户，并发创建由唯一索引兜底
func (r *AccountRepository) EnsureExists(ctx context.Context, tx *gorm.DB, userID int64) error {
	return conn(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.PointAccount{UserID: userID}).Error
}

// GetByUserIDForUpdate 锁定账户行，必须在事务内调用
func (r *AccountRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.PointAccount, error) {
	var account model.PointAccount
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		return nil, notFound(err, "积分账户不存在: %d", userID)
	}
	return &account, nil
}

// SaveBalances 写回余额字段，调用方已持有行锁
func (r *AccountRepository) SaveBalances(ctx context.Context, tx *gorm.DB, account *model.PointAccount) error {
	result := tx.WithContext(ctx).
		Model(&model.PointAccount{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"total_points":     account.TotalPoints,
			"available_points": account.AvailablePoints,
			"frozen_points":    account.FrozenPoints,
			"lifetime_earned":  account.LifetimeEarned,
			"lifetime_spent":   account.LifetimeSpent,
			"version":          gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	account.Version++
	return nil
}

// ListBatch 按主键游标分页，供对账使用
func (r *AccountRepository) ListBatch(ctx context.Context, tx *gorm.DB, afterID int64, limit int) ([]*model.PointAccount, error) {
	var accounts []*model.PointAccount
	err := conn(r.db, tx).WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
