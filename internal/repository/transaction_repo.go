package repository

import (
	"context"

	"pointmarket/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.PointTransaction) error {
	return conn(r.db, tx).WithContext(ctx).Create(trans).Error
}

// ListByUserID txType 为空时不过滤类型
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, txType string, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	var transactions []*model.PointTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointTransaction{}).Where("user_id = ?", userID)
	if txType != "" {
		query = query.Where("type = ?", txType)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *TransactionRepository) ListByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) ([]*model.PointTransaction, error) {
	var transactions []*model.PointTransaction
	err := conn(r.db, tx).WithContext(ctx).
		Where("related_order_no = ?", orderNo).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

// LedgerSum 由流水推导出的余额
type LedgerSum struct {
	UserID    int64
	Available int64
	Frozen    int64
}

// SumByUserIDs 汇总流水：可用 = Σamount，冻结 = -Σamount(FREEZE, UNFREEZE)
func (r *TransactionRepository) SumByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []int64) (map[int64]LedgerSum, error) {
	var rows []LedgerSum
	err := conn(r.db, tx).WithContext(ctx).
		Model(&model.PointTransaction{}).
		Select("user_id, COALESCE(SUM(amount), 0) AS available, "+
			"COALESCE(SUM(CASE WHEN type IN ? THEN -amount ELSE 0 END), 0) AS frozen",
			[]string{model.TransactionTypeFreeze, model.TransactionTypeUnfreeze}).
		Where("user_id IN ? AND status = ?", userIDs, model.TransactionStatusSuccess).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := make(map[int64]LedgerSum, len(rows))
	for _, row := range rows {
		sums[row.UserID] = row
	}
	return sums, nil
}
