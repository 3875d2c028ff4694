package repository

import (
	"context"
	"errors"

	"pointmarket/internal/apperr"
	"pointmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository 现金余额存储
//
// 每次操作独立提交。reference 相同的同向操作只会生效一次，
// 调用方可以放心重试或补偿。
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Debit(ctx context.Context, userID, amount int64, reference string) error {
	return r.apply(ctx, userID, amount, reference, model.WalletDirectionDebit)
}

func (r *WalletRepository) Credit(ctx context.Context, userID, amount int64, reference string) error {
	return r.apply(ctx, userID, amount, reference, model.WalletDirectionCredit)
}

func (r *WalletRepository) apply(ctx context.Context, userID, amount int64, reference, direction string) error {
	if amount <= 0 {
		return apperr.New(apperr.KindInvalidArgument, "余额变动金额必须大于0: %d", amount)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&model.WalletAccount{UserID: userID}).Error
		if err != nil {
			return err
		}

		var wallet model.WalletAccount
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&wallet).Error
		if err != nil {
			return err
		}

		// 持有行锁后再判重，避免并发重复执行
		var count int64
		err = tx.Model(&model.WalletEntry{}).
			Where("user_id = ? AND reference = ? AND direction = ?", userID, reference, direction).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		before := wallet.Balance
		after := before + amount
		if direction == model.WalletDirectionDebit {
			if before < amount {
				return apperr.New(apperr.KindInsufficientBalance,
					"用户 %d 余额不足: 需要 %d, 可用 %d", userID, amount, before)
			}
			after = before - amount
		}

		err = tx.Model(&model.WalletAccount{}).
			Where("id = ?", wallet.ID).
			Updates(map[string]interface{}{
				"balance": after,
				"version": gorm.Expr("version + 1"),
			}).Error
		if err != nil {
			return err
		}

		err = tx.Create(&model.WalletEntry{
			UserID:        userID,
			Reference:     reference,
			Direction:     direction,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Wrap(apperr.KindConflict, err, "余额操作重复提交: %s", reference)
		}
		return err
	})
}

// GetBalance 账户不存在时余额为 0
func (r *WalletRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var wallet model.WalletAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

func (r *WalletRepository) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletEntry, int64, error) {
	var entries []*model.WalletEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletEntry{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}
