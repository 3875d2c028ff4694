package model

import (
	"time"

	"pointmarket/internal/apperr"
)

// PointAccount 用户积分账户
//
// 不变量：total = available + frozen，且 available、frozen 均不为负。
// 账户只能通过账本操作修改，且每次修改都对应一条流水。
type PointAccount struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalPoints     int64     `gorm:"not null;default:0" json:"total_points"`
	AvailablePoints int64     `gorm:"not null;default:0" json:"available_points"`
	FrozenPoints    int64     `gorm:"not null;default:0" json:"frozen_points"`
	LifetimeEarned  int64     `gorm:"not null;default:0" json:"lifetime_earned"`
	LifetimeSpent   int64     `gorm:"not null;default:0" json:"lifetime_spent"`
	Version         int       `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PointAccount) TableName() string {
	return "point_account"
}

// Credit 入账，返回可用余额的变动前后值
func (a *PointAccount) Credit(amount int64, txType string) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, apperr.New(apperr.KindInvalidArgument, "入账金额必须大于0: %d", amount)
	}
	before = a.AvailablePoints
	a.AvailablePoints += amount
	a.TotalPoints += amount
	if countsAsEarned(txType) {
		a.LifetimeEarned += amount
	}
	return before, a.AvailablePoints, nil
}

// Debit 出账，可用余额不足时返回 InsufficientBalance
func (a *PointAccount) Debit(amount int64, txType string) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, apperr.New(apperr.KindInvalidArgument, "出账金额必须大于0: %d", amount)
	}
	if amount > a.AvailablePoints {
		return 0, 0, apperr.New(apperr.KindInsufficientBalance,
			"用户 %d 可用积分不足: 需要 %d, 可用 %d", a.UserID, amount, a.AvailablePoints)
	}
	before = a.AvailablePoints
	a.AvailablePoints -= amount
	a.TotalPoints -= amount
	if countsAsSpent(txType) {
		a.LifetimeSpent += amount
	}
	return before, a.AvailablePoints, nil
}

// Freeze 可用 -> 冻结，总额不变
func (a *PointAccount) Freeze(amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, apperr.New(apperr.KindInvalidArgument, "冻结金额必须大于0: %d", amount)
	}
	if amount > a.AvailablePoints {
		return 0, 0, apperr.New(apperr.KindInsufficientBalance,
			"用户 %d 可用积分不足以冻结: 需要 %d, 可用 %d", a.UserID, amount, a.AvailablePoints)
	}
	before = a.AvailablePoints
	a.AvailablePoints -= amount
	a.FrozenPoints += amount
	return before, a.AvailablePoints, nil
}

// Unfreeze 冻结 -> 可用，总额不变
func (a *PointAccount) Unfreeze(amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, apperr.New(apperr.KindInvalidArgument, "解冻金额必须大于0: %d", amount)
	}
	if amount > a.FrozenPoints {
		return 0, 0, apperr.New(apperr.KindInvalidState,
			"用户 %d 冻结积分不足以解冻: 需要 %d, 冻结 %d", a.UserID, amount, a.FrozenPoints)
	}
	before = a.AvailablePoints
	a.FrozenPoints -= amount
	a.AvailablePoints += amount
	return before, a.AvailablePoints, nil
}

// CheckInvariant 校验余额不变量
func (a *PointAccount) CheckInvariant() error {
	if a.AvailablePoints < 0 || a.FrozenPoints < 0 {
		return apperr.New(apperr.KindInvalidState, "用户 %d 余额为负: available=%d frozen=%d",
			a.UserID, a.AvailablePoints, a.FrozenPoints)
	}
	if a.TotalPoints != a.AvailablePoints+a.FrozenPoints {
		return apperr.New(apperr.KindInvalidState, "用户 %d 总额不等于可用+冻结: total=%d available=%d frozen=%d",
			a.UserID, a.TotalPoints, a.AvailablePoints, a.FrozenPoints)
	}
	return nil
}
