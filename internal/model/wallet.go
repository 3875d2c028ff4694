package model

import (
	"time"
)

const (
	WalletDirectionDebit  = "DEBIT"
	WalletDirectionCredit = "CREDIT"
)

// WalletAccount 现金余额账户（BALANCE 支付方式使用），与积分账户相互独立
type WalletAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WalletAccount) TableName() string {
	return "wallet_account"
}

// WalletEntry 余额流水，(user_id, reference, direction) 唯一，保证同一笔操作只执行一次
type WalletEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"uniqueIndex:uk_wallet_ref;not null" json:"user_id"`
	Reference     string    `gorm:"type:varchar(96);uniqueIndex:uk_wallet_ref;not null" json:"reference"`
	Direction     string    `gorm:"type:varchar(8);uniqueIndex:uk_wallet_ref;not null" json:"direction"`
	Amount        int64     `gorm:"not null" json:"amount"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (WalletEntry) TableName() string {
	return "wallet_entry"
}
