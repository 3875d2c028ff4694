package model

import (
	"time"
)

const (
	TransactionTypeRecharge        = "RECHARGE"
	TransactionTypeConsume         = "CONSUME"
	TransactionTypeTransferIn      = "TRANSFER_IN"
	TransactionTypeTransferOut     = "TRANSFER_OUT"
	TransactionTypeRefund          = "REFUND"
	TransactionTypeAdminAdjust     = "ADMIN_ADJUST"
	TransactionTypeFreeze          = "FREEZE"
	TransactionTypeUnfreeze        = "UNFREEZE"
	TransactionTypeLiabilitySettle = "LIABILITY_SETTLE"
)

const TransactionStatusSuccess = "SUCCESS"

var validTransactionTypes = map[string]bool{
	TransactionTypeRecharge:        true,
	TransactionTypeConsume:         true,
	TransactionTypeTransferIn:      true,
	TransactionTypeTransferOut:     true,
	TransactionTypeRefund:          true,
	TransactionTypeAdminAdjust:     true,
	TransactionTypeFreeze:          true,
	TransactionTypeUnfreeze:        true,
	TransactionTypeLiabilitySettle: true,
}

func IsValidTransactionType(t string) bool {
	return validTransactionTypes[t]
}

func countsAsEarned(t string) bool {
	return t == TransactionTypeRecharge || t == TransactionTypeRefund || t == TransactionTypeTransferIn
}

func countsAsSpent(t string) bool {
	return t == TransactionTypeConsume || t == TransactionTypeTransferOut
}

// PointTransaction 积分流水
//
// 流水只追加，不修改，不删除。
// amount 为可用余额的变动量（正数入账，负数出账），
// 因此始终满足 balance_after = balance_before + amount。
type PointTransaction struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID         int64     `gorm:"index:idx_user_type;not null" json:"user_id"`
	Type           string    `gorm:"type:varchar(20);index:idx_user_type;not null" json:"type"`
	Amount         int64     `gorm:"not null" json:"amount"`
	BalanceBefore  int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`
	RelatedOrderNo *string   `gorm:"type:varchar(64);index" json:"related_order_no,omitempty"`
	Status         string    `gorm:"type:varchar(16);not null" json:"status"`
	Remark         string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transaction"
}
