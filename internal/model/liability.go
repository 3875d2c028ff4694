package model

import (
	"time"
)

const (
	LiabilityStatusOpen    = "OPEN"
	LiabilityStatusSettled = "SETTLED"
)

// 欠款所属的结算腿
const (
	SettlementLegPoints  = "POINTS"
	SettlementLegBalance = "BALANCE"
)

// SellerLiability 卖家欠款
// 退款时卖家可用积分不足以被扣回，差额记为欠款，后续人工或定时对账清偿
type SellerLiability struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerID      int64      `gorm:"index;not null" json:"seller_id"`
	OrderNo       string     `gorm:"type:varchar(64);index;not null" json:"order_no"`
	Leg           string     `gorm:"type:varchar(16);not null" json:"leg"`
	Amount        int64      `gorm:"not null" json:"amount"`
	SettledAmount int64      `gorm:"not null;default:0" json:"settled_amount"`
	Status        string     `gorm:"type:varchar(16);index;not null" json:"status"`
	Remark        string     `gorm:"type:varchar(256)" json:"remark"`
	SettledAt     *time.Time `json:"settled_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SellerLiability) TableName() string {
	return "seller_liability"
}

func (l *SellerLiability) Outstanding() int64 {
	return l.Amount - l.SettledAmount
}
