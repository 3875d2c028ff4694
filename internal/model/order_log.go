package model

import (
	"time"
)

// OrderLog 订单状态变更审计日志
type OrderLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo      string    `gorm:"type:varchar(64);index;not null" json:"order_no"`
	FromStatus   string    `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus     string    `gorm:"type:varchar(20);not null" json:"to_status"`
	OperatorID   int64     `gorm:"not null" json:"operator_id"`
	OperatorRole string    `gorm:"type:varchar(16);not null" json:"operator_role"`
	Remark       string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_log"
}
