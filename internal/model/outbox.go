package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 订单事件类型
const (
	EventOrderPaid         = "ORDER_PAID"
	EventOrderCompleted    = "ORDER_COMPLETED"
	EventOrderCancelled    = "ORDER_CANCELLED"
	EventOrderRefunded     = "ORDER_REFUNDED"
	EventLiabilityRecorded = "LIABILITY_RECORDED"
)

// OutboxMessage 本地消息表，与业务数据在同一事务中写入，由 OutboxSender 异步投递
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	EventType  string    `gorm:"type:varchar(32);not null" json:"event_type"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// OrderEvent 订单事件消息体
type OrderEvent struct {
	EventType       string    `json:"event_type"`
	OrderNo         string    `json:"order_no"`
	BuyerID         int64     `json:"buyer_id"`
	SellerID        int64     `json:"seller_id"`
	ProjectID       int64     `json:"project_id"`
	Amount          int64     `json:"amount"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	LiabilityAmount int64     `json:"liability_amount,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
