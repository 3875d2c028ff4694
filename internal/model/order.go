package model

import (
	"time"
)

const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusPaid           = "PAID"
	OrderStatusCompleted      = "COMPLETED"
	OrderStatusCancelled      = "CANCELLED"
	OrderStatusRefunded       = "REFUNDED"
)

// ValidStatusTransitions 订单状态机
//
//	PENDING_PAYMENT -> PAID -> COMPLETED
//	PENDING_PAYMENT -> CANCELLED
//	PAID            -> CANCELLED / REFUNDED（需要冲正）
var ValidStatusTransitions = map[string][]string{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus 终态订单不再发生任何变化
func IsTerminalStatus(status string) bool {
	_, hasNext := ValidStatusTransitions[status]
	return !hasNext
}

const (
	PaymentMethodPoints  = "POINTS"
	PaymentMethodBalance = "BALANCE"
	PaymentMethodMixed   = "MIXED"
)

func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodPoints, PaymentMethodBalance, PaymentMethodMixed:
		return true
	}
	return false
}

const (
	RoleBuyer  = "BUYER"
	RoleSeller = "SELLER"
	RoleAdmin  = "ADMIN"
	RoleSystem = "SYSTEM"
)

// SystemOperatorID 定时任务等系统操作使用的操作人ID
const SystemOperatorID int64 = 0

// Order 项目购买订单
// amount 在创建时从商品价格快照而来，之后不再变化
type Order struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	BuyerID       int64      `gorm:"index:idx_buyer_project;not null" json:"buyer_id"`
	SellerID      int64      `gorm:"index;not null" json:"seller_id"`
	ProjectID     int64      `gorm:"index:idx_buyer_project;not null" json:"project_id"`
	ProjectTitle  string     `gorm:"type:varchar(128)" json:"project_title"`
	Amount        int64      `gorm:"not null" json:"amount"`
	PointsAmount  int64      `gorm:"not null;default:0" json:"points_amount"`
	BalanceAmount int64      `gorm:"not null;default:0" json:"balance_amount"`
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentMethod string     `gorm:"type:varchar(16)" json:"payment_method"`
	BalanceRef    string     `gorm:"type:varchar(96)" json:"balance_ref,omitempty"`
	Remark        string     `gorm:"type:varchar(256)" json:"remark"`
	CancelReason  string     `gorm:"type:varchar(256)" json:"cancel_reason"`
	PaidAt        *time.Time `gorm:"index" json:"paid_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CancelledAt   *time.Time `json:"cancelled_at"`
	RefundedAt    *time.Time `json:"refunded_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "market_order"
}

// RoleOf 返回用户在订单中的角色，非参与方返回空串
func (o *Order) RoleOf(userID int64) string {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	default:
		return ""
	}
}

func (o *Order) IsParticipant(userID int64) bool {
	return o.RoleOf(userID) != ""
}
