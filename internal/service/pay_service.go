package service

import (
	"context"
	"errors"
	"fmt"

	"pointmarket/internal/apperr"
	"pointmarket/internal/model"

	"gorm.io/gorm"
)

// PaymentRequest 支付请求，MIXED 方式需要给出积分和余额的拆分
type PaymentRequest struct {
	Method        string `json:"method" binding:"required"`
	TotalAmount   int64  `json:"total_amount" binding:"required,gt=0"`
	PointsAmount  int64  `json:"points_amount"`
	BalanceAmount int64  `json:"balance_amount"`
}

// Split 校验请求并计算两条结算腿的金额
func (r *PaymentRequest) Split(orderAmount int64) (points, balance int64, err error) {
	if r.TotalAmount != orderAmount {
		return 0, 0, apperr.New(apperr.KindAmountMismatch,
			"支付金额 %d 与订单金额 %d 不一致", r.TotalAmount, orderAmount)
	}

	switch r.Method {
	case model.PaymentMethodPoints:
		return r.TotalAmount, 0, nil
	case model.PaymentMethodBalance:
		return 0, r.TotalAmount, nil
	case model.PaymentMethodMixed:
		if r.PointsAmount <= 0 || r.BalanceAmount <= 0 {
			return 0, 0, apperr.New(apperr.KindInvalidArgument, "组合支付的积分和余额部分都必须大于0")
		}
		if r.PointsAmount+r.BalanceAmount != r.TotalAmount {
			return 0, 0, apperr.New(apperr.KindAmountMismatch,
				"组合支付拆分 %d+%d 与支付金额 %d 不一致", r.PointsAmount, r.BalanceAmount, r.TotalAmount)
		}
		return r.PointsAmount, r.BalanceAmount, nil
	default:
		return 0, 0, apperr.New(apperr.KindInvalidArgument, "不支持的支付方式: %s", r.Method)
	}
}

// Settlement 一次支付实际完成的结算
type Settlement struct {
	Method        string `json:"method"`
	PointsAmount  int64  `json:"points_amount"`
	BalanceAmount int64  `json:"balance_amount"`
	// BalanceReference 余额腿在余额存储上使用的 reference，没有余额腿时为空
	BalanceReference string                    `json:"balance_reference,omitempty"`
	Transactions     []*model.PointTransaction `json:"transactions"`
}

// PaymentDispatcher 按支付方式把订单金额从买家结算给卖家
//
// 积分腿与订单在同一数据库事务中；余额腿通过 balanceSaga 执行，
// 事务失败时由调用方执行补偿，因此两条腿要么都生效要么都不生效。
type PaymentDispatcher struct {
	ledger *LedgerService
}

func NewPaymentDispatcher(ledger *LedgerService) *PaymentDispatcher {
	return &PaymentDispatcher{ledger: ledger}
}

func payReference(orderNo string) string {
	return "PAY:" + orderNo
}

// Settle 调用方已锁定订单行并完成状态和金额校验
func (d *PaymentDispatcher) Settle(ctx context.Context, tx *gorm.DB, order *model.Order, req *PaymentRequest, saga *balanceSaga) (*Settlement, error) {
	points, balance, err := req.Split(order.Amount)
	if err != nil {
		return nil, err
	}

	settlement := &Settlement{Method: req.Method, PointsAmount: points, BalanceAmount: balance}

	if points > 0 {
		accounts, err := d.ledger.lockAccounts(ctx, tx, order.BuyerID, order.SellerID)
		if err != nil {
			return nil, err
		}
		remark := fmt.Sprintf("购买项目[%d]", order.ProjectID)
		out, err := d.ledger.debitTx(ctx, tx, accounts[order.BuyerID], points, model.TransactionTypeConsume, order.OrderNo, remark)
		if err != nil {
			return nil, err
		}
		in, err := d.ledger.creditTx(ctx, tx, accounts[order.SellerID], points, model.TransactionTypeConsume, order.OrderNo, "出售"+remark)
		if err != nil {
			return nil, err
		}
		settlement.Transactions = append(settlement.Transactions, out, in)
	}

	if balance > 0 {
		settlement.BalanceReference = saga.Reference(payReference(order.OrderNo))
		if err := d.settleBalance(ctx, order, balance, saga); err != nil {
			if req.Method == model.PaymentMethodMixed {
				return nil, apperr.Wrap(apperr.KindPartialSettlementFailure, err, "组合支付余额部分失败，积分部分已回滚")
			}
			return nil, err
		}
	}

	return settlement, nil
}

func (d *PaymentDispatcher) settleBalance(ctx context.Context, order *model.Order, amount int64, saga *balanceSaga) error {
	ref := payReference(order.OrderNo)
	if err := saga.Debit(ctx, order.BuyerID, amount, ref); err != nil {
		return fmt.Errorf("买家余额扣款失败: %w", err)
	}
	if err := saga.Credit(ctx, order.SellerID, amount, ref); err != nil {
		return fmt.Errorf("卖家余额入账失败: %w", err)
	}
	return nil
}

// IsSettlementFailure 支付失败是否由结算腿本身导致（而非状态或权限校验）
func IsSettlementFailure(err error) bool {
	return errors.Is(err, apperr.ErrInsufficientBalance) || errors.Is(err, apperr.ErrPartialSettlementFailure)
}
