package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pointmarket/internal/apperr"
	"pointmarket/internal/metrics"
	"pointmarket/internal/model"
	"pointmarket/internal/repository"
	"pointmarket/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReversalResult 一次冲正的实际结果，卖家扣回不足的部分体现在 Liabilities 中
type ReversalResult struct {
	PointsRefunded  int64                     `json:"points_refunded"`
	SellerDebited   int64                     `json:"seller_debited"`
	BalanceRefunded int64                     `json:"balance_refunded"`
	Liabilities     []*model.SellerLiability  `json:"liabilities,omitempty"`
	Transactions    []*model.PointTransaction `json:"transactions"`
}

// LiabilityAmount 本次冲正产生的欠款合计
func (r *ReversalResult) LiabilityAmount() int64 {
	var total int64
	for _, l := range r.Liabilities {
		total += l.Amount
	}
	return total
}

// RefundEngine 按订单实际结算的金额执行反向操作
//
// 卖家已花掉收到的积分时，只扣回可用部分，差额记为卖家欠款，不会静默跳过。
type RefundEngine struct {
	db            *gorm.DB
	ledger        *LedgerService
	liabilityRepo *repository.LiabilityRepository
	balance       BalanceStore
	ids           *idgen.Generator
	log           *zap.Logger
}

func NewRefundEngine(db *gorm.DB, ledger *LedgerService, balance BalanceStore, ids *idgen.Generator, log *zap.Logger) *RefundEngine {
	return &RefundEngine{
		db:            db,
		ledger:        ledger,
		liabilityRepo: repository.NewLiabilityRepository(db),
		balance:       balance,
		ids:           ids,
		log:           log.Named("refund"),
	}
}

func refundReference(orderNo string) string {
	return "REFUND:" + orderNo
}

// Reverse 调用方已锁定处于 PAID 状态的订单
func (e *RefundEngine) Reverse(ctx context.Context, tx *gorm.DB, order *model.Order, saga *balanceSaga, reason string) (*ReversalResult, error) {
	if order.Status != model.OrderStatusPaid {
		return nil, apperr.New(apperr.KindInvalidTransition, "订单 %s 状态为 %s，不能冲正", order.OrderNo, order.Status)
	}

	result := &ReversalResult{}
	if order.PointsAmount > 0 {
		if err := e.reversePoints(ctx, tx, order, reason, result); err != nil {
			return nil, err
		}
	}
	if order.BalanceAmount > 0 {
		if err := e.reverseBalance(ctx, tx, order, saga, result); err != nil {
			return nil, err
		}
	}

	if len(result.Liabilities) > 0 {
		e.log.Warn("退款时卖家余额不足，已记录欠款",
			zap.String("order_no", order.OrderNo),
			zap.Int64("seller_id", order.SellerID),
			zap.Int64("liability", result.LiabilityAmount()))
	}
	return result, nil
}

func (e *RefundEngine) reversePoints(ctx context.Context, tx *gorm.DB, order *model.Order, reason string, result *ReversalResult) error {
	amount := order.PointsAmount
	accounts, err := e.ledger.lockAccounts(ctx, tx, order.BuyerID, order.SellerID)
	if err != nil {
		return err
	}

	remark := "订单退款"
	if reason != "" {
		remark = "订单退款: " + reason
	}
	in, err := e.ledger.creditTx(ctx, tx, accounts[order.BuyerID], amount, model.TransactionTypeRefund, order.OrderNo, remark)
	if err != nil {
		return fmt.Errorf("退还买家积分失败: %w", err)
	}
	result.PointsRefunded = amount
	result.Transactions = append(result.Transactions, in)

	seller := accounts[order.SellerID]
	debit := amount
	if seller.AvailablePoints < debit {
		debit = seller.AvailablePoints
	}
	if debit > 0 {
		out, err := e.ledger.debitTx(ctx, tx, seller, debit, model.TransactionTypeRefund, order.OrderNo, "订单退款扣回")
		if err != nil {
			return fmt.Errorf("扣回卖家积分失败: %w", err)
		}
		result.SellerDebited = debit
		result.Transactions = append(result.Transactions, out)
	}

	if shortfall := amount - debit; shortfall > 0 {
		return e.recordLiability(ctx, tx, order, model.SettlementLegPoints, shortfall, result)
	}
	return nil
}

func (e *RefundEngine) reverseBalance(ctx context.Context, tx *gorm.DB, order *model.Order, saga *balanceSaga, result *ReversalResult) error {
	amount := order.BalanceAmount
	ref := refundReference(order.OrderNo)

	if err := saga.Credit(ctx, order.BuyerID, amount, ref); err != nil {
		return fmt.Errorf("退还买家余额失败: %w", err)
	}
	result.BalanceRefunded = amount

	// 余额存储只支持全额扣款，不足时整笔记为欠款
	err := saga.Debit(ctx, order.SellerID, amount, ref)
	if errors.Is(err, apperr.ErrInsufficientBalance) {
		return e.recordLiability(ctx, tx, order, model.SettlementLegBalance, amount, result)
	}
	if err != nil {
		return fmt.Errorf("扣回卖家余额失败: %w", err)
	}
	return nil
}

func (e *RefundEngine) recordLiability(ctx context.Context, tx *gorm.DB, order *model.Order, leg string, amount int64, result *ReversalResult) error {
	liability := &model.SellerLiability{
		SellerID: order.SellerID,
		OrderNo:  order.OrderNo,
		Leg:      leg,
		Amount:   amount,
		Status:   model.LiabilityStatusOpen,
		Remark:   "退款时卖家余额不足",
	}
	if err := e.liabilityRepo.Create(ctx, tx, liability); err != nil {
		return fmt.Errorf("记录卖家欠款失败: %w", err)
	}
	metrics.LiabilitiesRecordedTotal.Inc()
	result.Liabilities = append(result.Liabilities, liability)
	return nil
}

// LiabilitySettlement 清偿结果
type LiabilitySettlement struct {
	SellerID       int64                    `json:"seller_id"`
	PointsSettled  int64                    `json:"points_settled"`
	BalanceSettled int64                    `json:"balance_settled"`
	Outstanding    int64                    `json:"outstanding"`
	Liabilities    []*model.SellerLiability `json:"liabilities"`
}

// SettleLiabilities 用卖家当前的可用积分和余额清偿未结欠款，先产生的先清偿
func (e *RefundEngine) SettleLiabilities(ctx context.Context, sellerID, operatorID int64) (*LiabilitySettlement, error) {
	result := &LiabilitySettlement{SellerID: sellerID}
	saga := newBalanceSaga(e.balance, e.ids.NextID(), e.log)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 与退款保持相同的加锁顺序：先账户，后欠款
		accounts, err := e.ledger.lockAccounts(ctx, tx, sellerID)
		if err != nil {
			return err
		}
		account := accounts[sellerID]

		liabilities, err := e.liabilityRepo.ListOpenBySellerForUpdate(ctx, tx, sellerID)
		if err != nil {
			return err
		}

		for _, l := range liabilities {
			switch l.Leg {
			case model.SettlementLegPoints:
				pay := l.Outstanding()
				if account.AvailablePoints < pay {
					pay = account.AvailablePoints
				}
				if pay > 0 {
					remark := fmt.Sprintf("清偿欠款[%d]，操作人[%d]", l.ID, operatorID)
					if _, err := e.ledger.debitTx(ctx, tx, account, pay, model.TransactionTypeLiabilitySettle, l.OrderNo, remark); err != nil {
						return err
					}
					l.SettledAmount += pay
					result.PointsSettled += pay
				}
			case model.SettlementLegBalance:
				pay := l.Outstanding()
				err := saga.Debit(ctx, sellerID, pay, fmt.Sprintf("LIABILITY:%d", l.ID))
				if errors.Is(err, apperr.ErrInsufficientBalance) {
					break
				}
				if err != nil {
					return err
				}
				l.SettledAmount += pay
				result.BalanceSettled += pay
			}

			if l.Outstanding() == 0 {
				now := time.Now()
				l.Status = model.LiabilityStatusSettled
				l.SettledAt = &now
			}
			if err := e.liabilityRepo.UpdateSettlement(ctx, tx, l); err != nil {
				return err
			}
			result.Outstanding += l.Outstanding()
		}
		result.Liabilities = liabilities
		return nil
	})
	if err != nil {
		if cerr := saga.Compensate(ctx); cerr != nil {
			e.log.Error("清偿欠款失败且余额补偿失败", zap.Int64("seller_id", sellerID), zap.Error(cerr))
		}
		return nil, err
	}

	e.log.Info("清偿卖家欠款",
		zap.Int64("seller_id", sellerID), zap.Int64("operator_id", operatorID),
		zap.Int64("points_settled", result.PointsSettled), zap.Int64("balance_settled", result.BalanceSettled),
		zap.Int64("outstanding", result.Outstanding))
	return result, nil
}

// ListLiabilities status 为空时返回全部
func (e *RefundEngine) ListLiabilities(ctx context.Context, sellerID int64, status string) ([]*model.SellerLiability, error) {
	return e.liabilityRepo.ListBySeller(ctx, sellerID, status)
}
