package service

import (
	"context"
	"errors"
	"time"

	"pointmarket/internal/apperr"
	"pointmarket/internal/metrics"
	"pointmarket/internal/model"
	"pointmarket/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sweepTimeout      = "timeout"
	sweepAutoComplete = "auto_complete"
)

// errSweepSkip 加锁后发现订单已不满足条件
var errSweepSkip = errors.New("订单已不满足清理条件")

// SweepResult 一次清理的统计
type SweepResult struct {
	Scanned      int `json:"scanned"`
	Transitioned int `json:"transitioned"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// Sweeper 超时取消与自动完成
//
// 按主键游标分页扫描，每个订单单独加锁并在事务内复查状态，
// 单个订单失败只记日志，不影响其他订单。重复执行是安全的。
type Sweeper struct {
	orders    *OrderService
	orderRepo *repository.OrderRepository
	batchSize int
	log       *zap.Logger
}

func NewSweeper(orders *OrderService, batchSize int, log *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = maxBatchSize
	}
	return &Sweeper{
		orders:    orders,
		orderRepo: orders.orderRepo,
		batchSize: batchSize,
		log:       log.Named("sweeper"),
	}
}

// SweepTimeouts 取消创建超过 cutoffMinutes 分钟仍未支付的订单
func (s *Sweeper) SweepTimeouts(ctx context.Context, cutoffMinutes int) (*SweepResult, error) {
	if cutoffMinutes <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "cutoffMinutes 必须大于0")
	}
	before := time.Now().Add(-time.Duration(cutoffMinutes) * time.Minute)
	return s.sweep(ctx, sweepTimeout, model.OrderStatusPendingPayment, "created_at", before,
		model.OrderStatusCancelled, "支付超时自动取消")
}

// SweepAutoComplete 完成支付超过 cutoffDays 天的订单
func (s *Sweeper) SweepAutoComplete(ctx context.Context, cutoffDays int) (*SweepResult, error) {
	if cutoffDays <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "cutoffDays 必须大于0")
	}
	before := time.Now().AddDate(0, 0, -cutoffDays)
	return s.sweep(ctx, sweepAutoComplete, model.OrderStatusPaid, "paid_at", before,
		model.OrderStatusCompleted, "超时自动确认完成")
}

func (s *Sweeper) sweep(ctx context.Context, name, status, timeColumn string, before time.Time, to, remark string) (*SweepResult, error) {
	result := &SweepResult{}
	var afterID int64

	for {
		candidates, err := s.orderRepo.FindSweepCandidates(ctx, status, timeColumn, before, afterID, s.batchSize)
		if err != nil {
			return result, err
		}

		for _, c := range candidates {
			afterID = c.ID
			result.Scanned++

			err := s.sweepOne(ctx, c.OrderNo, status, before, to, remark)
			switch {
			case err == nil:
				result.Transitioned++
				metrics.SweepOrdersTotal.WithLabelValues(name, metrics.ResultSuccess).Inc()
			case errors.Is(err, errSweepSkip):
				result.Skipped++
				metrics.SweepOrdersTotal.WithLabelValues(name, metrics.ResultSkipped).Inc()
			default:
				result.Failed++
				metrics.SweepOrdersTotal.WithLabelValues(name, metrics.ResultFailed).Inc()
				s.log.Error("清理订单失败", zap.String("sweep", name), zap.String("order_no", c.OrderNo), zap.Error(err))
			}
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}
		if len(candidates) < s.batchSize {
			break
		}
	}

	if result.Scanned > 0 {
		s.log.Info("订单清理完成", zap.String("sweep", name),
			zap.Int("scanned", result.Scanned), zap.Int("transitioned", result.Transitioned),
			zap.Int("skipped", result.Skipped), zap.Int("failed", result.Failed))
	}
	return result, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, orderNo, status string, before time.Time, to, remark string) error {
	_, err := s.orders.mutate(ctx, orderNo, func(tx *gorm.DB, order *model.Order, saga *balanceSaga) error {
		if order.Status != status {
			return errSweepSkip
		}
		ref := order.CreatedAt
		if status == model.OrderStatusPaid {
			if order.PaidAt == nil {
				return errSweepSkip
			}
			ref = *order.PaidAt
		}
		if !ref.Before(before) {
			return errSweepSkip
		}
		_, err := s.orders.advance(ctx, tx, order, saga, to, systemActor, remark)
		return err
	})
	return err
}
