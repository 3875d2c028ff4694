package service

import (
	"context"
	"fmt"
	"time"

	"pointmarket/internal/metrics"

	"go.uber.org/zap"
)

// compensateTimeout 补偿不受请求取消影响，但需要有上限
const compensateTimeout = 10 * time.Second

type balanceOp struct {
	userID    int64
	amount    int64
	reference string
	debit     bool
}

// balanceSaga 记录一次事务中已经在余额存储上生效的操作
//
// 余额存储与积分账本不在同一个数据库事务中，事务失败后按相反顺序执行补偿。
// 每个 saga 有唯一的 attempt，业务 reference 追加 attempt 后才交给余额存储，
// 失败并补偿过的操作重试时不会被存储的幂等去重吞掉。
type balanceSaga struct {
	store   BalanceStore
	attempt int64
	applied []balanceOp
	log     *zap.Logger
}

func newBalanceSaga(store BalanceStore, attempt int64, log *zap.Logger) *balanceSaga {
	return &balanceSaga{store: store, attempt: attempt, log: log}
}

// Reference 本次尝试在余额存储上实际使用的 reference
func (s *balanceSaga) Reference(base string) string {
	return fmt.Sprintf("%s:%d", base, s.attempt)
}

func (s *balanceSaga) Debit(ctx context.Context, userID, amount int64, base string) error {
	reference := s.Reference(base)
	if err := s.store.Debit(ctx, userID, amount, reference); err != nil {
		return err
	}
	s.applied = append(s.applied, balanceOp{userID: userID, amount: amount, reference: reference, debit: true})
	return nil
}

func (s *balanceSaga) Credit(ctx context.Context, userID, amount int64, base string) error {
	reference := s.Reference(base)
	if err := s.store.Credit(ctx, userID, amount, reference); err != nil {
		return err
	}
	s.applied = append(s.applied, balanceOp{userID: userID, amount: amount, reference: reference})
	return nil
}

// Compensate 逐条冲正已生效的操作，返回第一个失败
//
// 冲正使用 REVERT: 前缀的 reference，重复执行不会重复入账。
// 失败往往由请求取消引起，补偿使用脱离取消的 ctx。
func (s *balanceSaga) Compensate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	var firstErr error
	for i := len(s.applied) - 1; i >= 0; i-- {
		op := s.applied[i]
		ref := "REVERT:" + op.reference

		var err error
		if op.debit {
			err = s.store.Credit(ctx, op.userID, op.amount, ref)
		} else {
			err = s.store.Debit(ctx, op.userID, op.amount, ref)
		}
		metrics.BalanceCompensationsTotal.WithLabelValues(metrics.Result(err)).Inc()

		if err != nil {
			s.log.Error("余额补偿失败，需要人工处理",
				zap.Int64("user_id", op.userID), zap.Int64("amount", op.amount),
				zap.String("reference", op.reference), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("余额补偿失败 %s: %w", ref, err)
			}
			continue
		}
		s.log.Warn("余额操作已补偿", zap.Int64("user_id", op.userID), zap.String("reference", ref))
	}
	s.applied = nil
	return firstErr
}
