package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBalanceSaga_CompensateInReverseOrder(t *testing.T) {
	ctx := context.Background()
	store := newFakeBalance()
	store.set(1, 100)
	saga := newBalanceSaga(store, 7, zap.NewNop())

	require.NoError(t, saga.Debit(ctx, 1, 60, "PAY:A"))
	require.NoError(t, saga.Credit(ctx, 2, 60, "PAY:A"))

	require.NoError(t, saga.Compensate(ctx))

	assert.Equal(t, int64(100), store.get(1))
	assert.Equal(t, int64(0), store.get(2))
	assert.Equal(t, []string{"D PAY:A:7", "C PAY:A:7", "D REVERT:PAY:A:7", "C REVERT:PAY:A:7"}, store.ops)

	// 已补偿的操作不会再次执行
	require.NoError(t, saga.Compensate(ctx))
	assert.Len(t, store.ops, 4)
}

func TestBalanceSaga_FailedOperationNotRecorded(t *testing.T) {
	ctx := context.Background()
	store := newFakeBalance()
	saga := newBalanceSaga(store, 7, zap.NewNop())

	assert.Error(t, saga.Debit(ctx, 1, 10, "PAY:B"))
	require.NoError(t, saga.Compensate(ctx))
	assert.Empty(t, store.ops)
}

func TestBalanceSaga_CompensateReportsFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeBalance()
	store.set(1, 50)
	saga := newBalanceSaga(store, 7, zap.NewNop())

	require.NoError(t, saga.Debit(ctx, 1, 50, "PAY:C"))
	store.failCredit[1] = errors.New("宕机")

	err := saga.Compensate(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REVERT:PAY:C:7")
}

func TestBalanceSaga_AttemptsUseDistinctReferences(t *testing.T) {
	ctx := context.Background()
	store := newFakeBalance()
	store.set(1, 100)

	first := newBalanceSaga(store, 1, zap.NewNop())
	require.NoError(t, first.Debit(ctx, 1, 40, "PAY:D"))
	require.NoError(t, first.Compensate(ctx))

	// 补偿后的重试必须真正扣款，不能被上一次的 reference 去重
	second := newBalanceSaga(store, 2, zap.NewNop())
	require.NoError(t, second.Debit(ctx, 1, 40, "PAY:D"))

	assert.Equal(t, int64(60), store.get(1))
	assert.Equal(t, "PAY:D:2", second.Reference("PAY:D"))
	assert.Equal(t, []string{"D PAY:D:1", "C REVERT:PAY:D:1", "D PAY:D:2"}, store.ops)
}

func TestBalanceSaga_CompensateIgnoresCancelledContext(t *testing.T) {
	store := &ctxBalance{fakeBalance: newFakeBalance()}
	store.set(1, 100)

	ctx, cancel := context.WithCancel(context.Background())
	saga := newBalanceSaga(store, 3, zap.NewNop())
	require.NoError(t, saga.Debit(ctx, 1, 100, "PAY:E"))
	cancel()

	require.NoError(t, saga.Compensate(ctx))
	assert.Equal(t, int64(100), store.get(1))
}
