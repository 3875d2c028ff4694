package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"pointmarket/internal/apperr"
	"pointmarket/internal/model"
	"pointmarket/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderService_Create(t *testing.T) {
	f := newFixture(t)

	order := f.createOrder(t)

	assert.True(t, strings.HasPrefix(order.OrderNo, "MO"))
	assert.Len(t, order.OrderNo, 26)
	assert.Equal(t, model.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, price, order.Amount)
	assert.Equal(t, sellerID, order.SellerID)
	assert.Equal(t, "Go 秒杀系统源码", order.ProjectTitle)

	// 已有待支付订单时返回原订单
	again, err := f.svc.Orders.Create(f.ctx, projectID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNo, again.OrderNo)
}

func TestOrderService_CreatePriceIsSnapshot(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	require.NoError(t, f.db.Model(&model.ProjectRecord{}).Where("id = ?", projectID).Update("price", 900).Error)

	assert.Equal(t, price, f.order(t, order.OrderNo).Amount)
}

func TestOrderService_CreateErrors(t *testing.T) {
	f := newFixture(t)
	testutil.SeedProject(t, f.db, model.ProjectRecord{ID: 43, UserID: sellerID, Title: "草稿", Price: 100, Status: "DRAFT"})

	tests := []struct {
		name      string
		projectID int64
		buyerID   int64
		want      error
	}{
		{name: "项目未上架", projectID: 43, buyerID: buyerID, want: apperr.ErrProjectNotPublished},
		{name: "购买自己的项目", projectID: projectID, buyerID: sellerID, want: apperr.ErrSelfPurchase},
		{name: "项目不存在", projectID: 404, buyerID: buyerID, want: apperr.ErrNotFound},
		{name: "用户不存在", projectID: projectID, buyerID: 9999, want: apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Orders.Create(f.ctx, tt.projectID, tt.buyerID)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestOrderService_CreateAlreadyPurchased(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 1000)
	f.payWithPoints(t)

	_, err := f.svc.Orders.Create(f.ctx, projectID, buyerID)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyPurchased))
}

func TestOrderService_PayWithPoints(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 500)
	order := f.createOrder(t)

	result, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
		Method:      model.PaymentMethodPoints,
		TotalAmount: 500,
	}, buyerID)
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPaid, result.Order.Status)
	assert.Equal(t, model.PaymentMethodPoints, result.Order.PaymentMethod)
	assert.Equal(t, int64(500), result.Order.PointsAmount)
	assert.NotNil(t, result.Order.PaidAt)
	assert.Equal(t, int64(0), f.available(t, buyerID))
	assert.Equal(t, int64(500), f.available(t, sellerID))

	txs := f.orderTransactions(t, order.OrderNo)
	require.Len(t, txs, 2)
	assert.Equal(t, buyerID, txs[0].UserID)
	assert.Equal(t, int64(-500), txs[0].Amount)
	assert.Equal(t, model.TransactionTypeConsume, txs[0].Type)
	assert.Equal(t, sellerID, txs[1].UserID)
	assert.Equal(t, int64(500), txs[1].Amount)

	assert.Equal(t, []string{model.EventOrderPaid}, f.outboxEvents(t, order.OrderNo))

	logs, err := f.svc.Orders.ListLogs(f.ctx, order.OrderNo, sellerID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.OrderStatusPendingPayment, logs[0].FromStatus)
	assert.Equal(t, model.OrderStatusPaid, logs[0].ToStatus)
	assert.Equal(t, model.RoleBuyer, logs[0].OperatorRole)
}

func TestOrderService_PayNonPendingOrderLeavesBalances(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 2000)
	order := f.payWithPoints(t)

	buyerBefore, sellerBefore := f.available(t, buyerID), f.available(t, sellerID)

	_, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
		Method:      model.PaymentMethodPoints,
		TotalAmount: price,
	}, buyerID)

	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Equal(t, buyerBefore, f.available(t, buyerID))
	assert.Equal(t, sellerBefore, f.available(t, sellerID))
	assert.Len(t, f.orderTransactions(t, order.OrderNo), 2)
}

func TestOrderService_PayRejections(t *testing.T) {
	tests := []struct {
		name    string
		actorID int64
		req     *PaymentRequest
		want    error
	}{
		{name: "卖家支付", actorID: sellerID, req: &PaymentRequest{Method: model.PaymentMethodPoints, TotalAmount: price}, want: apperr.ErrUnauthorized},
		{name: "非参与方支付", actorID: strangerID, req: &PaymentRequest{Method: model.PaymentMethodPoints, TotalAmount: price}, want: apperr.ErrUnauthorized},
		{name: "金额不一致", actorID: buyerID, req: &PaymentRequest{Method: model.PaymentMethodPoints, TotalAmount: price - 1}, want: apperr.ErrAmountMismatch},
		{name: "积分不足", actorID: buyerID, req: &PaymentRequest{Method: model.PaymentMethodPoints, TotalAmount: price}, want: apperr.ErrInsufficientBalance},
		{name: "余额不足", actorID: buyerID, req: &PaymentRequest{Method: model.PaymentMethodBalance, TotalAmount: price}, want: apperr.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.recharge(t, buyerID, 100)
			order := f.createOrder(t)

			_, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, tt.req, tt.actorID)

			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, model.OrderStatusPendingPayment, f.order(t, order.OrderNo).Status)
			assert.Equal(t, int64(100), f.available(t, buyerID))
			assert.Empty(t, f.orderTransactions(t, order.OrderNo))
		})
	}
}

func TestOrderService_PayMixed(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 300)
	f.balance.set(buyerID, 200)
	order := f.createOrder(t)

	result, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
		Method:        model.PaymentMethodMixed,
		TotalAmount:   price,
		PointsAmount:  300,
		BalanceAmount: 200,
	}, buyerID)
	require.NoError(t, err)

	assert.Equal(t, int64(300), result.Order.PointsAmount)
	assert.Equal(t, int64(200), result.Order.BalanceAmount)
	assert.Equal(t, int64(0), f.available(t, buyerID))
	assert.Equal(t, int64(300), f.available(t, sellerID))
	assert.Equal(t, int64(0), f.balance.get(buyerID))
	assert.Equal(t, int64(200), f.balance.get(sellerID))
}

func TestOrderService_MixedBalanceFailureRestoresPoints(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 1000)
	order := f.createOrder(t)

	_, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
		Method:        model.PaymentMethodMixed,
		TotalAmount:   price,
		PointsAmount:  300,
		BalanceAmount: 200,
	}, buyerID)

	assert.True(t, errors.Is(err, apperr.ErrPartialSettlementFailure))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientBalance))
	assert.Equal(t, model.OrderStatusPendingPayment, f.order(t, order.OrderNo).Status)
	assert.Equal(t, int64(1000), f.available(t, buyerID))
	assert.Equal(t, int64(0), f.available(t, sellerID))
	assert.Empty(t, f.orderTransactions(t, order.OrderNo))
	assert.Empty(t, f.outboxEvents(t, order.OrderNo))
}

func TestOrderService_BalanceLegCompensatedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.balance.set(buyerID, 800)
	f.balance.failCredit[sellerID] = errors.New("钱包服务不可用")
	order := f.createOrder(t)

	_, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
		Method:      model.PaymentMethodBalance,
		TotalAmount: price,
	}, buyerID)

	require.Error(t, err)
	assert.Equal(t, int64(800), f.balance.get(buyerID))
	assert.Equal(t, model.OrderStatusPendingPayment, f.order(t, order.OrderNo).Status)
	require.Len(t, f.balance.ops, 2)
	debit := f.balance.ops[0]
	assert.True(t, strings.HasPrefix(debit, "D PAY:"+order.OrderNo+":"), debit)
	assert.Equal(t, "C REVERT:"+strings.TrimPrefix(debit, "D "), f.balance.ops[1])
}

func TestOrderService_BalanceRetryAfterCompensationDebitsBuyer(t *testing.T) {
	f := newFixture(t)
	f.balance.set(buyerID, 500)
	f.balance.failCredit[sellerID] = errors.New("钱包服务不可用")
	order := f.createOrder(t)
	req := &PaymentRequest{Method: model.PaymentMethodBalance, TotalAmount: price}

	_, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, req, buyerID)
	require.Error(t, err)
	assert.Equal(t, int64(500), f.balance.get(buyerID))

	delete(f.balance.failCredit, sellerID)
	result, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, req, buyerID)
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPaid, result.Order.Status)
	assert.Equal(t, int64(0), f.balance.get(buyerID))
	assert.Equal(t, price, f.balance.get(sellerID))
	assert.Equal(t, result.Settlement.BalanceReference, result.Order.BalanceRef)
	assert.True(t, strings.HasPrefix(result.Order.BalanceRef, "PAY:"+order.OrderNo+":"))
	assert.Len(t, f.balance.ops, 4)
}

func TestOrderService_CancelledRequestStillCompensates(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &ctxBalance{fakeBalance: newFakeBalance()}
	store.set(buyerID, 500)
	// 卖家入账前客户端断开
	store.onCredit = func(userID int64) {
		if userID == sellerID {
			cancel()
		}
	}
	f.svc.Orders.balance = store

	_, err := f.svc.Orders.Pay(ctx, order.OrderNo, &PaymentRequest{
		Method:      model.PaymentMethodBalance,
		TotalAmount: price,
	}, buyerID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(500), store.get(buyerID))
	assert.Equal(t, int64(0), store.get(sellerID))
	assert.Equal(t, model.OrderStatusPendingPayment, f.order(t, order.OrderNo).Status)
}

func TestOrderService_ConcurrentPayOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 5000)
	order := f.createOrder(t)

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
				Method:      model.PaymentMethodPoints,
				TotalAmount: price,
			}, buyerID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var success int
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "got %v", err)
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, int64(4500), f.available(t, buyerID))
}

func TestOrderService_CancelPending(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	result, err := f.svc.Orders.Cancel(f.ctx, order.OrderNo, buyerID, "不想要了")
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusCancelled, result.Order.Status)
	assert.Equal(t, "不想要了", result.Order.CancelReason)
	assert.Nil(t, result.Reversal)
	assert.Empty(t, f.orderTransactions(t, order.OrderNo))

	_, err = f.svc.Orders.Cancel(f.ctx, order.OrderNo, buyerID, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestOrderService_CancelPaidRestoresBuyer(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 800)
	order := f.payWithPoints(t)

	result, err := f.svc.Orders.Cancel(f.ctx, order.OrderNo, sellerID, "无法交付")
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusCancelled, result.Order.Status)
	require.NotNil(t, result.Reversal)
	assert.Equal(t, price, result.Reversal.PointsRefunded)
	assert.Equal(t, price, result.Reversal.SellerDebited)
	assert.Empty(t, result.Reversal.Liabilities)
	assert.Equal(t, int64(800), f.available(t, buyerID))
	assert.Equal(t, int64(0), f.available(t, sellerID))

	list, _, err := f.svc.Ledger.ListTransactions(f.ctx, buyerID, model.TransactionTypeRefund, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, price, list[0].Amount)
	assert.Equal(t, order.OrderNo, *list[0].RelatedOrderNo)

	assert.Equal(t, []string{model.EventOrderPaid, model.EventOrderCancelled}, f.outboxEvents(t, order.OrderNo))
}

func TestOrderService_RefundRecordsSellerShortfall(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 1000)
	order := f.payWithPoints(t)

	// 卖家已经花掉了 300
	_, err := f.svc.Ledger.Transfer(f.ctx, sellerID, strangerID, 300, "转给合作者")
	require.NoError(t, err)

	result, err := f.svc.Orders.RequestRefund(f.ctx, order.OrderNo, buyerID, "与描述不符")
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusRefunded, result.Order.Status)
	assert.Equal(t, int64(1000), f.available(t, buyerID))
	assert.Equal(t, int64(0), f.available(t, sellerID))
	assert.Equal(t, int64(200), result.Reversal.SellerDebited)
	require.Len(t, result.Reversal.Liabilities, 1)
	assert.Equal(t, int64(300), result.Reversal.LiabilityAmount())
	assert.Equal(t, model.SettlementLegPoints, result.Reversal.Liabilities[0].Leg)

	events := f.outboxEvents(t, order.OrderNo)
	assert.Equal(t, []string{model.EventOrderPaid, model.EventOrderRefunded, model.EventLiabilityRecorded}, events)

	open, err := f.svc.Refund.ListLiabilities(f.ctx, sellerID, model.LiabilityStatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(300), open[0].Outstanding())
}

func TestOrderService_RefundBalanceShortfall(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 300)
	f.balance.set(buyerID, 200)
	order := f.createOrder(t)
	_, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
		Method:        model.PaymentMethodMixed,
		TotalAmount:   price,
		PointsAmount:  300,
		BalanceAmount: 200,
	}, buyerID)
	require.NoError(t, err)

	// 卖家提走了余额
	f.balance.set(sellerID, 0)

	result, err := f.svc.Orders.RequestRefund(f.ctx, order.OrderNo, buyerID, "")
	require.NoError(t, err)

	assert.Equal(t, int64(300), f.available(t, buyerID))
	assert.Equal(t, int64(200), f.balance.get(buyerID))
	assert.Equal(t, int64(200), result.Reversal.BalanceRefunded)
	require.Len(t, result.Reversal.Liabilities, 1)
	assert.Equal(t, model.SettlementLegBalance, result.Reversal.Liabilities[0].Leg)
	assert.Equal(t, int64(200), result.Reversal.Liabilities[0].Amount)
}

func TestOrderService_RequestRefundRules(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 1000)
	order := f.payWithPoints(t)

	_, err := f.svc.Orders.RequestRefund(f.ctx, order.OrderNo, sellerID, "")
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = f.svc.Orders.Complete(f.ctx, order.OrderNo, buyerID)
	require.NoError(t, err)

	// 已完成的订单不能退款
	_, err = f.svc.Orders.RequestRefund(f.ctx, order.OrderNo, buyerID, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Equal(t, int64(500), f.available(t, sellerID))
}

func TestOrderService_Complete(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 1000)
	pending := f.createOrder(t)

	_, err := f.svc.Orders.Complete(f.ctx, pending.OrderNo, buyerID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	_, err = f.svc.Orders.Pay(f.ctx, pending.OrderNo, &PaymentRequest{Method: model.PaymentMethodPoints, TotalAmount: price}, buyerID)
	require.NoError(t, err)

	_, err = f.svc.Orders.Complete(f.ctx, pending.OrderNo, strangerID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	result, err := f.svc.Orders.Complete(f.ctx, pending.OrderNo, sellerID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, result.Order.Status)
	assert.NotNil(t, result.Order.CompletedAt)
}

func TestOrderService_GetAndList(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	got, err := f.svc.Orders.Get(f.ctx, order.OrderNo, sellerID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.Orders.Get(f.ctx, order.OrderNo, strangerID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = f.svc.Orders.Get(f.ctx, "MO-missing", buyerID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	list, total, err := f.svc.Orders.ListByUser(f.ctx, sellerID, model.RoleSeller, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, total, err = f.svc.Orders.ListByUser(f.ctx, sellerID, model.RoleBuyer, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, _, err = f.svc.Orders.ListByUser(f.ctx, sellerID, "OWNER", "", 1, 10)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestOrderService_AdminForceStatus(t *testing.T) {
	f := newFixture(t)
	f.recharge(t, buyerID, 1000)
	paid := f.payWithPoints(t)

	_, err := f.svc.Orders.AdminForceStatus(f.ctx, []string{paid.OrderNo}, model.OrderStatusPaid, 1, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	_, err = f.svc.Orders.AdminForceStatus(f.ctx, nil, model.OrderStatusCancelled, 1, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	results, err := f.svc.Orders.AdminForceStatus(f.ctx, []string{paid.OrderNo, "MO-missing"}, model.OrderStatusRefunded, 1, "客服介入")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Equal(t, model.OrderStatusRefunded, results[0].Status)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, int64(1000), f.available(t, buyerID))

	detail, err := f.svc.Orders.AdminGet(f.ctx, paid.OrderNo)
	require.NoError(t, err)
	assert.Len(t, detail.Transactions, 4)
	assert.Len(t, detail.Logs, 2)
	assert.Equal(t, model.RoleAdmin, detail.Logs[1].OperatorRole)
}
