package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"pointmarket/internal/apperr"
	"pointmarket/internal/config"
	"pointmarket/internal/model"
	"pointmarket/internal/testutil"
	"pointmarket/pkg/idgen"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	buyerID    int64 = 1001
	sellerID   int64 = 2002
	strangerID int64 = 3003
	projectID  int64 = 42
	price      int64 = 500
)

// fakeBalance 内存余额存储；SQLite 测试库只有一个连接，不能在订单事务内再开事务
type fakeBalance struct {
	mu         sync.Mutex
	balances   map[int64]int64
	applied    map[string]bool
	failCredit map[int64]error
	ops        []string
}

func newFakeBalance() *fakeBalance {
	return &fakeBalance{
		balances:   map[int64]int64{},
		applied:    map[string]bool{},
		failCredit: map[int64]error{},
	}
}

func (f *fakeBalance) Debit(_ context.Context, userID, amount int64, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fmt.Sprintf("%d|%s|D", userID, reference)
	if f.applied[key] {
		return nil
	}
	if f.balances[userID] < amount {
		return apperr.New(apperr.KindInsufficientBalance, "用户 %d 余额不足", userID)
	}
	f.balances[userID] -= amount
	f.applied[key] = true
	f.ops = append(f.ops, "D "+reference)
	return nil
}

func (f *fakeBalance) Credit(_ context.Context, userID, amount int64, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failCredit[userID]; err != nil {
		return err
	}
	key := fmt.Sprintf("%d|%s|C", userID, reference)
	if f.applied[key] {
		return nil
	}
	f.balances[userID] += amount
	f.applied[key] = true
	f.ops = append(f.ops, "C "+reference)
	return nil
}

// ctxBalance 像真实存储一样，ctx 已取消时拒绝执行；onCredit 在入账前回调
type ctxBalance struct {
	*fakeBalance
	onCredit func(userID int64)
}

func (c *ctxBalance) Debit(ctx context.Context, userID, amount int64, reference string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeBalance.Debit(ctx, userID, amount, reference)
}

func (c *ctxBalance) Credit(ctx context.Context, userID, amount int64, reference string) error {
	if c.onCredit != nil {
		c.onCredit(userID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeBalance.Credit(ctx, userID, amount, reference)
}

func (f *fakeBalance) get(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeBalance) set(userID, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = amount
}

type fixture struct {
	ctx     context.Context
	db      *gorm.DB
	svc     *Services
	balance *fakeBalance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	ids, err := idgen.NewGenerator(3)
	require.NoError(t, err)

	balance := newFakeBalance()
	svc := NewServices(db, config.Default(), Options{
		Balance: balance,
		IDs:     ids,
		Logger:  zap.NewNop(),
	})

	testutil.SeedUser(t, db, buyerID, sellerID, strangerID)
	testutil.SeedProject(t, db, model.ProjectRecord{ID: projectID, UserID: sellerID, Title: "Go 秒杀系统源码", Price: price})

	return &fixture{ctx: context.Background(), db: db, svc: svc, balance: balance}
}

func (f *fixture) recharge(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := f.svc.Ledger.Recharge(f.ctx, userID, amount)
	require.NoError(t, err)
}

func (f *fixture) available(t *testing.T, userID int64) int64 {
	t.Helper()
	account, err := f.svc.Ledger.GetAccount(f.ctx, userID)
	require.NoError(t, err)
	return account.AvailablePoints
}

func (f *fixture) createOrder(t *testing.T) *model.Order {
	t.Helper()
	order, err := f.svc.Orders.Create(f.ctx, projectID, buyerID)
	require.NoError(t, err)
	return order
}

func (f *fixture) payWithPoints(t *testing.T) *model.Order {
	t.Helper()
	order := f.createOrder(t)
	result, err := f.svc.Orders.Pay(f.ctx, order.OrderNo, &PaymentRequest{
		Method:      model.PaymentMethodPoints,
		TotalAmount: price,
	}, buyerID)
	require.NoError(t, err)
	return result.Order
}

func (f *fixture) order(t *testing.T, orderNo string) *model.Order {
	t.Helper()
	var order model.Order
	require.NoError(t, f.db.Where("order_no = ?", orderNo).First(&order).Error)
	return &order
}

func (f *fixture) orderTransactions(t *testing.T, orderNo string) []*model.PointTransaction {
	t.Helper()
	var list []*model.PointTransaction
	require.NoError(t, f.db.Where("related_order_no = ?", orderNo).Order("id ASC").Find(&list).Error)
	return list
}

func (f *fixture) outboxEvents(t *testing.T, orderNo string) []string {
	t.Helper()
	var msgs []*model.OutboxMessage
	require.NoError(t, f.db.Where("message_key = ?", orderNo).Order("id ASC").Find(&msgs).Error)
	events := make([]string, len(msgs))
	for i, m := range msgs {
		events[i] = m.EventType
	}
	return events
}

// backdate 把订单的时间字段改到 d 之前
func (f *fixture) backdate(t *testing.T, orderNo, column string, d time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Order{}).
		Where("order_no = ?", orderNo).
		Update(column, time.Now().Add(-d)).Error)
}
