package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pointmarket/internal/apperr"
	"pointmarket/internal/config"
	"pointmarket/internal/infrastructure/lock"
	"pointmarket/internal/metrics"
	"pointmarket/internal/model"
	"pointmarket/internal/repository"
	"pointmarket/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxBatchSize = 100

// actor 发起状态变更的操作人
type actor struct {
	id   int64
	role string
}

var systemActor = actor{id: model.SystemOperatorID, role: model.RoleSystem}

var statusEvents = map[string]string{
	model.OrderStatusPaid:      model.EventOrderPaid,
	model.OrderStatusCompleted: model.EventOrderCompleted,
	model.OrderStatusCancelled: model.EventOrderCancelled,
	model.OrderStatusRefunded:  model.EventOrderRefunded,
}

// OrderService 订单状态机
//
// 每次状态变更是一个数据库事务：先 FOR UPDATE 锁订单，再按 user_id 升序锁账户，
// 同一事务内写订单日志和 outbox 事件。
type OrderService struct {
	db           *gorm.DB
	cfg          config.BusinessConfig
	topic        string
	orderRepo    *repository.OrderRepository
	orderLogRepo *repository.OrderLogRepository
	outboxRepo   *repository.OutboxRepository
	txRepo       *repository.TransactionRepository
	liabRepo     *repository.LiabilityRepository
	catalog      Catalog
	identity     Identity
	balance      BalanceStore
	dispatcher   *PaymentDispatcher
	refund       *RefundEngine
	locker       lock.Locker
	ids          *idgen.Generator
	log          *zap.Logger
}

func NewOrderService(db *gorm.DB, cfg *config.Config, deps OrderDeps) *OrderService {
	return &OrderService{
		db:           db,
		cfg:          cfg.Business,
		topic:        cfg.Kafka.Topic.OrderEvent,
		orderRepo:    repository.NewOrderRepository(db),
		orderLogRepo: repository.NewOrderLogRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		txRepo:       repository.NewTransactionRepository(db),
		liabRepo:     repository.NewLiabilityRepository(db),
		catalog:      deps.Catalog,
		identity:     deps.Identity,
		balance:      deps.Balance,
		dispatcher:   deps.Dispatcher,
		refund:       deps.Refund,
		locker:       deps.Locker,
		ids:          deps.IDs,
		log:          deps.Logger.Named("order"),
	}
}

// OrderDeps OrderService 的协作者
type OrderDeps struct {
	Catalog    Catalog
	Identity   Identity
	Balance    BalanceStore
	Dispatcher *PaymentDispatcher
	Refund     *RefundEngine
	Locker     lock.Locker
	IDs        *idgen.Generator
	Logger     *zap.Logger
}

// Create 创建待支付订单，价格在此刻快照
//
// 同一买家对同一项目已有待支付订单时直接返回该订单。
func (s *OrderService) Create(ctx context.Context, projectID, buyerID int64) (*model.Order, error) {
	exists, err := s.identity.UserExists(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if !exists {
		return nil, apperr.New(apperr.KindNotFound, "用户 %d 不存在", buyerID)
	}

	published, err := s.catalog.IsPublished(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !published {
		return nil, apperr.New(apperr.KindProjectNotPublished, "项目 %d 未上架", projectID)
	}

	sellerID, err := s.catalog.ProjectOwner(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if sellerID == buyerID {
		return nil, apperr.ErrSelfPurchase
	}

	price, err := s.catalog.ProjectPrice(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "项目 %d 价格不合法: %d", projectID, price)
	}
	title, err := s.catalog.ProjectTitle(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.locker.WithLock(ctx, lock.PurchaseLockKey(buyerID, projectID), func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := s.orderRepo.FindByBuyerAndProject(ctx, tx, buyerID, projectID, []string{
				model.OrderStatusPendingPayment, model.OrderStatusPaid, model.OrderStatusCompleted,
			})
			if err != nil {
				return err
			}
			for _, o := range existing {
				if o.Status != model.OrderStatusPendingPayment {
					return apperr.New(apperr.KindAlreadyPurchased, "用户 %d 已购买项目 %d", buyerID, projectID)
				}
			}
			if len(existing) > 0 {
				order = existing[0]
				return nil
			}

			order = &model.Order{
				BuyerID:      buyerID,
				SellerID:     sellerID,
				ProjectID:    projectID,
				ProjectTitle: title,
				Amount:       price,
				Status:       model.OrderStatusPendingPayment,
			}
			return s.insertOrder(ctx, tx, order)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("订单已创建",
		zap.String("order_no", order.OrderNo), zap.Int64("buyer_id", buyerID),
		zap.Int64("project_id", projectID), zap.Int64("amount", order.Amount))
	return order, nil
}

// insertOrder 订单号冲突时换号重试，次数有上限
func (s *OrderService) insertOrder(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	for attempt := 0; attempt <= s.cfg.OrderNoRetry; attempt++ {
		order.OrderNo = s.ids.OrderNo()
		err := s.orderRepo.Create(ctx, tx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrDuplicateOrderNumber) {
			return fmt.Errorf("创建订单失败: %w", err)
		}
		s.log.Warn("订单号冲突，重新生成", zap.String("order_no", order.OrderNo), zap.Int("attempt", attempt))
	}
	return apperr.New(apperr.KindDuplicateOrderNumber, "订单号连续冲突 %d 次", s.cfg.OrderNoRetry+1)
}

// PayResult 支付结果
type PayResult struct {
	Order      *model.Order `json:"order"`
	Settlement *Settlement  `json:"settlement"`
}

// Pay 仅买家可以支付待支付订单，支付金额必须与订单金额一致
func (s *OrderService) Pay(ctx context.Context, orderNo string, req *PaymentRequest, actorID int64) (*PayResult, error) {
	if req == nil {
		return nil, apperr.New(apperr.KindInvalidArgument, "缺少支付参数")
	}

	start := time.Now()
	var settlement *Settlement
	order, err := s.mutate(ctx, orderNo, func(tx *gorm.DB, order *model.Order, saga *balanceSaga) error {
		if !order.IsParticipant(actorID) {
			return apperr.New(apperr.KindUnauthorized, "用户 %d 无权支付订单 %s", actorID, orderNo)
		}
		if order.Status != model.OrderStatusPendingPayment {
			return apperr.New(apperr.KindInvalidTransition, "订单 %s 状态为 %s，不能支付", orderNo, order.Status)
		}
		if order.BuyerID != actorID {
			return apperr.New(apperr.KindUnauthorized, "只有买家可以支付订单 %s", orderNo)
		}
		if err := s.checkNotPurchased(ctx, tx, order); err != nil {
			return err
		}

		var err error
		settlement, err = s.dispatcher.Settle(ctx, tx, order, req, saga)
		if err != nil {
			return err
		}

		now := time.Now()
		fields := map[string]interface{}{
			"payment_method": settlement.Method,
			"points_amount":  settlement.PointsAmount,
			"balance_amount": settlement.BalanceAmount,
			"balance_ref":    settlement.BalanceReference,
			"paid_at":        now,
		}
		return s.record(ctx, tx, order, model.OrderStatusPaid, actor{id: actorID, role: model.RoleBuyer}, "", fields, nil)
	})
	metrics.PaymentDuration.WithLabelValues(req.Method, metrics.Result(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		if IsSettlementFailure(err) {
			s.log.Warn("订单支付失败", zap.String("order_no", orderNo), zap.String("method", req.Method), zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("订单支付成功",
		zap.String("order_no", orderNo), zap.String("method", settlement.Method),
		zap.Int64("points", settlement.PointsAmount), zap.Int64("balance", settlement.BalanceAmount))
	return &PayResult{Order: order, Settlement: settlement}, nil
}

// checkNotPurchased 并发下单可能产生多个待支付订单，只允许其中一个支付成功
func (s *OrderService) checkNotPurchased(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	paid, err := s.orderRepo.FindByBuyerAndProject(ctx, tx, order.BuyerID, order.ProjectID, []string{
		model.OrderStatusPaid, model.OrderStatusCompleted,
	})
	if err != nil {
		return err
	}
	if len(paid) > 0 {
		return apperr.New(apperr.KindAlreadyPurchased, "用户 %d 已通过订单 %s 购买项目 %d",
			order.BuyerID, paid[0].OrderNo, order.ProjectID)
	}
	return nil
}

// TransitionResult 取消、退款等状态变更的结果，Reversal 仅在已支付订单被冲正时存在
type TransitionResult struct {
	Order    *model.Order    `json:"order"`
	Reversal *ReversalResult `json:"reversal,omitempty"`
}

// Cancel 买家或卖家取消订单，已支付订单先冲正
func (s *OrderService) Cancel(ctx context.Context, orderNo string, actorID int64, reason string) (*TransitionResult, error) {
	return s.participantTransition(ctx, orderNo, actorID, model.OrderStatusCancelled, reason, false)
}

// Complete 买家或卖家确认完成
func (s *OrderService) Complete(ctx context.Context, orderNo string, actorID int64) (*TransitionResult, error) {
	return s.participantTransition(ctx, orderNo, actorID, model.OrderStatusCompleted, "", false)
}

// RequestRefund 仅买家可以对已支付订单申请退款
func (s *OrderService) RequestRefund(ctx context.Context, orderNo string, buyerID int64, reason string) (*TransitionResult, error) {
	return s.participantTransition(ctx, orderNo, buyerID, model.OrderStatusRefunded, reason, true)
}

func (s *OrderService) participantTransition(ctx context.Context, orderNo string, actorID int64, to, reason string, buyerOnly bool) (*TransitionResult, error) {
	var reversal *ReversalResult
	order, err := s.mutate(ctx, orderNo, func(tx *gorm.DB, order *model.Order, saga *balanceSaga) error {
		role := order.RoleOf(actorID)
		if role == "" || (buyerOnly && role != model.RoleBuyer) {
			return apperr.New(apperr.KindUnauthorized, "用户 %d 无权操作订单 %s", actorID, orderNo)
		}
		var err error
		reversal, err = s.advance(ctx, tx, order, saga, to, actor{id: actorID, role: role}, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("订单状态变更", zap.String("order_no", orderNo), zap.String("status", to), zap.Int64("actor_id", actorID))
	return &TransitionResult{Order: order, Reversal: reversal}, nil
}

// advance 把已锁定的订单推进到 to；已支付订单取消或退款时先执行冲正
func (s *OrderService) advance(ctx context.Context, tx *gorm.DB, order *model.Order, saga *balanceSaga, to string, by actor, reason string) (*ReversalResult, error) {
	if !model.CanTransitionTo(order.Status, to) {
		return nil, apperr.New(apperr.KindInvalidTransition, "订单 %s 状态为 %s，不能变更为 %s", order.OrderNo, order.Status, to)
	}

	now := time.Now()
	fields := map[string]interface{}{}
	switch to {
	case model.OrderStatusCompleted:
		fields["completed_at"] = now
	case model.OrderStatusCancelled:
		fields["cancelled_at"] = now
		fields["cancel_reason"] = reason
	case model.OrderStatusRefunded:
		fields["refunded_at"] = now
		fields["cancel_reason"] = reason
	}

	var reversal *ReversalResult
	if order.Status == model.OrderStatusPaid && to != model.OrderStatusCompleted {
		var err error
		reversal, err = s.refund.Reverse(ctx, tx, order, saga, reason)
		if err != nil {
			return nil, err
		}
	}

	if err := s.record(ctx, tx, order, to, by, reason, fields, reversal); err != nil {
		return nil, err
	}
	return reversal, nil
}

// record 条件更新订单状态，并在同一事务中写订单日志和 outbox 事件
func (s *OrderService) record(ctx context.Context, tx *gorm.DB, order *model.Order, to string, by actor, remark string,
	fields map[string]interface{}, reversal *ReversalResult) error {

	from := order.Status
	if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, from, to, fields); err != nil {
		return err
	}

	entry := &model.OrderLog{
		OrderNo:      order.OrderNo,
		FromStatus:   from,
		ToStatus:     to,
		OperatorID:   by.id,
		OperatorRole: by.role,
		Remark:       remark,
	}
	if err := s.orderLogRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("写订单日志失败: %w", err)
	}

	updated, err := s.orderRepo.GetByOrderNo(ctx, tx, order.OrderNo)
	if err != nil {
		return err
	}
	*order = *updated

	event := s.newEvent(order, statusEvents[to], remark)
	if reversal != nil {
		event.LiabilityAmount = reversal.LiabilityAmount()
	}
	if err := s.publish(ctx, tx, event); err != nil {
		return err
	}
	if reversal != nil {
		for _, l := range reversal.Liabilities {
			e := s.newEvent(order, model.EventLiabilityRecorded, l.Leg)
			e.LiabilityAmount = l.Amount
			if err := s.publish(ctx, tx, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *OrderService) newEvent(order *model.Order, eventType, reason string) *model.OrderEvent {
	return &model.OrderEvent{
		EventType:     eventType,
		OrderNo:       order.OrderNo,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		ProjectID:     order.ProjectID,
		Amount:        order.Amount,
		PaymentMethod: order.PaymentMethod,
		Status:        order.Status,
		Reason:        reason,
		OccurredAt:    time.Now(),
	}
}

func (s *OrderService) publish(ctx context.Context, tx *gorm.DB, event *model.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化订单事件失败: %w", err)
	}
	msg := &model.OutboxMessage{
		MessageKey: event.OrderNo,
		EventType:  event.EventType,
		Topic:      s.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入 outbox 失败: %w", err)
	}
	return nil
}

// mutate 在订单锁和数据库事务内执行 fn
//
// 事务失败时对已生效的余额操作执行补偿。
func (s *OrderService) mutate(ctx context.Context, orderNo string, fn func(tx *gorm.DB, order *model.Order, saga *balanceSaga) error) (*model.Order, error) {
	var result *model.Order
	var from string
	saga := newBalanceSaga(s.balance, s.ids.NextID(), s.log)

	err := s.locker.WithLock(ctx, lock.OrderLockKey(orderNo), func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			order, err := s.orderRepo.GetByOrderNoForUpdate(ctx, tx, orderNo)
			if err != nil {
				return err
			}
			from = order.Status
			if err := fn(tx, order, saga); err != nil {
				return err
			}
			result = order
			return nil
		})
	})
	if err != nil {
		if cerr := saga.Compensate(ctx); cerr != nil {
			s.log.Error("订单事务失败且余额补偿失败", zap.String("order_no", orderNo), zap.Error(cerr))
		}
		return nil, err
	}

	if result.Status != from {
		metrics.OrderTransitionsTotal.WithLabelValues(from, result.Status).Inc()
	}
	return result, nil
}

// Get 仅买卖双方可以查看订单
func (s *OrderService) Get(ctx context.Context, orderNo string, actorID int64) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(actorID) {
		return nil, apperr.New(apperr.KindUnauthorized, "用户 %d 无权查看订单 %s", actorID, orderNo)
	}
	return order, nil
}

// ListByUser role 为空时返回买入和卖出的全部订单
func (s *OrderService) ListByUser(ctx context.Context, userID int64, role, status string, page, pageSize int) ([]*model.Order, int64, error) {
	switch role {
	case "", model.RoleBuyer, model.RoleSeller:
	default:
		return nil, 0, apperr.New(apperr.KindInvalidArgument, "不支持的角色: %s", role)
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.orderRepo.ListByUser(ctx, userID, role, status, page, pageSize)
}

// ListLogs 订单状态变更记录
func (s *OrderService) ListLogs(ctx context.Context, orderNo string, actorID int64) ([]*model.OrderLog, error) {
	if _, err := s.Get(ctx, orderNo, actorID); err != nil {
		return nil, err
	}
	return s.orderLogRepo.ListByOrderNo(ctx, orderNo)
}

// AdminGet 管理员查看订单及其流水和欠款
func (s *OrderService) AdminGet(ctx context.Context, orderNo string) (*OrderDetail, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if err != nil {
		return nil, err
	}
	detail := &OrderDetail{Order: order}
	if detail.Transactions, err = s.txRepo.ListByOrderNo(ctx, nil, orderNo); err != nil {
		return nil, err
	}
	if detail.Liabilities, err = s.liabRepo.ListByOrderNo(ctx, nil, orderNo); err != nil {
		return nil, err
	}
	if detail.Logs, err = s.orderLogRepo.ListByOrderNo(ctx, orderNo); err != nil {
		return nil, err
	}
	return detail, nil
}

type OrderDetail struct {
	Order        *model.Order              `json:"order"`
	Transactions []*model.PointTransaction `json:"transactions"`
	Liabilities  []*model.SellerLiability  `json:"liabilities"`
	Logs         []*model.OrderLog         `json:"logs"`
}

// BatchItemResult 批量操作中单个订单的结果
type BatchItemResult struct {
	OrderNo string `json:"order_no"`
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AdminForceStatus 管理员批量变更订单状态，单个订单失败不影响其他订单
//
// 不能强制变更为 PAID：支付必须经过结算。
func (s *OrderService) AdminForceStatus(ctx context.Context, orderNos []string, target string, operatorID int64, reason string) ([]BatchItemResult, error) {
	if len(orderNos) == 0 || len(orderNos) > maxBatchSize {
		return nil, apperr.New(apperr.KindInvalidArgument, "订单数量必须在 1-%d 之间", maxBatchSize)
	}
	switch target {
	case model.OrderStatusCancelled, model.OrderStatusCompleted, model.OrderStatusRefunded:
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "不能强制变更为状态 %s", target)
	}

	by := actor{id: operatorID, role: model.RoleAdmin}
	results := make([]BatchItemResult, 0, len(orderNos))
	for _, orderNo := range orderNos {
		order, err := s.mutate(ctx, orderNo, func(tx *gorm.DB, order *model.Order, saga *balanceSaga) error {
			_, err := s.advance(ctx, tx, order, saga, target, by, reason)
			return err
		})
		if err != nil {
			s.log.Warn("管理员变更订单状态失败", zap.String("order_no", orderNo), zap.String("target", target), zap.Error(err))
			results = append(results, BatchItemResult{OrderNo: orderNo, Error: err.Error()})
			continue
		}
		results = append(results, BatchItemResult{OrderNo: orderNo, Success: true, Status: order.Status})
	}

	s.log.Info("管理员批量变更订单状态",
		zap.Int64("operator_id", operatorID), zap.String("target", target), zap.Int("count", len(orderNos)))
	return results, nil
}
