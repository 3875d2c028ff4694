package job

import (
	"context"
	"time"

	"pointmarket/internal/config"
	"pointmarket/internal/service"

	"go.uber.org/zap"
)

// tickerJob 按固定间隔执行 run，直到 ctx 取消或 Stop
type tickerJob struct {
	name     string
	interval time.Duration
	stopCh   chan struct{}
	log      *zap.Logger
	run      func(ctx context.Context)
}

func newTickerJob(name string, interval time.Duration, log *zap.Logger, run func(ctx context.Context)) *tickerJob {
	return &tickerJob{
		name:     name,
		interval: interval,
		stopCh:   make(chan struct{}),
		log:      log.Named(name),
		run:      run,
	}
}

func (j *tickerJob) Start(ctx context.Context) {
	j.log.Info("任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *tickerJob) Stop() {
	close(j.stopCh)
}

// OrderTimeoutJob 定时取消超时未支付的订单
type OrderTimeoutJob struct {
	*tickerJob
	sweeper *service.Sweeper
	cutoff  int
}

func NewOrderTimeoutJob(sweeper *service.Sweeper, cfg *config.Config, log *zap.Logger) *OrderTimeoutJob {
	j := &OrderTimeoutJob{sweeper: sweeper, cutoff: cfg.Business.OrderTimeoutMinutes}
	j.tickerJob = newTickerJob("order_timeout", cfg.Jobs.TimeoutSweepInterval, log, j.RunOnce)
	return j
}

func (j *OrderTimeoutJob) RunOnce(ctx context.Context) {
	result, err := j.sweeper.SweepTimeouts(ctx, j.cutoff)
	if err != nil {
		j.log.Error("超时订单清理中断", zap.Error(err))
		return
	}
	if result.Transitioned > 0 {
		j.log.Info("本次取消超时订单", zap.Int("count", result.Transitioned), zap.Int("failed", result.Failed))
	}
}

// AutoCompleteJob 定时确认完成已支付过久的订单
type AutoCompleteJob struct {
	*tickerJob
	sweeper *service.Sweeper
	cutoff  int
}

func NewAutoCompleteJob(sweeper *service.Sweeper, cfg *config.Config, log *zap.Logger) *AutoCompleteJob {
	j := &AutoCompleteJob{sweeper: sweeper, cutoff: cfg.Business.AutoCompleteDays}
	j.tickerJob = newTickerJob("auto_complete", cfg.Jobs.AutoCompleteInterval, log, j.RunOnce)
	return j
}

func (j *AutoCompleteJob) RunOnce(ctx context.Context) {
	result, err := j.sweeper.SweepAutoComplete(ctx, j.cutoff)
	if err != nil {
		j.log.Error("自动完成任务中断", zap.Error(err))
		return
	}
	if result.Transitioned > 0 {
		j.log.Info("本次自动完成订单", zap.Int("count", result.Transitioned), zap.Int("failed", result.Failed))
	}
}

// LedgerAuditJob 定时对账，发现不一致只告警
type LedgerAuditJob struct {
	*tickerJob
	ledger    *service.LedgerService
	batchSize int
}

func NewLedgerAuditJob(ledger *service.LedgerService, cfg *config.Config, log *zap.Logger) *LedgerAuditJob {
	j := &LedgerAuditJob{ledger: ledger, batchSize: cfg.Business.SweepBatchSize}
	j.tickerJob = newTickerJob("ledger_audit", cfg.Jobs.LedgerAuditInterval, log, j.RunOnce)
	return j
}

func (j *LedgerAuditJob) RunOnce(ctx context.Context) {
	found, err := j.ledger.FindInconsistentAccounts(ctx, j.batchSize)
	if err != nil {
		j.log.Error("对账失败", zap.Error(err))
		return
	}
	for _, item := range found {
		j.log.Warn("积分账户与流水不一致",
			zap.Int64("user_id", item.UserID),
			zap.Int64("available", item.AvailablePoints), zap.Int64("logged_available", item.LoggedAvailable),
			zap.Int64("frozen", item.FrozenPoints), zap.Int64("logged_frozen", item.LoggedFrozen),
			zap.Int64("total", item.TotalPoints))
	}
}
