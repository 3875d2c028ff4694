package job

import (
	"context"

	"pointmarket/internal/config"
	"pointmarket/internal/infrastructure/mq"
	"pointmarket/internal/metrics"
	"pointmarket/internal/model"
	"pointmarket/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender 轮询本地消息表投递订单事件，至少投递一次
type OutboxSender struct {
	*tickerJob
	outboxRepo    *repository.OutboxRepository
	publisher     mq.Publisher
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config, log *zap.Logger) *OutboxSender {
	s := &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		publisher:     publisher,
		batchSize:     cfg.Jobs.OutboxSenderBatchSize,
		maxRetryCount: cfg.Business.MaxRetryCount,
	}
	s.tickerJob = newTickerJob("outbox_sender", cfg.Jobs.OutboxSenderInterval, log, func(ctx context.Context) {
		s.ProcessPendingMessages(ctx)
	})
	return s
}

// ProcessPendingMessages 返回本次发送成功的条数
func (s *OutboxSender) ProcessPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error("查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxMessagesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			// 下一轮会重复投递，消费方按 order_no + event_type 去重
			s.log.Error("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
		}
		return true
	}

	metrics.OutboxMessagesTotal.WithLabelValues(metrics.ResultFailed).Inc()
	s.log.Warn("消息发送失败", zap.Int64("id", msg.ID), zap.String("event", msg.EventType), zap.Error(err))

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			s.log.Error("标记消息失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
			return false
		}
		s.log.Error("消息超过最大重试次数，标记为失败", zap.Int64("id", msg.ID), zap.String("key", msg.MessageKey))
		return false
	}

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.log.Error("增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}
	return false
}

// RetryFailed 把最多 limit 条失败消息重新放回待发送队列
func (s *OutboxSender) RetryFailed(ctx context.Context, limit int) (int64, error) {
	messages, err := s.outboxRepo.GetFailedMessages(ctx, limit)
	if err != nil || len(messages) == 0 {
		return 0, err
	}
	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	n, err := s.outboxRepo.ResetFailed(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.log.Info("失败消息已重新入队", zap.Int64("count", n))
	return n, nil
}
