package mq

import (
	"context"
	"fmt"

	"pointmarket/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Publisher 事件投递
type Publisher interface {
	Publish(ctx context.Context, topic, key, value string) error
}

// NewSyncProducer 创建 Kafka 同步生产者
func NewSyncProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return producer, nil
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	log      *zap.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, log: log}
}

func (p *KafkaPublisher) Publish(_ context.Context, topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送 Kafka 消息失败: %w", err)
	}
	p.log.Debug("Kafka 消息已发送",
		zap.String("topic", topic), zap.String("key", key),
		zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher 未启用 Kafka 时只记录日志，保证本地消息表可以被消费
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic, key, value string) error {
	p.log.Info("事件（未启用 Kafka）", zap.String("topic", topic), zap.String("key", key), zap.String("payload", value))
	return nil
}
