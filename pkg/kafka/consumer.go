// 文件: pkg/kafka/consumer.go
// Kafka 消费者组
//
// 处理失败只记日志，offset 照常提交，坏消息不阻塞分区。

package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	GroupID       string        `mapstructure:"group_id"`
	Topics        []string      `mapstructure:"topics"`
	InitialOffset string        `mapstructure:"initial_offset"` // newest / oldest
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`  // Consume 出错后的等待
}

// DefaultConsumerConfig 默认配置
func DefaultConsumerConfig(brokers []string, groupID string, topics []string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:       brokers,
		GroupID:       groupID,
		Topics:        topics,
		InitialOffset: "newest",
		RetryBackoff:  time.Second,
	}
}

// SaramaConfig 转成 sarama 配置
func (c ConsumerConfig) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.InitialOffset == "oldest" {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Return.Errors = true
	return sc
}

// Handler 单条消息处理
type Handler func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Consumer 消费者组封装
type Consumer struct {
	group   sarama.ConsumerGroup
	config  ConsumerConfig
	handler Handler
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer 创建消费者组
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		group:   group,
		config:  cfg,
		handler: handler,
		logger:  logger.With("component", "kafka-consumer", "group", cfg.GroupID),
	}, nil
}

// Start 在后台消费，ctx 取消或 Stop 时退出
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", "error", err)
		}
	}()
	go func() {
		defer c.wg.Done()
		h := &groupHandler{ctx: ctx, handler: c.handler, logger: c.logger}
		for {
			// rebalance 后 Consume 返回，需要重新加入
			err := c.group.Consume(ctx, c.config.Topics, h)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("consume failed", "topics", c.config.Topics, "error", err)
				select {
				case <-time.After(c.config.RetryBackoff):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// Stop 停止消费并关闭消费者组
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.group.Close()
	c.wg.Wait()
	return err
}

// =============================================================================
// sarama.ConsumerGroupHandler
// =============================================================================

type groupHandler struct {
	ctx     context.Context
	handler Handler
	logger  *slog.Logger
}

func (h *groupHandler) Setup(s sarama.ConsumerGroupSession) error {
	h.logger.Info("partitions assigned", "claims", s.Claims())
	return nil
}

func (h *groupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.process(session, msg)
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) process(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	if err := h.handler(h.ctx, msg); err != nil {
		h.logger.Error("handle message failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
	session.MarkMessage(msg, "")
}
