// 文件: pkg/kafka/producer.go
// Kafka 异步生产者
//
// 发送不等待 broker 确认，失败通过 Errors 通道回收，
// 记日志并回调 OnError (用于指标)。

package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

// ErrProducerClosed 生产者已关闭
var ErrProducerClosed = errors.New("kafka producer is closed")

// =============================================================================
// Message 接口
// =============================================================================

// Message 所有发往 Kafka 的消息
type Message interface {
	Topic() string          // 目标 topic
	Key() string            // 分区 key (相同 key 保证顺序)
	Value() ([]byte, error) // 序列化后的消息体
}

// =============================================================================
// 配置
// =============================================================================

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	RequiredAcks   int           `mapstructure:"required_acks"`   // 0=不等待, 1=leader, -1=全部副本
	Compression    string        `mapstructure:"compression"`     // none, gzip, snappy, lz4, zstd
	FlushFrequency time.Duration `mapstructure:"flush_frequency"` // 刷新间隔
	FlushMessages  int           `mapstructure:"flush_messages"`  // 批量消息数
	MaxRetries     int           `mapstructure:"max_retries"`
}

// DefaultProducerConfig 默认配置
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:        brokers,
		RequiredAcks:   1,
		Compression:    "snappy",
		FlushFrequency: 100 * time.Millisecond,
		FlushMessages:  100,
		MaxRetries:     3,
	}
}

// SaramaConfig 转成 sarama 配置
func (c ProducerConfig) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()

	switch c.RequiredAcks {
	case 0:
		sc.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		sc.Producer.RequiredAcks = sarama.WaitForAll
	default:
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch c.Compression {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	sc.Producer.Flush.Frequency = c.FlushFrequency
	sc.Producer.Flush.Messages = c.FlushMessages
	sc.Producer.Retry.Max = c.MaxRetries
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	return sc
}

// =============================================================================
// Producer
// =============================================================================

// Producer 异步生产者
type Producer struct {
	producer sarama.AsyncProducer
	logger   *slog.Logger

	// OnError 发送失败回调，在错误处理 goroutine 中调用
	OnError func(topic string, err error)

	sentCount  atomic.Int64
	errorCount atomic.Int64

	mu     sync.RWMutex // 保护 closed 与 Input 之间的竞态
	closed bool
	wg     sync.WaitGroup
}

// NewProducer 连接 broker 并创建生产者
func NewProducer(cfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	ap, err := sarama.NewAsyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFrom(ap, logger), nil
}

// NewProducerFrom 包装已有的 AsyncProducer (测试可传 sarama/mocks)
func NewProducerFrom(ap sarama.AsyncProducer, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{
		producer: ap,
		logger:   logger.With("component", "kafka-producer"),
	}
	p.wg.Add(1)
	go p.handleErrors()
	return p
}

// Send 异步发送，Input 阻塞时受 ctx 控制
func (p *Producer) Send(ctx context.Context, msg Message) error {
	data, err := msg.Value()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	return p.SendRaw(ctx, msg.Topic(), msg.Key(), data)
}

// SendRaw 发送原始消息
func (p *Producer) SendRaw(ctx context.Context, topic, key string, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	m := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	select {
	case p.producer.Input() <- m:
		p.sentCount.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) handleErrors() {
	defer p.wg.Done()

	for perr := range p.producer.Errors() {
		p.errorCount.Add(1)
		topic := ""
		if perr.Msg != nil {
			topic = perr.Msg.Topic
		}
		p.logger.Error("kafka send failed", "topic", topic, "error", perr.Err)
		if p.OnError != nil {
			p.OnError(topic, perr.Err)
		}
	}
}

// ProducerStats 统计信息
type ProducerStats struct {
	SentCount  int64
	ErrorCount int64
}

// Stats 获取统计信息
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		SentCount:  p.sentCount.Load(),
		ErrorCount: p.errorCount.Load(),
	}
}

// Close 刷出缓冲并关闭，可重复调用
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}
