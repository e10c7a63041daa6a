// 文件: pkg/quote/events.go
// 报价事件发布
//
// Kafka 给下游风控/报表消费，NATS 给实时看板。两者可同时启用。

package quote

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"optlab.com/pkg/kafka"
	pnats "optlab.com/pkg/nats"
)

// 默认 topic / subject
const (
	DefaultQuoteTopic   = "pricing.quotes"
	DefaultQuoteSubject = "pricing.events.quote"
)

// QuoteEvent 报价完成事件
type QuoteEvent struct {
	ID        int64           `json:"id,string"`
	Type      string          `json:"type"` // option / strategy
	Model     string          `json:"model"`
	Name      string          `json:"name"`
	Ticker    string          `json:"ticker,omitempty"`
	Value     float64         `json:"value"`
	Quote     json.RawMessage `json:"quote"`
	Timestamp int64           `json:"timestamp"` // 毫秒
}

func newEvent(rec *QuoteRecord) *QuoteEvent {
	v, _ := rec.Value.Float64()
	return &QuoteEvent{
		ID:        rec.ID,
		Type:      rec.Type,
		Model:     rec.Model,
		Name:      rec.Name,
		Ticker:    rec.Ticker,
		Value:     v,
		Quote:     json.RawMessage(rec.Payload),
		Timestamp: rec.CreatedAt,
	}
}

// EventPublisher 事件发布
type EventPublisher interface {
	PublishQuote(ctx context.Context, ev *QuoteEvent) error
}

// =============================================================================
// Kafka
// =============================================================================

// quoteMessage 实现 kafka.Message，key 为报价 ID
type quoteMessage struct {
	topic string
	ev    *QuoteEvent
}

func (m quoteMessage) Topic() string          { return m.topic }
func (m quoteMessage) Key() string            { return strconv.FormatInt(m.ev.ID, 10) }
func (m quoteMessage) Value() ([]byte, error) { return json.Marshal(m.ev) }

// kafkaSender 生产者能力，方便替换
type kafkaSender interface {
	Send(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher 报价事件写 Kafka
type KafkaPublisher struct {
	producer kafkaSender
	topic    string
}

func NewKafkaPublisher(producer *kafka.Producer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultQuoteTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishQuote(ctx context.Context, ev *QuoteEvent) error {
	return p.producer.Send(ctx, quoteMessage{topic: p.topic, ev: ev})
}

// =============================================================================
// NATS
// =============================================================================

// NatsPublisher 报价事件发 NATS
type NatsPublisher struct {
	publisher *pnats.Publisher
	subject   string
}

func NewNatsPublisher(publisher *pnats.Publisher, subject string) *NatsPublisher {
	if subject == "" {
		subject = DefaultQuoteSubject
	}
	return &NatsPublisher{publisher: publisher, subject: subject}
}

func (p *NatsPublisher) PublishQuote(_ context.Context, ev *QuoteEvent) error {
	return p.publisher.Publish(p.subject, ev)
}

// =============================================================================
// 组合
// =============================================================================

// MultiPublisher 依次发给所有发布者，错误合并返回
type MultiPublisher []EventPublisher

func (m MultiPublisher) PublishQuote(ctx context.Context, ev *QuoteEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishQuote(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publishTimeout 事件发布不能拖慢报价响应
const publishTimeout = 2 * time.Second
