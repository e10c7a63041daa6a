// 文件: pkg/api/bus.go
// 消息总线入口
//
//	NATS pricing.option / pricing.strategy  请求-应答，队列订阅
//	NATS marketdata.closes                  收盘价推送，写入 Redis
//	Kafka pricing.requests                  批量报价，结果经报价事件流出

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	pnats "optlab.com/pkg/nats"
	"optlab.com/pkg/quote"
)

// ErrBadPayload 消息体无法解析
var ErrBadPayload = errors.New("bad payload")

const recordCloseTimeout = 3 * time.Second

// CloseUpdate 收盘价推送
type CloseUpdate struct {
	Ticker string  `json:"ticker"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Close  float64 `json:"close"`
}

// CloseRecorder 收盘价写入
type CloseRecorder interface {
	RecordClose(ctx context.Context, ticker string, day time.Time, price float64) error
}

// BatchRequest 批量报价
type BatchRequest struct {
	Options    []quote.OptionRequest   `json:"options"`
	Strategies []quote.StrategyRequest `json:"strategies"`
}

// Subjects NATS 主题
type Subjects struct {
	Queue    string
	Option   string
	Strategy string
	Closes   string // 为空时不订阅
}

// Bus NATS / Kafka 处理器
type Bus struct {
	svc    *quote.Service
	closes CloseRecorder
	logger *slog.Logger
}

// NewBus closes 可以为 nil (不接收收盘价)
func NewBus(svc *quote.Service, closes CloseRecorder, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{svc: svc, closes: closes, logger: logger.With("component", "bus")}
}

// Register 在订阅者上注册全部 NATS 处理
func (b *Bus) Register(sub *pnats.Subscriber, subjects Subjects) error {
	sub.WithClassifier(Classify)
	if err := sub.Reply(subjects.Option, subjects.Queue, b.PriceOption); err != nil {
		return err
	}
	if err := sub.Reply(subjects.Strategy, subjects.Queue, b.AnalyzeStrategy); err != nil {
		return err
	}
	if subjects.Closes != "" && b.closes != nil {
		// 每个实例共享同一个 Redis，队列订阅避免重复写
		if err := sub.SubscribeQueue(subjects.Closes, subjects.Queue, b.RecordClose); err != nil {
			return err
		}
	}
	return nil
}

// PriceOption NATS 单个期权报价
func (b *Bus) PriceOption(ctx context.Context, data []byte) (any, error) {
	var req quote.OptionRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return b.svc.PriceOption(ctx, req)
}

// AnalyzeStrategy NATS 策略分析
func (b *Bus) AnalyzeStrategy(ctx context.Context, data []byte) (any, error) {
	var req quote.StrategyRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return b.svc.AnalyzeStrategy(ctx, req)
}

// RecordClose 收盘价推送
func (b *Bus) RecordClose(_ string, data []byte) error {
	if b.closes == nil {
		return nil
	}
	var u CloseUpdate
	if err := decode(data, &u); err != nil {
		return err
	}
	day, err := time.Parse(time.DateOnly, u.Date)
	if err != nil {
		return fmt.Errorf("%w: date %q", ErrBadPayload, u.Date)
	}
	if u.Ticker == "" || u.Close <= 0 {
		return fmt.Errorf("%w: close update %+v", ErrBadPayload, u)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordCloseTimeout)
	defer cancel()
	return b.closes.RecordClose(ctx, u.Ticker, day, u.Close)
}

// HandleBatch Kafka 批量报价，单条失败不影响其余
func (b *Bus) HandleBatch(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var batch BatchRequest
	if err := decode(msg.Value, &batch); err != nil {
		return err
	}

	var errs []error
	for i, req := range batch.Options {
		if _, err := b.svc.PriceOption(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("option %d: %w", i, err))
		}
	}
	for i, req := range batch.Strategies {
		if _, err := b.svc.AnalyzeStrategy(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("strategy %d: %w", i, err))
		}
	}
	b.logger.Debug("batch processed",
		"offset", msg.Offset,
		"options", len(batch.Options),
		"strategies", len(batch.Strategies),
		"failed", len(errs))
	return errors.Join(errs...)
}

// Classify 错误到应答错误码
func Classify(err error) string {
	if quote.IsInvalid(err) || errors.Is(err, ErrBadPayload) {
		return pnats.CodeInvalidArgument
	}
	return pnats.CodeInternal
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
