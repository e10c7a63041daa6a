// 文件: pkg/nats/subscriber.go
// NATS 订阅与请求-应答服务端

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// MessageHandler 普通订阅处理函数
type MessageHandler func(subject string, data []byte) error

// ReplyHandler 请求处理函数，返回值序列化后作为应答
type ReplyHandler func(ctx context.Context, data []byte) (any, error)

// ErrorClassifier 把处理错误映射成应答里的错误码
type ErrorClassifier func(err error) string

// Subscriber NATS 订阅者
type Subscriber struct {
	conn     *nats.Conn
	subs     []*nats.Subscription
	logger   *slog.Logger
	timeout  time.Duration
	classify ErrorClassifier
}

// NewSubscriber timeout 为单个请求的处理时限
func NewSubscriber(conn *nats.Conn, timeout time.Duration, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultConfig().RequestTimeout
	}
	return &Subscriber{
		conn:     conn,
		logger:   logger.With("component", "nats"),
		timeout:  timeout,
		classify: func(error) string { return CodeInternal },
	}
}

// WithClassifier 设置错误码映射
func (s *Subscriber) WithClassifier(fn ErrorClassifier) *Subscriber {
	if fn != nil {
		s.classify = fn
	}
	return s
}

// Subscribe 订阅主题
func (s *Subscriber) Subscribe(handler MessageHandler, subjects ...string) error {
	for _, subject := range subjects {
		sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
			if err := handler(msg.Subject, msg.Data); err != nil {
				s.logger.Error("handle message failed", "subject", msg.Subject, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// SubscribeQueue 队列订阅 (负载均衡)
func (s *Subscriber) SubscribeQueue(subject, queue string, handler MessageHandler) error {
	sub, err := s.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if err := handler(msg.Subject, msg.Data); err != nil {
			s.logger.Error("handle message failed", "subject", msg.Subject, "queue", queue, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("queue subscribe %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Reply 注册请求-应答处理，queue 非空时多实例分摊请求
func (s *Subscriber) Reply(subject, queue string, handler ReplyHandler) error {
	cb := func(msg *nats.Msg) {
		if msg.Reply == "" {
			s.logger.Warn("request without reply subject dropped", "subject", msg.Subject)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		out, err := handler(ctx, msg.Data)
		data, encErr := encodeReply(out, err, s.classify)
		if encErr != nil {
			s.logger.Error("encode reply failed", "subject", msg.Subject, "error", encErr)
			data, _ = encodeReply(nil, encErr, s.classify)
		}
		if err != nil {
			s.logger.Debug("request failed", "subject", msg.Subject, "error", err)
		}
		if rerr := msg.Respond(data); rerr != nil {
			s.logger.Error("respond failed", "subject", msg.Subject, "error", rerr)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = s.conn.QueueSubscribe(subject, queue, cb)
	} else {
		sub, err = s.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("reply subscribe %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close 退订，连接由创建方关闭
func (s *Subscriber) Close() error {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", "subject", sub.Subject, "error", err)
		}
	}
	s.subs = nil
	return nil
}

// =============================================================================
// 便捷方法
// =============================================================================

// UnmarshalJSON 反序列化 JSON
func UnmarshalJSON[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
