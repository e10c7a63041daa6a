// 文件: pkg/nats/publisher.go
// NATS 连接与发布
//
// 一个进程只建一条连接，发布、订阅、请求-应答共用。

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Config NATS 连接配置
type Config struct {
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects  int           `mapstructure:"max_reconnects"` // -1 无限重连
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Name:           "pricer",
		RequestTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
	}
}

// Connect 建立连接，断线/重连事件写日志
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Publisher NATS 发布者
type Publisher struct {
	conn    *nats.Conn
	timeout time.Duration
}

// NewPublisher timeout 用于没有 deadline 的 Request
func NewPublisher(conn *nats.Conn, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultConfig().RequestTimeout
	}
	return &Publisher{conn: conn, timeout: timeout}
}

// Publish 发布 JSON 消息
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, bytes)
}

// Request 请求-应答，req/resp 都是 JSON
// 对端处理失败时返回 *RemoteError
func (p *Publisher) Request(ctx context.Context, subject string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg, err := p.conn.RequestWithContext(ctx, subject, body)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	return decodeReply(msg.Data, resp)
}

// Flush 等待服务端确认已收到所有发布
func (p *Publisher) Flush() error {
	return p.conn.Flush()
}
