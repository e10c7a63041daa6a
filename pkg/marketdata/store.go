// 文件: pkg/marketdata/store.go
// 日收盘价存储 (Redis ZSET)
//
// Key:    marketdata:closes:{TICKER}
// Score:  日期 (Unix 天数)
// Member: "{天数}:{收盘价}"
//
// 同一天重复写入时先按 score 删除旧成员再 ZADD，保证每天只有一条。
// 上游行情通过 NATS 推送收盘价，API 层调用 RecordClose 入库。

package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const closesKeyPrefix = "marketdata:closes:"

// ErrNoData 标的没有任何收盘价
var ErrNoData = errors.New("no market data")

// Provider 外部行情源
// 国债指数与股票一样按代码取最新收盘价
type Provider interface {
	LastClose(ctx context.Context, ticker string) (float64, error)
	Closes(ctx context.Context, ticker string, from time.Time) ([]float64, error)
}

var _ Provider = (*RedisCloseStore)(nil)

// RedisCloseStore 基于 Redis 的收盘价序列
type RedisCloseStore struct {
	client *redis.Client
}

func NewRedisCloseStore(client *redis.Client) *RedisCloseStore {
	return &RedisCloseStore{client: client}
}

// luaRecordClose
// KEYS[1]: closesKey
// ARGV[1]: day
// ARGV[2]: member
const luaRecordClose = `
	redis.call('ZREMRANGEBYSCORE', KEYS[1], ARGV[1], ARGV[1])
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
	return 1
`

// RecordClose 写入某日收盘价，同日覆盖
func (s *RedisCloseStore) RecordClose(ctx context.Context, ticker string, day time.Time, price float64) error {
	ticker = SanitizeTicker(ticker)
	if ticker == "" {
		return fmt.Errorf("record close: empty ticker")
	}
	if price <= 0 {
		return fmt.Errorf("record close %s: price must be positive, got %v", ticker, price)
	}
	d := civilDays(day)
	member := strconv.FormatInt(d, 10) + ":" + strconv.FormatFloat(price, 'f', -1, 64)
	return s.client.Eval(ctx, luaRecordClose, []string{closesKeyPrefix + ticker}, d, member).Err()
}

// LastClose 最近一日收盘价
func (s *RedisCloseStore) LastClose(ctx context.Context, ticker string) (float64, error) {
	members, err := s.client.ZRevRange(ctx, closesKeyPrefix+SanitizeTicker(ticker), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("last close %s: %w", ticker, err)
	}
	if len(members) == 0 {
		return 0, fmt.Errorf("last close %s: %w", ticker, ErrNoData)
	}
	return parseCloseMember(members[0])
}

// Closes from 当日及之后的收盘价，按日期升序
func (s *RedisCloseStore) Closes(ctx context.Context, ticker string, from time.Time) ([]float64, error) {
	members, err := s.client.ZRangeByScore(ctx, closesKeyPrefix+SanitizeTicker(ticker), &redis.ZRangeBy{
		Min: strconv.FormatInt(civilDays(from), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("closes %s: %w", ticker, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("closes %s: %w", ticker, ErrNoData)
	}

	out := make([]float64, 0, len(members))
	for _, m := range members {
		v, err := parseCloseMember(m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseCloseMember(m string) (float64, error) {
	_, price, ok := strings.Cut(m, ":")
	if !ok {
		return 0, fmt.Errorf("malformed close member %q", m)
	}
	return strconv.ParseFloat(price, 64)
}

// WindowStart 回看窗口 ("3mo", "1y" ...) 的起始日期
func WindowStart(now time.Time, window string) (time.Time, error) {
	switch {
	case strings.HasSuffix(window, "mo"):
		n, err := strconv.Atoi(strings.TrimSuffix(window, "mo"))
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("invalid window %q", window)
		}
		return now.AddDate(0, -n, 0), nil
	case strings.HasSuffix(window, "y"):
		n, err := strconv.Atoi(strings.TrimSuffix(window, "y"))
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("invalid window %q", window)
		}
		return now.AddDate(-n, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("invalid window %q", window)
}
