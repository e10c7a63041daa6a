// 文件: pkg/marketdata/backfill.go
// 合成收盘价 (几何布朗运动)，用于演示环境和压测时回填历史
//
// 只生成交易日 (跳过周六周日)，不处理节假日。

package marketdata

import (
	"context"
	"fmt"
	"time"

	"optlab.com/pkg/pricing"
	"optlab.com/pkg/pricing/montecarlo"
)

// Close 一个交易日的收盘价
type Close struct {
	Day   time.Time `json:"day"`
	Price float64   `json:"price"`
}

// SynthParams 合成参数
type SynthParams struct {
	Spot       float64 // 最后一个交易日的目标起点
	Drift      float64 // 年化漂移
	Volatility float64 // 年化波动率
	Days       int     // 交易日数
	Seed       *uint64
}

// TradingDays 截止 end (含) 往前 n 个交易日，按时间升序
func TradingDays(end time.Time, n int) []time.Time {
	day := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := n - 1; i >= 0; {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out[i] = day
			i--
		}
		day = day.AddDate(0, 0, -1)
	}
	return out
}

// SyntheticCloses 从 Spot 出发模拟 Days 个交易日的收盘价，最后一天不晚于 end
func SyntheticCloses(ctx context.Context, sp SynthParams, end time.Time) ([]Close, error) {
	if sp.Days < 2 {
		return nil, fmt.Errorf("%w: days must be >= 2, got %d", pricing.ErrInvalidParameter, sp.Days)
	}
	p := pricing.MarketParams{
		Spot:       sp.Spot,
		Strike:     sp.Spot,
		Maturity:   float64(sp.Days-1) / TradingDaysPerYear,
		Rate:       sp.Drift,
		Volatility: sp.Volatility,
	}
	batch, err := montecarlo.Simulate(ctx, p, montecarlo.Config{
		Simulations: 1,
		Steps:       sp.Days - 1,
		Seed:        sp.Seed,
		Workers:     1,
	})
	if err != nil {
		return nil, err
	}

	path := batch.Path(0)
	days := TradingDays(end, sp.Days)
	out := make([]Close, sp.Days)
	for i := range out {
		out[i] = Close{Day: days[i], Price: path[i]}
	}
	return out, nil
}

// Backfill 写入合成收盘价
func Backfill(ctx context.Context, store *RedisCloseStore, ticker string, closes []Close) error {
	ticker = SanitizeTicker(ticker)
	if ticker == "" {
		return ErrEmptyTicker
	}
	for _, c := range closes {
		if err := store.RecordClose(ctx, ticker, c.Day, c.Price); err != nil {
			return fmt.Errorf("backfill %s %s: %w", ticker, c.Day.Format(time.DateOnly), err)
		}
	}
	return nil
}
