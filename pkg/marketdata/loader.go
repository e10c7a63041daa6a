// 文件: pkg/marketdata/loader.go
// 按标的和期限拉取行情快照
//
// 流程: 查缓存 → 逐项拉取 (现价 / 国债收益率 / 历史波动率) → 回填缓存
// 任何一项失败只记日志并置 nil，由 Resolve 使用缺省值。
// 没有重试，重试属于外部行情源的职责。

package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrEmptyTicker 标的代码为空
var ErrEmptyTicker = errors.New("empty ticker")

// Loader 行情快照加载器
type Loader struct {
	provider Provider
	cache    SnapshotCache
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoader cache 可以为 nil (不缓存)
func NewLoader(provider Provider, cache SnapshotCache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		provider: provider,
		cache:    cache,
		logger:   logger.With("component", "marketdata"),
		now:      time.Now,
	}
}

// Load 返回标的在给定期限下的行情快照
func (l *Loader) Load(ctx context.Context, ticker string, years float64) (*Snapshot, error) {
	ticker = SanitizeTicker(ticker)
	if ticker == "" {
		return nil, ErrEmptyTicker
	}
	treasury := SelectTreasury(years)
	window := SelectVolWindow(years)
	key := snapshotKey(ticker, treasury.Symbol, window)

	if l.cache != nil {
		snap, err := l.cache.Get(ctx, key)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, ErrSnapshotMiss) {
			l.logger.Warn("snapshot cache get failed", "key", key, "error", err)
		}
	}

	snap := &Snapshot{
		Ticker:    ticker,
		Treasury:  treasury,
		VolWindow: window,
		FetchedAt: l.now(),
	}
	snap.Inputs.Spot = l.fetchSpot(ctx, ticker)
	snap.Inputs.Rate = l.fetchRate(ctx, treasury)
	snap.Inputs.Volatility = l.fetchVol(ctx, ticker, window)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, snap); err != nil {
			l.logger.Warn("snapshot cache set failed", "key", key, "error", err)
		}
	}
	return snap, nil
}

func (l *Loader) fetchSpot(ctx context.Context, ticker string) *float64 {
	v, err := l.provider.LastClose(ctx, ticker)
	if err != nil || v <= 0 {
		l.logger.Warn("spot unavailable", "ticker", ticker, "error", errOrValue(err, v))
		return nil
	}
	return &v
}

func (l *Loader) fetchRate(ctx context.Context, t Treasury) *float64 {
	q, err := l.provider.LastClose(ctx, t.Symbol)
	if err != nil {
		l.logger.Warn("treasury yield unavailable", "symbol", t.Symbol, "error", err)
		return nil
	}
	r := YieldToRate(q)
	return &r
}

func (l *Loader) fetchVol(ctx context.Context, ticker, window string) *float64 {
	from, err := WindowStart(l.now(), window)
	if err != nil {
		l.logger.Warn("volatility unavailable", "ticker", ticker, "error", err)
		return nil
	}
	closes, err := l.provider.Closes(ctx, ticker, from)
	if err != nil {
		l.logger.Warn("volatility unavailable", "ticker", ticker, "window", window, "error", err)
		return nil
	}
	vol, err := HistoricalVolatility(closes)
	if err != nil {
		l.logger.Warn("volatility unavailable", "ticker", ticker, "window", window, "error", err)
		return nil
	}
	return &vol
}

func errOrValue(err error, v float64) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("non-positive close %v", v)
}
