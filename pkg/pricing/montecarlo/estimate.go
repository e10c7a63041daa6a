// 文件: pkg/pricing/montecarlo/estimate.go
// 从路径估计期权价格与到期分布统计
//
// 估计值 = e^(-rT) · mean(payoff)，标准误差按 O(1/√M) 收缩。
// 未使用对偶变量/控制变量等方差缩减技术。

package montecarlo

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"optlab.com/pkg/pricing"
)

// Estimate 价格估计
type Estimate struct {
	Price  float64 `json:"price"`
	StdErr float64 `json:"std_err"` // 贴现后 payoff 的标准误差
	Paths  int     `json:"paths"`
}

// PriceFromPaths 用到期价格计算期权价格
func PriceFromPaths(b *PathBatch, kind pricing.OptionKind) (float64, error) {
	est, err := EstimateFromPaths(b, kind)
	if err != nil {
		return 0, err
	}
	return est.Price, nil
}

// EstimateFromPaths 价格 + 标准误差
func EstimateFromPaths(b *PathBatch, kind pricing.OptionKind) (Estimate, error) {
	if b == nil {
		return Estimate{}, fmt.Errorf("%w: nil path batch", pricing.ErrInvalidParameter)
	}
	if kind != pricing.Call && kind != pricing.Put {
		return Estimate{}, fmt.Errorf("%w: unknown option kind %d", pricing.ErrInvalidParameter, kind)
	}

	p := b.Params()
	disc := p.Discount()
	payoffs := b.Terminal()
	for i, st := range payoffs {
		payoffs[i] = disc * pricing.Intrinsic(kind, st, p.Strike)
	}

	n := len(payoffs)
	if n == 1 {
		return Estimate{Price: payoffs[0], Paths: 1}, nil
	}
	mean, std := stat.MeanStdDev(payoffs, nil)
	return Estimate{
		Price:  mean,
		StdErr: stat.StdErr(std, float64(n)),
		Paths:  n,
	}, nil
}

// PriceBoth 模拟一次，同时给出看涨/看跌估计
func PriceBoth(ctx context.Context, p pricing.MarketParams, cfg Config) (pricing.OptionPrice, error) {
	b, err := Simulate(ctx, p, cfg)
	if err != nil {
		return pricing.OptionPrice{}, err
	}
	call, err := PriceFromPaths(b, pricing.Call)
	if err != nil {
		return pricing.OptionPrice{}, err
	}
	put, err := PriceFromPaths(b, pricing.Put)
	if err != nil {
		return pricing.OptionPrice{}, err
	}
	return pricing.OptionPrice{Call: call, Put: put}, nil
}

// Distribution 到期价格分布统计
type Distribution struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P5     float64 `json:"p5"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
}

// TerminalStats 统计到期价格分布 (直方图展示用)
func TerminalStats(b *PathBatch) (Distribution, error) {
	if b == nil {
		return Distribution{}, fmt.Errorf("%w: nil path batch", pricing.ErrInvalidParameter)
	}
	terminal := b.Terminal()
	sort.Float64s(terminal)

	mean, std := stat.MeanStdDev(terminal, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Distribution{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(terminal),
		Max:    floats.Max(terminal),
		P5:     stat.Quantile(0.05, stat.Empirical, terminal, nil),
		P50:    stat.Quantile(0.50, stat.Empirical, terminal, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, terminal, nil),
	}, nil
}
