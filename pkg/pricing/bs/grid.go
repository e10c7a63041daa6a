// 文件: pkg/pricing/bs/grid.go
// 网格定价: 热力图 (spot × vol) 与希腊字母曲面 (spot × T)
//
// 每个格子都是独立的定价调用，按行并发计算。

package bs

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"optlab.com/pkg/pricing"
)

// Grid 热力图结果，行 = 波动率，列 = 标的价格
type Grid struct {
	Spots []float64
	Vols  []float64
	Call  *mat.Dense
	Put   *mat.Dense
}

// Heatmap 在 spot × vol 网格上计算看涨/看跌价格
// 其余参数 (K, T, r) 取自 p
func Heatmap(ctx context.Context, p pricing.MarketParams, spots, vols []float64) (*Grid, error) {
	if len(spots) == 0 || len(vols) == 0 {
		return nil, fmt.Errorf("%w: empty heatmap axis", pricing.ErrInvalidParameter)
	}

	g := &Grid{
		Spots: spots,
		Vols:  vols,
		Call:  mat.NewDense(len(vols), len(spots), nil),
		Put:   mat.NewDense(len(vols), len(spots), nil),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, vol := range vols {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cell := p
			cell.Volatility = vol
			for j, s := range spots {
				cell.Spot = s
				op, err := Price(cell)
				if err != nil {
					return fmt.Errorf("heatmap cell (vol=%v, spot=%v): %w", vol, s, err)
				}
				// 每个 goroutine 只写自己的行
				g.Call.Set(i, j, op.Call)
				g.Put.Set(i, j, op.Put)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g, nil
}

// GreekName 曲面上要取的希腊字母
type GreekName string

const (
	GreekDelta GreekName = "delta"
	GreekGamma GreekName = "gamma"
	GreekTheta GreekName = "theta"
	GreekVega  GreekName = "vega"
	GreekRho   GreekName = "rho"
)

func (n GreekName) pick(g pricing.Greeks) (float64, error) {
	switch n {
	case GreekDelta:
		return g.Delta, nil
	case GreekGamma:
		return g.Gamma, nil
	case GreekTheta:
		return g.Theta, nil
	case GreekVega:
		return g.Vega, nil
	case GreekRho:
		return g.Rho, nil
	}
	return 0, fmt.Errorf("%w: unknown greek %q", pricing.ErrInvalidParameter, string(n))
}

// GreekSurface 在 spot × maturity 网格上计算某个希腊字母
// 返回矩阵行 = 期限，列 = 标的价格
func GreekSurface(ctx context.Context, p pricing.MarketParams, spots, maturities []float64,
	kind pricing.OptionKind, greek GreekName) (*mat.Dense, error) {
	if len(spots) == 0 || len(maturities) == 0 {
		return nil, fmt.Errorf("%w: empty surface axis", pricing.ErrInvalidParameter)
	}
	if _, err := greek.pick(pricing.Greeks{}); err != nil {
		return nil, err
	}

	out := mat.NewDense(len(maturities), len(spots), nil)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, T := range maturities {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cell := p
			cell.Maturity = T
			for j, s := range spots {
				cell.Spot = s
				set, err := Greeks(cell)
				if err != nil {
					return fmt.Errorf("surface cell (T=%v, spot=%v): %w", T, s, err)
				}
				v, _ := greek.pick(set.For(kind))
				out.Set(i, j, v)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
