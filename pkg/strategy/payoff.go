// 文件: pkg/strategy/payoff.go
// 到期盈亏 (P/L) 计算
//
// 纯函数，候选价格之间没有依赖，可整段向量化。

package strategy

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultCurvePoints 自动生成价格区间时的采样点数
	DefaultCurvePoints = 200

	minRangeMargin = 20.0
)

// LegPayoff 单腿在到期价 spot 下的盈亏 (不是价格)
//
//	Stock: spot - 开仓价，空头取反
//	Call:  max(spot-K, 0)，多头减权利金，空头为权利金减内在价值
//	Put:   max(K-spot, 0)，同上
func LegPayoff(l Leg, spot float64) float64 {
	var pnl float64
	switch l.Instrument {
	case InstrumentStock:
		pnl = spot - l.Strike
	case InstrumentCall:
		pnl = math.Max(spot-l.Strike, 0) - l.Premium
	case InstrumentPut:
		pnl = math.Max(l.Strike-spot, 0) - l.Premium
	default:
		return 0
	}
	return l.Side.Sign() * pnl
}

// Curve 盈亏曲线
type Curve struct {
	Spots []float64   `json:"spots"`
	Legs  [][]float64 `json:"legs"`  // Legs[i][j]: 第 i 条腿在 Spots[j] 的盈亏
	Total []float64   `json:"total"` // 逐点求和
}

// PayoffCurve 计算每条腿和整体的盈亏曲线
func PayoffCurve(s Strategy, spots []float64) Curve {
	c := Curve{
		Spots: spots,
		Legs:  make([][]float64, len(s.Legs)),
		Total: make([]float64, len(spots)),
	}
	for i, leg := range s.Legs {
		row := make([]float64, len(spots))
		for j, spot := range spots {
			row[j] = LegPayoff(leg, spot)
		}
		c.Legs[i] = row
		floats.Add(c.Total, row)
	}
	return c
}

// MaxProfit 区间内最大盈利
func (c Curve) MaxProfit() float64 {
	if len(c.Total) == 0 {
		return 0
	}
	return floats.Max(c.Total)
}

// MaxLoss 区间内最大亏损 (负数或 0)
func (c Curve) MaxLoss() float64 {
	if len(c.Total) == 0 {
		return 0
	}
	return math.Min(floats.Min(c.Total), 0)
}

// Breakevens 盈亏平衡点，相邻采样点异号时线性插值
func (c Curve) Breakevens() []float64 {
	var out []float64
	for j := range c.Total {
		y := c.Total[j]
		if y == 0 {
			out = append(out, c.Spots[j])
			continue
		}
		if j == 0 {
			continue
		}
		prev := c.Total[j-1]
		if prev != 0 && (prev < 0) != (y < 0) {
			x0, x1 := c.Spots[j-1], c.Spots[j]
			out = append(out, x0+(x1-x0)*(-prev)/(y-prev))
		}
	}
	return out
}

// SpotRange 根据行权价生成到期价采样区间
// 区间 = [最小行权价 - margin, 最大行权价 + margin]，margin = max(20, 行权价跨度/2)
// 没有腿时取 spot ±20%
func SpotRange(s Strategy, spot float64, n int) []float64 {
	if n < 2 {
		n = DefaultCurvePoints
	}

	lo, hi := spot*0.8, spot*1.2
	if strikes := s.Strikes(); len(strikes) > 0 {
		minK, maxK := floats.Min(strikes), floats.Max(strikes)
		margin := math.Max(minRangeMargin, (maxK-minK)*0.5)
		lo, hi = math.Max(minK-margin, 0), maxK+margin
	}
	return floats.Span(make([]float64, n), lo, hi)
}
