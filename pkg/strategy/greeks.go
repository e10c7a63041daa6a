// 文件: pkg/strategy/greeks.go
// 策略聚合: 逐腿解析定价后汇总成组合指标
//
// 【简化假设】
// 所有期权腿共享同一个 (S, T, r, σ)，只有行权价按腿取值。
// 适用于瞬时风险快照，不适用于多到期日的日历价差。
// 股票腿只有线性敞口，在本模型下不贡献希腊字母。

package strategy

import (
	"fmt"

	"optlab.com/pkg/pricing"
	"optlab.com/pkg/pricing/bs"
)

// NetGreeks 组合净希腊字母
func NetGreeks(s Strategy, p pricing.MarketParams) (pricing.Greeks, error) {
	if err := p.Validate(); err != nil {
		return pricing.Greeks{}, err
	}

	var net pricing.Greeks
	for i, leg := range s.Legs {
		kind, ok := leg.Instrument.OptionKind()
		if !ok {
			continue
		}
		set, err := bs.Greeks(p.WithStrike(leg.Strike))
		if err != nil {
			return pricing.Greeks{}, fmt.Errorf("leg %d: %w", i, err)
		}
		net = net.Add(set.For(kind).Scale(leg.Side.Sign()))
	}
	return net, nil
}

// Analysis 一次完整的策略分析
type Analysis struct {
	Strategy   Strategy       `json:"strategy"`
	Greeks     pricing.Greeks `json:"greeks"`
	LegValues  []float64      `json:"leg_values"` // 每腿当前理论价值 (股票腿为现价)
	NetValue   float64        `json:"net_value"`  // 按多空方向求和
	Curve      Curve          `json:"curve"`
	MaxProfit  float64        `json:"max_profit"`
	MaxLoss    float64        `json:"max_loss"`
	Breakevens []float64      `json:"breakevens"`
}

// Analyze 计算净希腊字母、理论价值与到期盈亏曲线
// spots 为空时按行权价自动生成区间
func Analyze(s Strategy, p pricing.MarketParams, spots []float64) (*Analysis, error) {
	greeks, err := NetGreeks(s, p)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(s.Legs))
	var net float64
	for i, leg := range s.Legs {
		kind, ok := leg.Instrument.OptionKind()
		if !ok {
			values[i] = p.Spot
		} else {
			v, err := bs.PriceKind(p.WithStrike(leg.Strike), kind)
			if err != nil {
				return nil, fmt.Errorf("leg %d: %w", i, err)
			}
			values[i] = v
		}
		net += leg.Side.Sign() * values[i]
	}

	if len(spots) == 0 {
		spots = SpotRange(s, p.Spot, DefaultCurvePoints)
	}
	curve := PayoffCurve(s, spots)

	return &Analysis{
		Strategy:   s,
		Greeks:     greeks,
		LegValues:  values,
		NetValue:   net,
		Curve:      curve,
		MaxProfit:  curve.MaxProfit(),
		MaxLoss:    curve.MaxLoss(),
		Breakevens: curve.Breakevens(),
	}, nil
}
