// 文件: pkg/pricing/bs/bs.go
// Black-Scholes-Merton 解析定价 (欧式、无分红)

package bs

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"optlab.com/pkg/pricing"
)

var (
	// ErrNoConvergence 隐含波动率求解失败
	ErrNoConvergence = errors.New("implied volatility did not converge")
)

const (
	daysPerYear = 365.0
	percent     = 100.0
)

/*
Greeks 衡量期权价格对市场因素的敏感度:

Delta: 标的价格变动 1 单位时期权价格的变动量。
Gamma: 标的价格变动 1 单位时 Delta 的变动量，看涨看跌相同。
Vega:  波动率变动 1 个百分点时期权价格的变动量。
Theta: 每过一个自然日期权价格的变动量。
Rho:   利率变动 1 个百分点时期权价格的变动量。
*/

// Price 计算欧式看涨、看跌价格
// T=0 或 σ=0 走确定性分支，不会出现除零
func Price(p pricing.MarketParams) (pricing.OptionPrice, error) {
	if err := p.Validate(); err != nil {
		return pricing.OptionPrice{}, err
	}
	return price(p), nil
}

// PriceKind 只计算一侧价格
func PriceKind(p pricing.MarketParams, kind pricing.OptionKind) (float64, error) {
	op, err := Price(p)
	if err != nil {
		return 0, err
	}
	return op.For(kind), nil
}

// Greeks 计算两侧希腊字母
func Greeks(p pricing.MarketParams) (pricing.GreekSet, error) {
	if err := p.Validate(); err != nil {
		return pricing.GreekSet{}, err
	}
	if p.Degenerate() {
		return degenerateGreeks(p), nil
	}

	S, K, r, sigma, T := p.Spot, p.Strike, p.Rate, p.Volatility, p.Maturity
	sqrtT := math.Sqrt(T)
	d1, d2 := calcD(p)
	pdf := normPDF(d1)
	disc := math.Exp(-r * T)

	gamma := pdf / (S * sigma * sqrtT)
	vega := S * pdf * sqrtT / percent
	decay := -(S * pdf * sigma) / (2 * sqrtT)

	return pricing.GreekSet{
		Call: pricing.Greeks{
			Delta: normCDF(d1),
			Gamma: gamma,
			Theta: (decay - r*K*disc*normCDF(d2)) / daysPerYear,
			Vega:  vega,
			Rho:   K * T * disc * normCDF(d2) / percent,
		},
		Put: pricing.Greeks{
			Delta: normCDF(d1) - 1,
			Gamma: gamma,
			Theta: (decay + r*K*disc*normCDF(-d2)) / daysPerYear,
			Vega:  vega,
			Rho:   -K * T * disc * normCDF(-d2) / percent,
		},
	}, nil
}

// ImpliedVolatility 通过期权市场价格反推隐含波动率
// 先走牛顿法，Vega 过小或跳出区间时退回二分法
func ImpliedVolatility(p pricing.MarketParams, kind pricing.OptionKind, marketPrice float64) (float64, error) {
	p.Volatility = 0
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if p.Maturity == 0 {
		return 0, fmt.Errorf("%w: implied volatility needs maturity > 0", pricing.ErrInvalidParameter)
	}

	// 无套利边界
	lower := price(p).For(kind)
	upper := p.Spot
	if kind == pricing.Put {
		upper = p.Strike * p.Discount()
	}
	if marketPrice < lower || marketPrice >= upper {
		return 0, fmt.Errorf("%w: price %v outside no-arbitrage bounds [%v, %v)",
			pricing.ErrInvalidParameter, marketPrice, lower, upper)
	}

	const (
		tolerance     = 1e-6
		maxIterations = 100
		minVol        = 1e-4
		maxVol        = 5.0
	)

	sigma := 0.2
	for i := 0; i < maxIterations; i++ {
		p.Volatility = sigma
		diff := price(p).For(kind) - marketPrice
		if math.Abs(diff) < tolerance {
			return sigma, nil
		}
		d1, _ := calcD(p)
		vega := p.Spot * normPDF(d1) * math.Sqrt(p.Maturity)
		if vega < 1e-8 {
			break
		}
		sigma -= diff / vega
		if sigma <= minVol || sigma >= maxVol {
			break
		}
	}

	lo, hi := minVol, maxVol
	p.Volatility = lo
	if price(p).For(kind) > marketPrice+tolerance {
		return 0, ErrNoConvergence
	}
	p.Volatility = hi
	if price(p).For(kind) < marketPrice-tolerance {
		return 0, ErrNoConvergence
	}
	for i := 0; i < 200; i++ {
		mid := 0.5 * (lo + hi)
		p.Volatility = mid
		diff := price(p).For(kind) - marketPrice
		if math.Abs(diff) < tolerance {
			return mid, nil
		}
		if diff > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return 0, ErrNoConvergence
}

// ScenarioResult 情景分析结果
type ScenarioResult struct {
	Base pricing.OptionPrice `json:"base"`

	ShiftedSpot  float64             `json:"shifted_spot"`
	SpotScenario pricing.OptionPrice `json:"spot_scenario"`

	ShiftedVol  float64             `json:"shifted_vol"`
	VolScenario pricing.OptionPrice `json:"vol_scenario"`
}

// Scenario 模拟标的价格和波动率变动后的期权价格
// spotShift: 价格变动比例，0.05 表示上涨 5%
// volShift: 波动率变动比例
func Scenario(p pricing.MarketParams, spotShift, volShift float64) (ScenarioResult, error) {
	base, err := Price(p)
	if err != nil {
		return ScenarioResult{}, err
	}

	spotP := p
	spotP.Spot = p.Spot * (1 + spotShift)
	spotPrice, err := Price(spotP)
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("spot scenario: %w", err)
	}

	volP := p
	volP.Volatility = p.Volatility * (1 + volShift)
	volPrice, err := Price(volP)
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("volatility scenario: %w", err)
	}

	return ScenarioResult{
		Base:         base,
		ShiftedSpot:  spotP.Spot,
		SpotScenario: spotPrice,
		ShiftedVol:   volP.Volatility,
		VolScenario:  volPrice,
	}, nil
}

// =============================================================================
// 内部计算 (调用方已校验参数)
// =============================================================================

func price(p pricing.MarketParams) pricing.OptionPrice {
	if p.Degenerate() {
		// 终值确定为远期价格 F=S·e^(rT)，贴现后即 max(S-K·e^(-rT), 0)
		// T=0 时退化为内在价值
		kd := p.Strike * p.Discount()
		return pricing.OptionPrice{
			Call: math.Max(p.Spot-kd, 0),
			Put:  math.Max(kd-p.Spot, 0),
		}
	}

	d1, d2 := calcD(p)
	kd := p.Strike * p.Discount()
	return pricing.OptionPrice{
		Call: p.Spot*normCDF(d1) - kd*normCDF(d2),
		Put:  kd*normCDF(-d2) - p.Spot*normCDF(-d1),
	}
}

// degenerateGreeks 退化输入只保留 Delta (0 或 1)，其余为 0
func degenerateGreeks(p pricing.MarketParams) pricing.GreekSet {
	var callDelta float64
	if p.Spot > p.Strike*p.Discount() {
		callDelta = 1
	}
	return pricing.GreekSet{
		Call: pricing.Greeks{Delta: callDelta},
		Put:  pricing.Greeks{Delta: callDelta - 1},
	}
}

// calcD 计算 d1, d2
// d1 = [ln(S/K) + (r + σ²/2)T] / (σ√T), d2 = d1 - σ√T
func calcD(p pricing.MarketParams) (float64, float64) {
	volSqrtT := p.Volatility * math.Sqrt(p.Maturity)
	d1 := (math.Log(p.Spot/p.Strike) + (p.Rate+0.5*p.Volatility*p.Volatility)*p.Maturity) / volSqrtT
	return d1, d1 - volSqrtT
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
