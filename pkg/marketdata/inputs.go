// 文件: pkg/marketdata/inputs.go
// 行情输入: 外部数据源返回的现价/利率/波动率 + 缺省回退
//
// 外部数据源可能失败 (网络、停牌、代码错误)，失败项记为 nil，
// 由 Resolve 用缺省值补齐后交给定价引擎。

package marketdata

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"optlab.com/pkg/pricing"
)

const (
	// TradingDaysPerYear 历史波动率年化因子
	TradingDaysPerYear = 252

	// MinCloses 计算历史波动率至少需要的收盘价个数 (严格大于)
	MinCloses = 10

	daysPerYear = 365.0
)

// Inputs 外部数据源的结果，nil 表示获取失败
type Inputs struct {
	Spot       *float64 `json:"spot,omitempty"`
	Rate       *float64 `json:"rate,omitempty"`
	Volatility *float64 `json:"volatility,omitempty"`
}

// Defaults 获取失败时使用的回退值
type Defaults struct {
	Spot       float64 `mapstructure:"spot" json:"spot"`
	Rate       float64 `mapstructure:"rate" json:"rate"`
	Volatility float64 `mapstructure:"volatility" json:"volatility"`
}

// DefaultFallback 现价 100，利率 4%，波动率 20%
func DefaultFallback() Defaults {
	return Defaults{Spot: 100, Rate: 0.04, Volatility: 0.2}
}

// Or 逐项回退，得到完整的一组取值
func (in Inputs) Or(def Defaults) Defaults {
	return Defaults{
		Spot:       pick(in.Spot, def.Spot),
		Rate:       pick(in.Rate, def.Rate),
		Volatility: pick(in.Volatility, def.Volatility),
	}
}

// Overlay 用 top 中非 nil 的项覆盖 in
func (in Inputs) Overlay(top Inputs) Inputs {
	if top.Spot != nil {
		in.Spot = top.Spot
	}
	if top.Rate != nil {
		in.Rate = top.Rate
	}
	if top.Volatility != nil {
		in.Volatility = top.Volatility
	}
	return in
}

// Resolve 合并外部输入与回退值，生成定价参数并校验
func Resolve(in Inputs, def Defaults, strike, maturity float64) (pricing.MarketParams, error) {
	v := in.Or(def)
	p := pricing.MarketParams{
		Spot:       v.Spot,
		Strike:     strike,
		Maturity:   maturity,
		Rate:       v.Rate,
		Volatility: v.Volatility,
	}
	if err := p.Validate(); err != nil {
		return pricing.MarketParams{}, err
	}
	return p, nil
}

func pick(v *float64, fallback float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fallback
	}
	return *v
}

// TimeToMaturity 按自然日折算年数，已过期返回 0
func TimeToMaturity(today, expiry time.Time) float64 {
	days := civilDays(expiry) - civilDays(today)
	return math.Max(0, float64(days)/daysPerYear)
}

// civilDays 忽略时分秒与时区偏移，只按日历日计
func civilDays(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// SanitizeTicker 去空白并转大写
func SanitizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Treasury 无风险利率的国债代理
type Treasury struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// SelectTreasury 按期限选国债代理
//
//	<= 0.33 年  ^IRX 13 周国库券
//	<= 2 年     ^IRX (没有合适的 1 年期代码，名称里提示人工核对)
//	<= 7 年     ^FVX 5 年期
//	<= 20 年    ^TNX 10 年期
//	其余        ^TYX 30 年期
func SelectTreasury(years float64) Treasury {
	switch {
	case years <= 0.33:
		return Treasury{Symbol: "^IRX", Name: "13-Week T-Bill"}
	case years <= 2:
		return Treasury{Symbol: "^IRX", Name: "13-Week T-Bill (Check 1-Year Rate!)"}
	case years <= 7:
		return Treasury{Symbol: "^FVX", Name: "5-Year T-Note"}
	case years <= 20:
		return Treasury{Symbol: "^TNX", Name: "10-Year T-Note"}
	default:
		return Treasury{Symbol: "^TYX", Name: "30-Year T-Bond"}
	}
}

// YieldToRate 国债指数报价是百分数 (4.5 表示 4.5%)
func YieldToRate(quote float64) float64 {
	return quote / 100
}

// SelectVolWindow 历史波动率回看窗口与期限匹配
func SelectVolWindow(years float64) string {
	switch {
	case years < 0.25:
		return "3mo"
	case years < 0.5:
		return "6mo"
	case years < 1:
		return "1y"
	case years < 2:
		return "2y"
	case years < 5:
		return "5y"
	default:
		return "10y"
	}
}

// HistoricalVolatility 对数收益率样本标准差 × √252
func HistoricalVolatility(closes []float64) (float64, error) {
	if len(closes) <= MinCloses {
		return 0, fmt.Errorf("%w: need more than %d closes, got %d", pricing.ErrInvalidParameter, MinCloses, len(closes))
	}
	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return 0, fmt.Errorf("%w: close %d is not positive", pricing.ErrInvalidParameter, i)
		}
		returns[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear), nil
}
