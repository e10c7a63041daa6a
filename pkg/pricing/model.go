// 文件: pkg/pricing/model.go
// 定价引擎公共数据模型
//
// 三个定价模型 (bs / binomial / montecarlo) 和策略聚合共用这里的类型。
// 所有类型都是值语义，一次定价调用内不可变。

package pricing

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidParameter 参数非法 (S/K 非正、T 或 σ 为负、步数/路径数非正)
	// 在计算之前拒绝，绝不静默修正
	ErrInvalidParameter = errors.New("invalid parameter")
)

// =============================================================================
// 枚举
// =============================================================================

// OptionKind 期权类型
type OptionKind int

const (
	Call OptionKind = iota
	Put
)

func (k OptionKind) String() string {
	switch k {
	case Call:
		return "call"
	case Put:
		return "put"
	default:
		return "unknown"
	}
}

// ParseOptionKind 解析 "call"/"put" (大小写不敏感)
func ParseOptionKind(s string) (OptionKind, error) {
	switch s {
	case "call", "Call", "CALL":
		return Call, nil
	case "put", "Put", "PUT":
		return Put, nil
	}
	return 0, fmt.Errorf("%w: unknown option kind %q", ErrInvalidParameter, s)
}

// ExerciseStyle 行权方式
type ExerciseStyle int

const (
	European ExerciseStyle = iota
	American
)

func (s ExerciseStyle) String() string {
	if s == American {
		return "american"
	}
	return "european"
}

// ParseExerciseStyle 解析行权方式，空字符串按欧式处理
func ParseExerciseStyle(s string) (ExerciseStyle, error) {
	switch s {
	case "", "european", "European", "EUROPEAN":
		return European, nil
	case "american", "American", "AMERICAN":
		return American, nil
	}
	return 0, fmt.Errorf("%w: unknown exercise style %q", ErrInvalidParameter, s)
}

// =============================================================================
// MarketParams 市场参数
// =============================================================================

// MarketParams 一次定价调用的输入
type MarketParams struct {
	Spot       float64 `json:"spot"`       // 标的现价 S > 0
	Strike     float64 `json:"strike"`     // 行权价 K > 0
	Maturity   float64 `json:"maturity"`   // 剩余期限 T >= 0 (年)
	Rate       float64 `json:"rate"`       // 无风险利率 r (年化, 连续复利)
	Volatility float64 `json:"volatility"` // 波动率 σ >= 0 (年化)
}

// Validate 检查参数合法性
func (p MarketParams) Validate() error {
	for name, v := range map[string]float64{
		"spot": p.Spot, "strike": p.Strike, "maturity": p.Maturity,
		"rate": p.Rate, "volatility": p.Volatility,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidParameter, name)
		}
	}
	if p.Spot <= 0 {
		return fmt.Errorf("%w: spot must be positive, got %v", ErrInvalidParameter, p.Spot)
	}
	if p.Strike <= 0 {
		return fmt.Errorf("%w: strike must be positive, got %v", ErrInvalidParameter, p.Strike)
	}
	if p.Maturity < 0 {
		return fmt.Errorf("%w: maturity must not be negative, got %v", ErrInvalidParameter, p.Maturity)
	}
	if p.Volatility < 0 {
		return fmt.Errorf("%w: volatility must not be negative, got %v", ErrInvalidParameter, p.Volatility)
	}
	return nil
}

// Degenerate T=0 或 σ=0 时终值是确定的，没有时间价值
func (p MarketParams) Degenerate() bool {
	return p.Maturity == 0 || p.Volatility == 0
}

// WithStrike 返回替换行权价后的副本 (策略按腿定价时使用)
func (p MarketParams) WithStrike(k float64) MarketParams {
	p.Strike = k
	return p
}

// Discount e^(-rT)
func (p MarketParams) Discount() float64 {
	return math.Exp(-p.Rate * p.Maturity)
}

// Forward 确定性远期价格 S·e^(rT)
func (p MarketParams) Forward() float64 {
	return p.Spot * math.Exp(p.Rate*p.Maturity)
}

// Intrinsic 内在价值
func Intrinsic(kind OptionKind, spot, strike float64) float64 {
	if kind == Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// =============================================================================
// 定价结果
// =============================================================================

// OptionPrice 同一行权价/期限下的看涨、看跌价格
type OptionPrice struct {
	Call float64 `json:"call"`
	Put  float64 `json:"put"`
}

// For 取指定类型的价格
func (o OptionPrice) For(kind OptionKind) float64 {
	if kind == Call {
		return o.Call
	}
	return o.Put
}

// Greeks 单边希腊字母
//
// Theta 为每自然日衰减 (/365)，Vega 与 Rho 为每 1 个百分点变动 (/100)。
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Scale 按系数缩放 (空头腿乘 -1)
func (g Greeks) Scale(f float64) Greeks {
	return Greeks{
		Delta: g.Delta * f,
		Gamma: g.Gamma * f,
		Theta: g.Theta * f,
		Vega:  g.Vega * f,
		Rho:   g.Rho * f,
	}
}

// Add 逐项相加
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// GreekSet 看涨/看跌两侧的希腊字母，Gamma 和 Vega 两侧相同
type GreekSet struct {
	Call Greeks `json:"call"`
	Put  Greeks `json:"put"`
}

// For 取指定类型一侧
func (s GreekSet) For(kind OptionKind) Greeks {
	if kind == Call {
		return s.Call
	}
	return s.Put
}
