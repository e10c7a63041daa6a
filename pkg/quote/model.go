// 文件: pkg/quote/model.go
// 报价请求/结果模型

package quote

import (
	"errors"
	"fmt"
	"time"

	"optlab.com/pkg/marketdata"
	"optlab.com/pkg/pricing"
	"optlab.com/pkg/strategy"
)

var (
	// ErrUnknownModel 定价模型不认识
	ErrUnknownModel = errors.New("unknown pricing model")

	// ErrMarketDataDisabled 请求带了 ticker，但没有配置行情源
	ErrMarketDataDisabled = errors.New("market data source not configured")
)

// =============================================================================
// 定价模型
// =============================================================================

// Model 定价模型
type Model string

const (
	ModelBlackScholes Model = "black_scholes"
	ModelBinomial     Model = "binomial"
	ModelMonteCarlo   Model = "monte_carlo"
)

// ParseModel 兼容几个常见别名
func ParseModel(s string) (Model, error) {
	switch s {
	case "black_scholes", "bs", "analytic", "Black-Scholes":
		return ModelBlackScholes, nil
	case "binomial", "crr", "lattice", "Binomial":
		return ModelBinomial, nil
	case "monte_carlo", "mc", "montecarlo", "Monte Carlo":
		return ModelMonteCarlo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// =============================================================================
// 单腿期权
// =============================================================================

// MarketRequest 市场参数部分
// 显式值 > ticker 行情 > 缺省值
type MarketRequest struct {
	Ticker     string   `json:"ticker,omitempty"`
	Spot       *float64 `json:"spot,omitempty"`
	Rate       *float64 `json:"rate,omitempty"`
	Volatility *float64 `json:"volatility,omitempty"`
	Maturity   float64  `json:"maturity"`         // 年
	Expiry     string   `json:"expiry,omitempty"` // YYYY-MM-DD，优先于 maturity
}

func (m MarketRequest) inputs() marketdata.Inputs {
	return marketdata.Inputs{Spot: m.Spot, Rate: m.Rate, Volatility: m.Volatility}
}

// OptionRequest 单个期权定价请求
type OptionRequest struct {
	MarketRequest
	Model  string  `json:"model"`
	Kind   string  `json:"kind"` // call / put，空为 call
	Strike float64 `json:"strike"`

	// 二叉树: 树深度；蒙特卡洛: 每条路径步数。0 用服务端默认
	Steps int    `json:"steps,omitempty"`
	Style string `json:"style,omitempty"` // european / american，空用服务端默认

	Simulations int     `json:"simulations,omitempty"`
	Seed        *uint64 `json:"seed,omitempty"`

	Greeks bool `json:"greeks,omitempty"` // 仅解析模型
}

// OptionQuote 单个期权报价
type OptionQuote struct {
	ID     int64                `json:"id,string"`
	Model  Model                `json:"model"`
	Kind   string               `json:"kind"`
	Params pricing.MarketParams `json:"params"`

	Price  float64             `json:"price"`  // Kind 对应一侧
	Prices pricing.OptionPrice `json:"prices"` // 两侧同时给出

	Greeks *pricing.GreekSet `json:"greeks,omitempty"`

	// 二叉树
	Steps int    `json:"steps,omitempty"`
	Style string `json:"style,omitempty"`

	// 蒙特卡洛
	Simulations int      `json:"simulations,omitempty"`
	Seed        *uint64  `json:"seed,omitempty"`
	StdErr      *float64 `json:"std_err,omitempty"`

	Source    *marketdata.Snapshot `json:"source,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	Elapsed   time.Duration        `json:"elapsed_ns"`
}

// =============================================================================
// 策略
// =============================================================================

// StrategyRequest 策略分析请求
// Template 非空时按模板生成腿，否则使用 Legs
type StrategyRequest struct {
	MarketRequest
	Template string               `json:"template,omitempty"`
	Build    strategy.BuildParams `json:"build"`
	Legs     []strategy.LegSpec   `json:"legs,omitempty"`

	Points  int      `json:"points,omitempty"` // 盈亏曲线采样点数
	SpotMin *float64 `json:"spot_min,omitempty"`
	SpotMax *float64 `json:"spot_max,omitempty"`
}

// StrategyQuote 策略分析结果
type StrategyQuote struct {
	ID        int64                `json:"id,string"`
	Params    pricing.MarketParams `json:"params"`
	Analysis  *strategy.Analysis   `json:"analysis"`
	Source    *marketdata.Snapshot `json:"source,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	Elapsed   time.Duration        `json:"elapsed_ns"`
}
