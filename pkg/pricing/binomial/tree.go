// 文件: pkg/pricing/binomial/tree.go
// Cox-Ross-Rubinstein 二叉树定价，支持欧式和美式行权
//
// 【回溯】
// 第 i 层有 i+1 个节点，节点 j 表示 j 次上涨: S·u^j·d^(i-j)
// 从第 N 层终值开始，每退一层数组缩短一个元素:
//   V(i, j) = e^(-r·dt) · (p·V(i+1, j+1) + (1-p)·V(i+1, j))
// 美式期权在每一层的每个节点上取 max(继续持有, 立即行权)
//
// 层与层之间严格串行，同一层内节点互不依赖。
// 同一层的节点价格从 S·d^i 起逐个乘 u/d 得到。

package binomial

import (
	"context"
	"fmt"
	"math"

	"optlab.com/pkg/pricing"
)

// DefaultSteps 默认树深度
const DefaultSteps = 100

// Config 二叉树配置
type Config struct {
	Steps int                   // 树深度 N > 0
	Style pricing.ExerciseStyle // 欧式 / 美式
}

// DefaultConfig 默认配置 (美式，100 步)
func DefaultConfig() Config {
	return Config{
		Steps: DefaultSteps,
		Style: pricing.American,
	}
}

// Validate 参数检查
func (c Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", pricing.ErrInvalidParameter, c.Steps)
	}
	if c.Style != pricing.European && c.Style != pricing.American {
		return fmt.Errorf("%w: unknown exercise style %d", pricing.ErrInvalidParameter, c.Style)
	}
	return nil
}

// Price 计算单侧期权价格
func Price(ctx context.Context, p pricing.MarketParams, cfg Config, kind pricing.OptionKind) (float64, error) {
	if kind != pricing.Call && kind != pricing.Put {
		return 0, fmt.Errorf("%w: unknown option kind %d", pricing.ErrInvalidParameter, kind)
	}
	op, err := PriceBoth(ctx, p, cfg)
	if err != nil {
		return 0, err
	}
	return op.For(kind), nil
}

// PriceBoth 一次回溯同时得到看涨、看跌价格
// 每退一层检查一次 ctx，取消后立即返回 ctx.Err()
func PriceBoth(ctx context.Context, p pricing.MarketParams, cfg Config) (pricing.OptionPrice, error) {
	if err := p.Validate(); err != nil {
		return pricing.OptionPrice{}, err
	}
	if err := cfg.Validate(); err != nil {
		return pricing.OptionPrice{}, err
	}
	if err := ctx.Err(); err != nil {
		return pricing.OptionPrice{}, err
	}

	if p.Degenerate() {
		return pricing.OptionPrice{
			Call: deterministic(p, cfg, pricing.Call),
			Put:  deterministic(p, cfg, pricing.Put),
		}, nil
	}
	return backward(ctx, p, cfg)
}

// backward 标准 CRR 回溯，看涨/看跌共用同一棵价格树
func backward(ctx context.Context, p pricing.MarketParams, cfg Config) (pricing.OptionPrice, error) {
	n := cfg.Steps
	dt := p.Maturity / float64(n)
	u := math.Exp(p.Volatility * math.Sqrt(dt))
	d := 1 / u
	q := (math.Exp(p.Rate*dt) - d) / (u - d) // 风险中性概率
	disc := math.Exp(-p.Rate * dt)
	ud := u / d

	// 第 N 层终值，下标 = 上涨次数
	calls := make([]float64, n+1)
	puts := make([]float64, n+1)
	s := p.Spot * math.Pow(d, float64(n))
	for j := 0; j <= n; j++ {
		calls[j] = pricing.Intrinsic(pricing.Call, s, p.Strike)
		puts[j] = pricing.Intrinsic(pricing.Put, s, p.Strike)
		s *= ud
	}

	american := cfg.Style == pricing.American
	for i := n - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return pricing.OptionPrice{}, err
		}
		s = p.Spot * math.Pow(d, float64(i))
		for j := 0; j <= i; j++ {
			c := disc * (q*calls[j+1] + (1-q)*calls[j])
			v := disc * (q*puts[j+1] + (1-q)*puts[j])
			if american {
				c = math.Max(c, pricing.Intrinsic(pricing.Call, s, p.Strike))
				v = math.Max(v, pricing.Intrinsic(pricing.Put, s, p.Strike))
			}
			calls[j], puts[j] = c, v
			s *= ud
		}
		calls, puts = calls[:i+1], puts[:i+1]
	}
	return pricing.OptionPrice{Call: calls[0], Put: puts[0]}, nil
}

// deterministic σ=0 或 T=0: 价格路径确定为 S·e^(r·t)
// 欧式只在到期日行权；美式在 N+1 个时点中取贴现内在价值最大者
func deterministic(p pricing.MarketParams, cfg Config, kind pricing.OptionKind) float64 {
	if p.Maturity == 0 {
		return pricing.Intrinsic(kind, p.Spot, p.Strike)
	}

	payoff := func(t float64) float64 {
		st := p.Spot * math.Exp(p.Rate*t)
		return math.Exp(-p.Rate*t) * pricing.Intrinsic(kind, st, p.Strike)
	}

	if cfg.Style == pricing.European {
		return payoff(p.Maturity)
	}

	dt := p.Maturity / float64(cfg.Steps)
	best := 0.0
	for i := 0; i <= cfg.Steps; i++ {
		best = math.Max(best, payoff(float64(i)*dt))
	}
	return best
}
