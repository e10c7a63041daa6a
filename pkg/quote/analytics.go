// 文件: pkg/quote/analytics.go
// 看板辅助分析: 隐含波动率、情景分析、热力图、希腊字母曲面、到期价格分布
// 这些结果不记流水

package quote

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"optlab.com/pkg/pricing"
	"optlab.com/pkg/pricing/bs"
	"optlab.com/pkg/pricing/montecarlo"
)

const maxHeatmapAxis = 50

// ImpliedVolRequest 隐含波动率请求，Volatility 字段忽略
type ImpliedVolRequest struct {
	MarketRequest
	Kind   string  `json:"kind"`
	Strike float64 `json:"strike"`
	Price  float64 `json:"price"` // 市场价格
}

// ImpliedVolResult 隐含波动率
type ImpliedVolResult struct {
	Params     pricing.MarketParams `json:"params"`
	Volatility float64              `json:"volatility"`
}

// ImpliedVol 由市场价格反推波动率
func (s *Service) ImpliedVol(ctx context.Context, req ImpliedVolRequest) (*ImpliedVolResult, error) {
	start := time.Now()
	out, err := s.impliedVol(ctx, req)
	s.metrics.observe("implied_vol", resultOf(err), time.Since(start))
	return out, err
}

func (s *Service) impliedVol(ctx context.Context, req ImpliedVolRequest) (*ImpliedVolResult, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	req.Volatility = nil
	p, err := s.resolveParams(ctx, req.MarketRequest, req.Strike)
	if err != nil {
		return nil, err
	}
	vol, err := bs.ImpliedVolatility(p, kind, req.Price)
	if err != nil {
		return nil, err
	}
	p.Volatility = vol
	return &ImpliedVolResult{Params: p, Volatility: vol}, nil
}

// ScenarioRequest 情景分析
type ScenarioRequest struct {
	MarketRequest
	Strike    float64 `json:"strike"`
	SpotShift float64 `json:"spot_shift"` // 0.05 = 上涨 5%
	VolShift  float64 `json:"vol_shift"`
}

// Scenario 价格/波动率冲击后的解析价格
func (s *Service) Scenario(ctx context.Context, req ScenarioRequest) (*bs.ScenarioResult, error) {
	p, err := s.resolveParams(ctx, req.MarketRequest, req.Strike)
	if err != nil {
		return nil, err
	}
	res, err := bs.Scenario(p, req.SpotShift, req.VolShift)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// HeatmapRequest spot × vol 热力图
type HeatmapRequest struct {
	MarketRequest
	Strike  float64 `json:"strike"`
	SpotMin float64 `json:"spot_min"`
	SpotMax float64 `json:"spot_max"`
	VolMin  float64 `json:"vol_min"`
	VolMax  float64 `json:"vol_max"`
	Points  int     `json:"points"` // 每个轴的点数，默认 10
}

// HeatmapResult 行 = 波动率，列 = 标的价格
type HeatmapResult struct {
	Spots []float64   `json:"spots"`
	Vols  []float64   `json:"vols"`
	Call  [][]float64 `json:"call"`
	Put   [][]float64 `json:"put"`
}

// Heatmap 热力图
func (s *Service) Heatmap(ctx context.Context, req HeatmapRequest) (*HeatmapResult, error) {
	p, err := s.resolveParams(ctx, req.MarketRequest, req.Strike)
	if err != nil {
		return nil, err
	}

	n := req.Points
	if n == 0 {
		n = 10
	}
	if n < 2 || n > maxHeatmapAxis {
		return nil, fmt.Errorf("%w: heatmap points must be in [2, %d], got %d", pricing.ErrInvalidParameter, maxHeatmapAxis, n)
	}
	if req.SpotMin <= 0 || req.SpotMax <= req.SpotMin || req.VolMin < 0 || req.VolMax <= req.VolMin {
		return nil, fmt.Errorf("%w: heatmap range spot [%v, %v] vol [%v, %v]",
			pricing.ErrInvalidParameter, req.SpotMin, req.SpotMax, req.VolMin, req.VolMax)
	}

	spots := floats.Span(make([]float64, n), req.SpotMin, req.SpotMax)
	vols := floats.Span(make([]float64, n), req.VolMin, req.VolMax)
	grid, err := bs.Heatmap(ctx, p, spots, vols)
	if err != nil {
		return nil, err
	}
	return &HeatmapResult{
		Spots: grid.Spots,
		Vols:  grid.Vols,
		Call:  rows(grid.Call),
		Put:   rows(grid.Put),
	}, nil
}

// GreekSurfaceRequest spot × 期限 的希腊字母曲面
type GreekSurfaceRequest struct {
	MarketRequest
	Kind        string  `json:"kind"`
	Strike      float64 `json:"strike"`
	Greek       string  `json:"greek"` // delta (默认) / gamma / theta / vega / rho
	SpotMin     float64 `json:"spot_min"`
	SpotMax     float64 `json:"spot_max"`
	MaturityMin float64 `json:"maturity_min"`
	MaturityMax float64 `json:"maturity_max"`
	Points      int     `json:"points"` // 每个轴的点数，默认 10
}

// GreekSurfaceResult 行 = 期限，列 = 标的价格
type GreekSurfaceResult struct {
	Greek      string      `json:"greek"`
	Kind       string      `json:"kind"`
	Spots      []float64   `json:"spots"`
	Maturities []float64   `json:"maturities"`
	Values     [][]float64 `json:"values"`
}

// GreekSurface 希腊字母曲面
func (s *Service) GreekSurface(ctx context.Context, req GreekSurfaceRequest) (*GreekSurfaceResult, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	p, err := s.resolveParams(ctx, req.MarketRequest, req.Strike)
	if err != nil {
		return nil, err
	}

	n := req.Points
	if n == 0 {
		n = 10
	}
	if n < 2 || n > maxHeatmapAxis {
		return nil, fmt.Errorf("%w: surface points must be in [2, %d], got %d", pricing.ErrInvalidParameter, maxHeatmapAxis, n)
	}
	if req.SpotMin <= 0 || req.SpotMax <= req.SpotMin || req.MaturityMin < 0 || req.MaturityMax <= req.MaturityMin {
		return nil, fmt.Errorf("%w: surface range spot [%v, %v] maturity [%v, %v]",
			pricing.ErrInvalidParameter, req.SpotMin, req.SpotMax, req.MaturityMin, req.MaturityMax)
	}

	spots := floats.Span(make([]float64, n), req.SpotMin, req.SpotMax)
	maturities := floats.Span(make([]float64, n), req.MaturityMin, req.MaturityMax)
	greek := bs.GreekDelta
	if req.Greek != "" {
		greek = bs.GreekName(req.Greek)
	}
	surf, err := bs.GreekSurface(ctx, p, spots, maturities, kind, greek)
	if err != nil {
		return nil, err
	}
	return &GreekSurfaceResult{
		Greek:      string(greek),
		Kind:       kind.String(),
		Spots:      spots,
		Maturities: maturities,
		Values:     rows(surf),
	}, nil
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// DistributionResult 蒙特卡洛到期价格分布
type DistributionResult struct {
	Params       pricing.MarketParams    `json:"params"`
	Seed         uint64                  `json:"seed"`
	Distribution montecarlo.Distribution `json:"distribution"`
	Call         montecarlo.Estimate     `json:"call"`
	Put          montecarlo.Estimate     `json:"put"`
}

// Distribution 模拟并统计到期价格分布
func (s *Service) Distribution(ctx context.Context, req OptionRequest) (*DistributionResult, error) {
	p, err := s.resolveParams(ctx, req.MarketRequest, req.Strike)
	if err != nil {
		return nil, err
	}
	cfg := s.cfg.MonteCarlo
	if req.Simulations != 0 {
		cfg.Simulations = req.Simulations
	}
	if req.Steps != 0 {
		cfg.Steps = req.Steps
	}
	if req.Seed != nil {
		cfg.Seed = req.Seed
	}
	if err := s.checkPathBudget(cfg); err != nil {
		return nil, err
	}

	batch, err := montecarlo.Simulate(ctx, p, cfg)
	if err != nil {
		return nil, err
	}
	dist, err := montecarlo.TerminalStats(batch)
	if err != nil {
		return nil, err
	}
	call, err := montecarlo.EstimateFromPaths(batch, pricing.Call)
	if err != nil {
		return nil, err
	}
	put, err := montecarlo.EstimateFromPaths(batch, pricing.Put)
	if err != nil {
		return nil, err
	}
	return &DistributionResult{Params: p, Seed: batch.Seed(), Distribution: dist, Call: call, Put: put}, nil
}

func (s *Service) resolveParams(ctx context.Context, m MarketRequest, strike float64) (pricing.MarketParams, error) {
	vals, maturity, _, err := s.resolveMarket(ctx, m)
	if err != nil {
		return pricing.MarketParams{}, err
	}
	p := pricing.MarketParams{
		Spot:       vals.Spot,
		Strike:     strike,
		Maturity:   maturity,
		Rate:       vals.Rate,
		Volatility: vals.Volatility,
	}
	if err := p.Validate(); err != nil {
		return pricing.MarketParams{}, err
	}
	return p, nil
}

func parseKind(s string) (pricing.OptionKind, error) {
	if s == "" {
		return pricing.Call, nil
	}
	return pricing.ParseOptionKind(s)
}
