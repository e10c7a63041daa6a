// 文件: pkg/quote/service.go
// 报价服务: HTTP / NATS / Kafka 共用的业务入口
//
// 流程: 解析请求 → 合并行情 → 调用定价核心 → 分配 ID → 记流水 → 发事件
// 流水和事件失败只记日志，不影响报价返回。

package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"

	"optlab.com/pkg/marketdata"
	"optlab.com/pkg/pricing"
	"optlab.com/pkg/pricing/binomial"
	"optlab.com/pkg/pricing/bs"
	"optlab.com/pkg/pricing/montecarlo"
	"optlab.com/pkg/strategy"
)

// ErrJournalDisabled 没有配置流水存储
var ErrJournalDisabled = errors.New("quote journal not configured")

const (
	// DefaultMaxPathCells 单次蒙特卡洛最多的矩阵元素 (约 160MB)
	DefaultMaxPathCells = 20_000_000
	// DefaultMaxSteps 二叉树最大深度，节点数约 N²/2
	DefaultMaxSteps = 10_000

	maxCurvePoints = 10_000
)

// Config 服务配置
type Config struct {
	Defaults     marketdata.Defaults `mapstructure:"defaults"`
	Binomial     binomial.Config     `mapstructure:"-"`
	MonteCarlo   montecarlo.Config   `mapstructure:"-"`
	MaxPathCells int                 `mapstructure:"max_path_cells"`
	MaxSteps     int                 `mapstructure:"max_steps"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Defaults:     marketdata.DefaultFallback(),
		Binomial:     binomial.DefaultConfig(),
		MonteCarlo:   montecarlo.DefaultConfig(),
		MaxPathCells: DefaultMaxPathCells,
		MaxSteps:     DefaultMaxSteps,
	}
}

// Deps 外部依赖，除 IDs 外都可以为 nil
type Deps struct {
	IDs     *IDGenerator
	Market  *marketdata.Loader
	Journal Journal
	Events  EventPublisher
	Metrics *Metrics
	Logger  *slog.Logger
}

// Service 报价服务，并发安全
type Service struct {
	cfg     Config
	ids     *IDGenerator
	market  *marketdata.Loader
	journal Journal
	events  EventPublisher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(cfg Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		ids:     deps.IDs,
		market:  deps.Market,
		journal: deps.Journal,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  logger.With("component", "quote"),
		now:     time.Now,
	}
}

// =============================================================================
// 单腿期权
// =============================================================================

// PriceOption 按请求的模型定价
func (s *Service) PriceOption(ctx context.Context, req OptionRequest) (*OptionQuote, error) {
	start := time.Now()

	model, err := ParseModel(req.Model)
	if err != nil {
		s.metrics.observe("unknown", resultRejected, time.Since(start))
		return nil, err
	}

	q, err := s.priceOption(ctx, model, req)
	s.metrics.observe(string(model), resultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	q.ID = s.ids.Next()
	q.CreatedAt = s.now()
	q.Elapsed = time.Since(start)

	rec, err := newOptionRecord(q, marketdata.SanitizeTicker(req.Ticker))
	if err != nil {
		s.logger.Error("build quote record failed", "id", q.ID, "error", err)
		return q, nil
	}
	s.afterQuote(ctx, rec)
	return q, nil
}

func (s *Service) priceOption(ctx context.Context, model Model, req OptionRequest) (*OptionQuote, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}

	vals, maturity, snap, err := s.resolveMarket(ctx, req.MarketRequest)
	if err != nil {
		return nil, err
	}
	p := pricing.MarketParams{
		Spot:       vals.Spot,
		Strike:     req.Strike,
		Maturity:   maturity,
		Rate:       vals.Rate,
		Volatility: vals.Volatility,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	q := &OptionQuote{Model: model, Kind: kind.String(), Params: p, Source: snap}

	switch model {
	case ModelBlackScholes:
		prices, err := bs.Price(p)
		if err != nil {
			return nil, err
		}
		q.Prices = prices
		if req.Greeks {
			g, err := bs.Greeks(p)
			if err != nil {
				return nil, err
			}
			q.Greeks = &g
		}

	case ModelBinomial:
		cfg := s.cfg.Binomial
		if req.Steps != 0 {
			cfg.Steps = req.Steps
		}
		if req.Style != "" {
			style, err := pricing.ParseExerciseStyle(req.Style)
			if err != nil {
				return nil, err
			}
			cfg.Style = style
		}
		if s.cfg.MaxSteps > 0 && cfg.Steps > s.cfg.MaxSteps {
			return nil, fmt.Errorf("%w: %d binomial steps exceeds the limit of %d",
				pricing.ErrInvalidParameter, cfg.Steps, s.cfg.MaxSteps)
		}
		prices, err := binomial.PriceBoth(ctx, p, cfg)
		if err != nil {
			return nil, err
		}
		q.Prices = prices
		q.Steps = cfg.Steps
		q.Style = cfg.Style.String()

	case ModelMonteCarlo:
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
		call, err := montecarlo.EstimateFromPaths(batch, pricing.Call)
		if err != nil {
			return nil, err
		}
		put, err := montecarlo.EstimateFromPaths(batch, pricing.Put)
		if err != nil {
			return nil, err
		}
		q.Prices = pricing.OptionPrice{Call: call.Price, Put: put.Price}
		stderr := call.StdErr
		if kind == pricing.Put {
			stderr = put.StdErr
		}
		seed := batch.Seed()
		q.StdErr = &stderr
		q.Seed = &seed
		q.Steps = cfg.Steps
		q.Simulations = cfg.Simulations
	}

	q.Price = q.Prices.For(kind)
	return q, nil
}

func (s *Service) checkPathBudget(cfg montecarlo.Config) error {
	if s.cfg.MaxPathCells <= 0 || cfg.Simulations <= 0 || cfg.Steps <= 0 {
		return nil
	}
	// 用除法比较，避免 M × (N+1) 溢出
	if cfg.Steps >= s.cfg.MaxPathCells || cfg.Simulations > s.cfg.MaxPathCells/(cfg.Steps+1) {
		return fmt.Errorf("%w: %d paths x %d steps exceeds the limit of %d cells",
			pricing.ErrInvalidParameter, cfg.Simulations, cfg.Steps, s.cfg.MaxPathCells)
	}
	return nil
}

// =============================================================================
// 策略
// =============================================================================

// AnalyzeStrategy 策略净希腊字母 + 到期盈亏
// 未知模板或腿类型得到空策略，不报错
func (s *Service) AnalyzeStrategy(ctx context.Context, req StrategyRequest) (*StrategyQuote, error) {
	start := time.Now()
	q, err := s.analyzeStrategy(ctx, req)
	s.metrics.observe("strategy", resultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	q.ID = s.ids.Next()
	q.CreatedAt = s.now()
	q.Elapsed = time.Since(start)

	rec, err := newStrategyRecord(q, marketdata.SanitizeTicker(req.Ticker))
	if err != nil {
		s.logger.Error("build quote record failed", "id", q.ID, "error", err)
		return q, nil
	}
	s.afterQuote(ctx, rec)
	return q, nil
}

func (s *Service) analyzeStrategy(ctx context.Context, req StrategyRequest) (*StrategyQuote, error) {
	vals, maturity, snap, err := s.resolveMarket(ctx, req.MarketRequest)
	if err != nil {
		return nil, err
	}
	// Strike 只是占位，每条腿按自己的行权价覆盖
	p := pricing.MarketParams{
		Spot:       vals.Spot,
		Strike:     vals.Spot,
		Maturity:   maturity,
		Rate:       vals.Rate,
		Volatility: vals.Volatility,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	strat, err := BuildStrategy(req, p.Spot)
	if err != nil {
		return nil, err
	}
	spots, err := curveSpots(req, strat, p.Spot)
	if err != nil {
		return nil, err
	}

	analysis, err := strategy.Analyze(strat, p, spots)
	if err != nil {
		return nil, err
	}
	return &StrategyQuote{Params: p, Analysis: analysis, Source: snap}, nil
}

// PayoffResult 只有到期盈亏，不涉及定价
type PayoffResult struct {
	Strategy   strategy.Strategy `json:"strategy"`
	Curve      strategy.Curve    `json:"curve"`
	MaxProfit  float64           `json:"max_profit"`
	MaxLoss    float64           `json:"max_loss"`
	Breakevens []float64         `json:"breakevens"`
}

// Payoff 到期盈亏曲线，只用到现价，不记流水
func (s *Service) Payoff(ctx context.Context, req StrategyRequest) (*PayoffResult, error) {
	vals, _, _, err := s.resolveMarket(ctx, req.MarketRequest)
	if err != nil {
		return nil, err
	}
	if vals.Spot <= 0 {
		return nil, fmt.Errorf("%w: spot must be positive, got %v", pricing.ErrInvalidParameter, vals.Spot)
	}
	strat, err := BuildStrategy(req, vals.Spot)
	if err != nil {
		return nil, err
	}
	spots, err := curveSpots(req, strat, vals.Spot)
	if err != nil {
		return nil, err
	}
	curve := strategy.PayoffCurve(strat, spots)
	return &PayoffResult{
		Strategy:   strat,
		Curve:      curve,
		MaxProfit:  curve.MaxProfit(),
		MaxLoss:    curve.MaxLoss(),
		Breakevens: curve.Breakevens(),
	}, nil
}

// BuildStrategy 模板优先，否则解析自定义腿
func BuildStrategy(req StrategyRequest, spot float64) (strategy.Strategy, error) {
	if req.Template != "" {
		return strategy.Build(strategy.ParseKind(req.Template), spot, req.Build)
	}
	legs, err := strategy.ParseLegs(req.Legs)
	if err != nil {
		return strategy.Strategy{}, err
	}
	return strategy.Strategy{Name: "Custom", Legs: legs}, nil
}

func curveSpots(req StrategyRequest, s strategy.Strategy, spot float64) ([]float64, error) {
	if req.Points < 0 || req.Points > maxCurvePoints {
		return nil, fmt.Errorf("%w: points must be in [0, %d], got %d", pricing.ErrInvalidParameter, maxCurvePoints, req.Points)
	}
	if req.SpotMin == nil || req.SpotMax == nil {
		return strategy.SpotRange(s, spot, req.Points), nil
	}

	lo, hi := *req.SpotMin, *req.SpotMax
	if lo < 0 || hi <= lo {
		return nil, fmt.Errorf("%w: spot range [%v, %v]", pricing.ErrInvalidParameter, lo, hi)
	}
	n := req.Points
	if n < 2 {
		n = strategy.DefaultCurvePoints
	}
	return floats.Span(make([]float64, n), lo, hi), nil
}

// =============================================================================
// 流水查询
// =============================================================================

// Lookup 按 ID 查流水
func (s *Service) Lookup(ctx context.Context, id int64) (*QuoteRecord, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.Get(ctx, id)
}

// Recent 最近的流水
func (s *Service) Recent(ctx context.Context, limit int) ([]*QuoteRecord, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.Recent(ctx, limit)
}

// =============================================================================
// 内部
// =============================================================================

// resolveMarket 合并显式参数、ticker 行情和缺省值，返回期限 (年)
func (s *Service) resolveMarket(ctx context.Context, m MarketRequest) (marketdata.Defaults, float64, *marketdata.Snapshot, error) {
	maturity := m.Maturity
	if m.Expiry != "" {
		exp, err := time.Parse(time.DateOnly, m.Expiry)
		if err != nil {
			return marketdata.Defaults{}, 0, nil, fmt.Errorf("%w: expiry %q is not YYYY-MM-DD", pricing.ErrInvalidParameter, m.Expiry)
		}
		maturity = marketdata.TimeToMaturity(s.now(), exp)
	}

	in := m.inputs()
	var snap *marketdata.Snapshot
	if m.Ticker != "" {
		if s.market == nil {
			return marketdata.Defaults{}, 0, nil, ErrMarketDataDisabled
		}
		loaded, err := s.market.Load(ctx, m.Ticker, maturity)
		if err != nil {
			return marketdata.Defaults{}, 0, nil, fmt.Errorf("load market data: %w", err)
		}
		snap = loaded
		in = snap.Inputs.Overlay(in)
	}
	return in.Or(s.cfg.Defaults), maturity, snap, nil
}

// afterQuote 记流水并发事件，调用方取消请求也要完成
func (s *Service) afterQuote(ctx context.Context, rec *QuoteRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if s.journal != nil {
		if err := s.journal.Record(ctx, rec); err != nil {
			s.metrics.journalFailed()
			s.logger.Error("journal quote failed", "id", rec.ID, "error", err)
		}
	}
	if s.events != nil {
		if err := s.events.PublishQuote(ctx, newEvent(rec)); err != nil {
			s.metrics.publishFailed()
			s.logger.Error("publish quote failed", "id", rec.ID, "error", err)
		}
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case IsInvalid(err):
		return resultRejected
	default:
		return resultError
	}
}

// IsInvalid 请求本身有问题 (对应 HTTP 400)
func IsInvalid(err error) bool {
	return errors.Is(err, pricing.ErrInvalidParameter) ||
		errors.Is(err, ErrUnknownModel) ||
		errors.Is(err, marketdata.ErrEmptyTicker)
}
