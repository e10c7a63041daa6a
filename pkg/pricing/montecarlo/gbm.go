// 文件: pkg/pricing/montecarlo/gbm.go
// 几何布朗运动路径模拟 + 蒙特卡洛定价
//
// 单步对数收益: (r - σ²/2)·dt + σ·√dt·Z
// 路径内逐步累乘 (第 t 步依赖第 t-1 步)，路径之间相互独立。
//
// 【并行与可复现】
// 路径按固定大小切块，每块使用独立的 PCG 随机流，种子 = (seed, 块序号)。
// 因此同一个 seed 在任意 Worker 数下都得到完全相同的结果。

package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"optlab.com/pkg/pricing"
)

const (
	DefaultSimulations = 10000
	DefaultSteps       = 252 // 一年的交易日

	blockSize = 1024
)

// Config 模拟配置
type Config struct {
	Simulations int     // 路径数 M >= 1
	Steps       int     // 每条路径步数 N >= 1
	Seed        *uint64 // nil 表示每次随机
	Workers     int     // 0 表示 GOMAXPROCS
}

// DefaultConfig 默认配置 (10000 条路径，252 步，不固定种子)
func DefaultConfig() Config {
	return Config{
		Simulations: DefaultSimulations,
		Steps:       DefaultSteps,
	}
}

// WithSeed 固定种子的便捷写法: cfg.Seed = montecarlo.WithSeed(42)
func WithSeed(seed uint64) *uint64 {
	return &seed
}

// Validate 参数检查
func (c Config) Validate() error {
	if c.Simulations < 1 {
		return fmt.Errorf("%w: simulations must be >= 1, got %d", pricing.ErrInvalidParameter, c.Simulations)
	}
	if c.Steps < 1 {
		return fmt.Errorf("%w: steps must be >= 1, got %d", pricing.ErrInvalidParameter, c.Steps)
	}
	// 路径矩阵 M × (N+1) 必须能用 int 表示
	if c.Steps >= math.MaxInt || c.Simulations > math.MaxInt/(c.Steps+1) {
		return fmt.Errorf("%w: %d paths x %d steps overflows the path matrix", pricing.ErrInvalidParameter, c.Simulations, c.Steps)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", pricing.ErrInvalidParameter, c.Workers)
	}
	return nil
}

// =============================================================================
// PathBatch 路径矩阵
// =============================================================================

// PathBatch 一次模拟生成的全部路径
// 行 = 路径，列 = 时间步 0..N，第 0 列恒为 S
type PathBatch struct {
	params pricing.MarketParams
	seed   uint64
	paths  *mat.Dense
}

// Params 生成这批路径的市场参数
func (b *PathBatch) Params() pricing.MarketParams { return b.params }

// Seed 实际使用的种子 (未指定时为随机生成的值)
func (b *PathBatch) Seed() uint64 { return b.seed }

// Paths 路径数
func (b *PathBatch) Paths() int {
	r, _ := b.paths.Dims()
	return r
}

// Steps 每条路径步数
func (b *PathBatch) Steps() int {
	_, c := b.paths.Dims()
	return c - 1
}

// Matrix 只读视图，供可视化使用
func (b *PathBatch) Matrix() mat.Matrix { return b.paths }

// Path 第 i 条路径 (拷贝)
func (b *PathBatch) Path(i int) []float64 {
	return mat.Row(nil, i, b.paths)
}

// Terminal 到期价格分布 (拷贝)
func (b *PathBatch) Terminal() []float64 {
	return mat.Col(nil, b.Steps(), b.paths)
}

// Times 每一列对应的时间点 0..T
func (b *PathBatch) Times() []float64 {
	return floats.Span(make([]float64, b.Steps()+1), 0, b.params.Maturity)
}

// =============================================================================
// 模拟
// =============================================================================

// Simulate 生成 M 条 GBM 路径
func Simulate(ctx context.Context, p pricing.MarketParams, cfg Config) (*PathBatch, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := rand.Uint64()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	m, n := cfg.Simulations, cfg.Steps
	dt := p.Maturity / float64(n)
	drift := (p.Rate - 0.5*p.Volatility*p.Volatility) * dt
	diffusion := p.Volatility * math.Sqrt(dt)

	paths := mat.NewDense(m, n+1, nil)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for block := 0; block*blockSize < m; block++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(block)))
			end := min((block+1)*blockSize, m)
			for i := block * blockSize; i < end; i++ {
				// 每个块只写自己的行
				row := paths.RawRowView(i)
				row[0] = p.Spot
				for t := 1; t <= n; t++ {
					row[t] = row[t-1] * math.Exp(drift+diffusion*rng.NormFloat64())
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &PathBatch{params: p, seed: seed, paths: paths}, nil
}
