package binomial

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optlab.com/pkg/pricing"
	"optlab.com/pkg/pricing/bs"
)

var refParams = pricing.MarketParams{Spot: 100, Strike: 100, Maturity: 1, Rate: 0.05, Volatility: 0.2}

func TestTree_ConvergesToBlackScholes(t *testing.T) {
	analytic, err := bs.Price(refParams)
	require.NoError(t, err)

	tree, err := PriceBoth(context.Background(), refParams, Config{Steps: 500, Style: pricing.European})
	require.NoError(t, err)

	assert.InDelta(t, analytic.Call, tree.Call, 0.10)
	assert.InDelta(t, analytic.Put, tree.Put, 0.10)
}

func TestTree_ErrorShrinksWithSteps(t *testing.T) {
	analytic, _ := bs.Price(refParams)

	coarse, err := Price(context.Background(), refParams, Config{Steps: 10, Style: pricing.European}, pricing.Call)
	require.NoError(t, err)
	fine, err := Price(context.Background(), refParams, Config{Steps: 1000, Style: pricing.European}, pricing.Call)
	require.NoError(t, err)

	assert.Less(t, math.Abs(fine-analytic.Call), math.Abs(coarse-analytic.Call))
}

func TestTree_AmericanAtLeastEuropean(t *testing.T) {
	params := []pricing.MarketParams{
		refParams,
		{Spot: 80, Strike: 100, Maturity: 1, Rate: 0.1, Volatility: 0.2},
		{Spot: 120, Strike: 100, Maturity: 0.5, Rate: 0.02, Volatility: 0.4},
	}
	for _, p := range params {
		eu, err := Price(context.Background(), p, Config{Steps: 200, Style: pricing.European}, pricing.Put)
		require.NoError(t, err)
		am, err := Price(context.Background(), p, Config{Steps: 200, Style: pricing.American}, pricing.Put)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, am, eu, "%+v", p)
	}
}

func TestTree_DeepITMPutEarlyExercise(t *testing.T) {
	p := pricing.MarketParams{Spot: 80, Strike: 100, Maturity: 1, Rate: 0.1, Volatility: 0.2}

	eu, err := Price(context.Background(), p, Config{Steps: 200, Style: pricing.European}, pricing.Put)
	require.NoError(t, err)
	am, err := Price(context.Background(), p, Config{Steps: 200, Style: pricing.American}, pricing.Put)
	require.NoError(t, err)

	assert.Greater(t, am, eu)
	// 美式至少值立即行权
	assert.GreaterOrEqual(t, am, 20.0)
}

func TestTree_AmericanCallEqualsEuropeanWithoutDividends(t *testing.T) {
	eu, err := Price(context.Background(), refParams, Config{Steps: 300, Style: pricing.European}, pricing.Call)
	require.NoError(t, err)
	am, err := Price(context.Background(), refParams, Config{Steps: 300, Style: pricing.American}, pricing.Call)
	require.NoError(t, err)

	assert.InDelta(t, eu, am, 1e-9)
}

func TestTree_ZeroVolatility(t *testing.T) {
	p := pricing.MarketParams{Spot: 100, Strike: 90, Maturity: 1, Rate: 0.05, Volatility: 0}

	call, err := Price(context.Background(), p, Config{Steps: 50, Style: pricing.European}, pricing.Call)
	require.NoError(t, err)
	assert.InDelta(t, 100-90*math.Exp(-0.05), call, 1e-9)
	assert.False(t, math.IsNaN(call))

	// 确定性路径下美式看跌在 t=0 行权最优
	deep := pricing.MarketParams{Spot: 80, Strike: 100, Maturity: 1, Rate: 0.05, Volatility: 0}
	put, err := Price(context.Background(), deep, Config{Steps: 50, Style: pricing.American}, pricing.Put)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, put, 1e-9)

	euPut, err := Price(context.Background(), deep, Config{Steps: 50, Style: pricing.European}, pricing.Put)
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-0.05)*(100-80*math.Exp(0.05)), euPut, 1e-9)
}

func TestTree_ZeroMaturity(t *testing.T) {
	p := pricing.MarketParams{Spot: 110, Strike: 100, Maturity: 0, Rate: 0.05, Volatility: 0.2}

	op, err := PriceBoth(context.Background(), p, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 10.0, op.Call)
	assert.Equal(t, 0.0, op.Put)
}

func TestTree_InvalidInputs(t *testing.T) {
	_, err := Price(context.Background(), refParams, Config{Steps: 0}, pricing.Call)
	assert.ErrorIs(t, err, pricing.ErrInvalidParameter)

	_, err = Price(context.Background(), refParams, Config{Steps: -5}, pricing.Put)
	assert.ErrorIs(t, err, pricing.ErrInvalidParameter)

	neg := refParams
	neg.Maturity = -1
	_, err = PriceBoth(context.Background(), neg, DefaultConfig())
	assert.ErrorIs(t, err, pricing.ErrInvalidParameter)

	_, err = Price(context.Background(), refParams, DefaultConfig(), pricing.OptionKind(7))
	assert.ErrorIs(t, err, pricing.ErrInvalidParameter)
}

func TestTree_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := PriceBoth(ctx, refParams, Config{Steps: 20000, Style: pricing.American})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = Price(ctx, refParams, DefaultConfig(), pricing.Put)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTree_PriceMatchesPriceBoth(t *testing.T) {
	p := pricing.MarketParams{Spot: 80, Strike: 100, Maturity: 1, Rate: 0.1, Volatility: 0.2}
	cfg := Config{Steps: 150, Style: pricing.American}

	both, err := PriceBoth(context.Background(), p, cfg)
	require.NoError(t, err)
	call, err := Price(context.Background(), p, cfg, pricing.Call)
	require.NoError(t, err)
	put, err := Price(context.Background(), p, cfg, pricing.Put)
	require.NoError(t, err)

	assert.Equal(t, both.Call, call)
	assert.Equal(t, both.Put, put)
}

func TestTree_Idempotent(t *testing.T) {
	a, _ := PriceBoth(context.Background(), refParams, DefaultConfig())
	b, _ := PriceBoth(context.Background(), refParams, DefaultConfig())
	assert.Equal(t, a, b)
}

func BenchmarkTree_American500(b *testing.B) {
	cfg := Config{Steps: 500, Style: pricing.American}
	for i := 0; i < b.N; i++ {
		_, _ = Price(context.Background(), refParams, cfg, pricing.Put)
	}
}
