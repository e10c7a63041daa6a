package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketParams_Validate(t *testing.T) {
	ok := MarketParams{Spot: 100, Strike: 100, Maturity: 1, Rate: 0.05, Volatility: 0.2}
	require.NoError(t, ok.Validate())

	// 边界: T=0 和 σ=0 合法 (退化输入)，负利率合法
	require.NoError(t, MarketParams{Spot: 100, Strike: 90, Rate: -0.01}.Validate())

	cases := map[string]MarketParams{
		"zero spot":     {Spot: 0, Strike: 100, Maturity: 1, Volatility: 0.2},
		"neg strike":    {Spot: 100, Strike: -1, Maturity: 1, Volatility: 0.2},
		"neg maturity":  {Spot: 100, Strike: 100, Maturity: -1, Volatility: 0.2},
		"neg vol":       {Spot: 100, Strike: 100, Maturity: 1, Volatility: -0.1},
		"nan rate":      {Spot: 100, Strike: 100, Maturity: 1, Rate: math.NaN(), Volatility: 0.2},
		"infinite spot": {Spot: math.Inf(1), Strike: 100, Maturity: 1, Volatility: 0.2},
	}
	for name, p := range cases {
		err := p.Validate()
		assert.True(t, errors.Is(err, ErrInvalidParameter), name)
	}
}

func TestMarketParams_Degenerate(t *testing.T) {
	assert.True(t, MarketParams{Spot: 1, Strike: 1, Maturity: 0, Volatility: 0.2}.Degenerate())
	assert.True(t, MarketParams{Spot: 1, Strike: 1, Maturity: 1, Volatility: 0}.Degenerate())
	assert.False(t, MarketParams{Spot: 1, Strike: 1, Maturity: 1, Volatility: 0.2}.Degenerate())
}

func TestGreeks_ScaleAdd(t *testing.T) {
	g := Greeks{Delta: 0.5, Gamma: 0.02, Theta: -0.01, Vega: 0.3, Rho: 0.4}
	sum := g.Add(g.Scale(-1))
	assert.Equal(t, Greeks{}, sum)

	set := GreekSet{Call: g, Put: g.Scale(2)}
	assert.Equal(t, g, set.For(Call))
	assert.Equal(t, 1.0, set.For(Put).Delta)
}

func TestParseEnums(t *testing.T) {
	k, err := ParseOptionKind("PUT")
	require.NoError(t, err)
	assert.Equal(t, Put, k)

	_, err = ParseOptionKind("straddle")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	s, err := ParseExerciseStyle("")
	require.NoError(t, err)
	assert.Equal(t, European, s)

	s, err = ParseExerciseStyle("american")
	require.NoError(t, err)
	assert.Equal(t, American, s)
}

func TestIntrinsic(t *testing.T) {
	assert.Equal(t, 10.0, Intrinsic(Call, 110, 100))
	assert.Equal(t, 0.0, Intrinsic(Call, 90, 100))
	assert.Equal(t, 10.0, Intrinsic(Put, 90, 100))
	assert.Equal(t, 0.0, Intrinsic(Put, 110, 100))
}
