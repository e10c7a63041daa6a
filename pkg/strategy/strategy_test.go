package strategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optlab.com/pkg/pricing"
)

var refParams = pricing.MarketParams{Spot: 100, Strike: 100, Maturity: 1, Rate: 0.05, Volatility: 0.2}

// =============================================================================
// Payoff
// =============================================================================

func TestLegPayoff_Sanity(t *testing.T) {
	longCall := Leg{Strike: 100, Premium: 5, Instrument: InstrumentCall, Side: Long}
	assert.InDelta(t, 5.0, LegPayoff(longCall, 110), 1e-12)
	assert.InDelta(t, -5.0, LegPayoff(longCall, 90), 1e-12)

	shortCall := Leg{Strike: 100, Premium: 5, Instrument: InstrumentCall, Side: Short}
	assert.InDelta(t, -5.0, LegPayoff(shortCall, 110), 1e-12)

	longPut := Leg{Strike: 100, Premium: 3, Instrument: InstrumentPut, Side: Long}
	assert.InDelta(t, 7.0, LegPayoff(longPut, 90), 1e-12)
	shortPut := Leg{Strike: 100, Premium: 3, Instrument: InstrumentPut, Side: Short}
	assert.InDelta(t, 3.0, LegPayoff(shortPut, 120), 1e-12)

	longStock := Leg{Strike: 100, Instrument: InstrumentStock, Side: Long}
	assert.InDelta(t, -10.0, LegPayoff(longStock, 90), 1e-12)
	shortStock := Leg{Strike: 100, Instrument: InstrumentStock, Side: Short}
	assert.InDelta(t, 10.0, LegPayoff(shortStock, 90), 1e-12)
}

func TestLegPayoff_StockIgnoresPremium(t *testing.T) {
	leg, err := NewLeg(InstrumentStock, Long, 100, 7)
	require.NoError(t, err)
	assert.Equal(t, 0.0, leg.Premium)
	assert.InDelta(t, 5.0, LegPayoff(leg, 105), 1e-12)
}

func TestPayoffCurve_TotalIsSumOfLegs(t *testing.T) {
	s := mustBuild(t, KindIronCondor, 100, BuildParams{Width: fp(10), PremiumLong: 2, PremiumShort: 1})
	spots := []float64{60, 80, 90, 100, 110, 120, 140}

	c := PayoffCurve(s, spots)
	require.Len(t, c.Legs, 4)
	require.Len(t, c.Total, len(spots))

	for j := range spots {
		var sum float64
		for i := range c.Legs {
			sum += c.Legs[i][j]
		}
		assert.InDelta(t, sum, c.Total[j], 1e-12)
	}
}

func TestCurve_Metrics(t *testing.T) {
	s := mustBuild(t, KindStraddle, 100, BuildParams{PremiumCall: 6, PremiumPut: 4})
	c := PayoffCurve(s, []float64{70, 80, 90, 100, 110, 120, 130})

	assert.InDelta(t, -10.0, c.MaxLoss(), 1e-12)
	assert.InDelta(t, 20.0, c.MaxProfit(), 1e-12)

	be := c.Breakevens()
	require.Len(t, be, 2)
	assert.InDelta(t, 90.0, be[0], 1e-12)
	assert.InDelta(t, 110.0, be[1], 1e-12)

	empty := PayoffCurve(Strategy{}, nil)
	assert.Equal(t, 0.0, empty.MaxProfit())
	assert.Empty(t, empty.Breakevens())
}

func TestSpotRange(t *testing.T) {
	s := mustBuild(t, KindIronCondor, 100, BuildParams{Width: fp(10)})
	r := SpotRange(s, 100, 50)
	require.Len(t, r, 50)
	// 行权价 80..120，跨度 40，margin = max(20, 20)
	assert.InDelta(t, 60.0, r[0], 1e-12)
	assert.InDelta(t, 140.0, r[49], 1e-12)

	none := SpotRange(Strategy{}, 100, 0)
	require.Len(t, none, DefaultCurvePoints)
	assert.InDelta(t, 80.0, none[0], 1e-12)
	assert.InDelta(t, 120.0, none[len(none)-1], 1e-12)

	// 下界不为负
	low := SpotRange(Strategy{Legs: []Leg{{Strike: 5, Instrument: InstrumentCall}}}, 5, 10)
	assert.Equal(t, 0.0, low[0])
}

// =============================================================================
// Builder
// =============================================================================

func fp(v float64) *float64 { return &v }

func mustBuild(t *testing.T, kind Kind, spot float64, p BuildParams) Strategy {
	t.Helper()
	s, err := Build(kind, spot, p)
	require.NoError(t, err)
	return s
}

var buildParams = BuildParams{
	Width:        fp(10),
	PremiumLong:  2,
	PremiumShort: 1,
	PremiumCall:  3,
	PremiumPut:   3,
	Distance:     fp(5),
	Premium:      1.5,
}

func TestBuild_Straddle(t *testing.T) {
	s := mustBuild(t, ParseKind("Straddle"), 100, buildParams)
	require.Len(t, s.Legs, 2)
	assert.Equal(t, InstrumentCall, s.Legs[0].Instrument)
	assert.Equal(t, "Straddle", s.Name)
}

func TestBuild_IronCondor(t *testing.T) {
	s := mustBuild(t, ParseKind("Iron Condor"), 100, buildParams)
	require.Len(t, s.Legs, 4)

	var calls, puts int
	for _, l := range s.Legs {
		switch l.Instrument {
		case InstrumentCall:
			calls++
		case InstrumentPut:
			puts++
		}
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, puts)
	assert.Equal(t, []float64{90, 80, 110, 120}, s.Strikes())
}

func TestBuild_Spreads(t *testing.T) {
	bull := mustBuild(t, KindBullCallSpread, 100, buildParams)
	require.Len(t, bull.Legs, 2)
	assert.Equal(t, Long, bull.Legs[0].Side)
	assert.Equal(t, Short, bull.Legs[1].Side)
	assert.Equal(t, 110.0, bull.Legs[1].Strike)

	bear := mustBuild(t, KindBearPutSpread, 100, buildParams)
	require.Len(t, bear.Legs, 2)
	assert.Equal(t, 90.0, bear.Legs[1].Strike)
	assert.Equal(t, InstrumentPut, bear.Legs[1].Instrument)

	strangle := mustBuild(t, KindLongStrangle, 100, buildParams)
	assert.Equal(t, []float64{95, 105}, strangle.Strikes())
	assert.Equal(t, 1.5, strangle.Legs[0].Premium)
}

func TestBuild_DefaultWidth(t *testing.T) {
	s := mustBuild(t, KindBullCallSpread, 100, BuildParams{})
	assert.Equal(t, 105.0, s.Legs[1].Strike)
}

func TestBuild_RejectsInvalidNumbers(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		p    BuildParams
	}{
		{"negative premium", KindBullCallSpread, BuildParams{PremiumLong: -5}},
		{"negative width", KindBullCallSpread, BuildParams{Width: fp(-5)}},
		{"explicit zero width", KindBearPutSpread, BuildParams{Width: fp(0)}},
		{"explicit zero distance", KindLongStrangle, BuildParams{Distance: fp(0)}},
		{"negative straddle premium", KindStraddle, BuildParams{PremiumPut: -1}},
		{"wing below zero", KindIronCondor, BuildParams{Width: fp(60)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Build(tc.kind, 100, tc.p)
			assert.ErrorIs(t, err, pricing.ErrInvalidParameter)
			assert.Empty(t, s.Legs)
		})
	}

	// 无关参数不参与校验
	s, err := Build(KindStraddle, 100, BuildParams{Width: fp(-1)})
	require.NoError(t, err)
	assert.Len(t, s.Legs, 2)
}

func TestBuild_DefaultParamsFromJSON(t *testing.T) {
	var p BuildParams
	require.NoError(t, json.Unmarshal([]byte(`{"premium_long":2}`), &p))
	assert.Nil(t, p.Width)

	s := mustBuild(t, KindBullCallSpread, 100, p)
	assert.Equal(t, 105.0, s.Legs[1].Strike)

	require.NoError(t, json.Unmarshal([]byte(`{"width":0}`), &p))
	_, err := Build(KindBullCallSpread, 100, p)
	assert.ErrorIs(t, err, pricing.ErrInvalidParameter)

	assert.Equal(t, mustBuild(t, KindLongStrangle, 100, BuildParams{}), mustBuild(t, KindLongStrangle, 100, DefaultBuildParams()))
}

func TestBuild_UnknownStrategy(t *testing.T) {
	assert.Equal(t, KindUnknown, ParseKind("Unknown Strategy"))
	s := mustBuild(t, ParseKind("Unknown Strategy"), 100, buildParams)
	assert.Empty(t, s.Legs)

	assert.Len(t, Kinds(), 5)
	for _, k := range Kinds() {
		assert.Equal(t, k, ParseKind(k.String()))
	}
}

// =============================================================================
// Legs
// =============================================================================

func TestParseLegs(t *testing.T) {
	legs, err := ParseLegs([]LegSpec{
		{Strike: 100, Premium: 5, Type: "Call", Position: "Long"},
		{Strike: 100, Premium: 5, Type: "Future", Position: "Long"},
		{Strike: 95, Premium: 2, Type: "put", Position: "short"},
		{Strike: 100, Premium: 5, Type: "Call", Position: "Sideways"},
	})
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, InstrumentPut, legs[1].Instrument)
	assert.Equal(t, Short, legs[1].Side)

	_, err = ParseLegs([]LegSpec{{Strike: -1, Type: "Call", Position: "Long"}})
	assert.ErrorIs(t, err, pricing.ErrInvalidParameter)
}

func TestLeg_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Leg{Strike: 100, Premium: 5, Instrument: InstrumentPut, Side: Short})
	require.NoError(t, err)
	assert.JSONEq(t, `{"strike":100,"premium":5,"type":"Put","position":"Short"}`, string(data))
}

func TestLeg_UnmarshalJSON(t *testing.T) {
	in := Strategy{Name: "Custom", Legs: []Leg{
		{Strike: 100, Premium: 5, Instrument: InstrumentPut, Side: Short},
		{Strike: 90, Instrument: InstrumentStock, Side: Long},
		{Strike: 110, Premium: 2, Instrument: InstrumentCall, Side: Long},
	}}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Strategy
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	var leg Leg
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"strike":100,"type":"Future","position":"Long"}`), &leg), pricing.ErrInvalidParameter)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"strike":100,"type":"Call","position":"Sideways"}`), &leg), pricing.ErrInvalidParameter)
}

// =============================================================================
// Aggregation
// =============================================================================

func TestNetGreeks_Straddle(t *testing.T) {
	s := mustBuild(t, KindStraddle, 100, BuildParams{})

	g, err := NetGreeks(s, refParams)
	require.NoError(t, err)

	assert.Greater(t, g.Delta, -0.2)
	assert.Less(t, g.Delta, 0.3)
	assert.Greater(t, g.Gamma, 0.02)
	assert.Greater(t, g.Vega, 0.0)
	assert.Less(t, g.Theta, 0.0)
}

func TestNetGreeks_ShortNegatesLong(t *testing.T) {
	long := Strategy{Legs: []Leg{{Strike: 105, Instrument: InstrumentCall, Side: Long}}}
	short := Strategy{Legs: []Leg{{Strike: 105, Instrument: InstrumentCall, Side: Short}}}

	gl, err := NetGreeks(long, refParams)
	require.NoError(t, err)
	gs, err := NetGreeks(short, refParams)
	require.NoError(t, err)

	assert.Equal(t, gl.Scale(-1), gs)

	both := Strategy{Legs: append(long.Legs, short.Legs...)}
	gb, err := NetGreeks(both, refParams)
	require.NoError(t, err)
	assert.InDelta(t, 0, gb.Delta, 1e-12)
	assert.InDelta(t, 0, gb.Gamma, 1e-12)
}

func TestNetGreeks_StockLegsContributeNothing(t *testing.T) {
	s := Strategy{Legs: []Leg{{Strike: 100, Instrument: InstrumentStock, Side: Long}}}
	g, err := NetGreeks(s, refParams)
	require.NoError(t, err)
	assert.Equal(t, pricing.Greeks{}, g)

	g, err = NetGreeks(Strategy{}, refParams)
	require.NoError(t, err)
	assert.Equal(t, pricing.Greeks{}, g)
}

func TestNetGreeks_InvalidParams(t *testing.T) {
	bad := refParams
	bad.Spot = 0
	_, err := NetGreeks(mustBuild(t, KindStraddle, 100, BuildParams{}), bad)
	assert.ErrorIs(t, err, pricing.ErrInvalidParameter)
}

func TestAnalyze(t *testing.T) {
	s := mustBuild(t, KindStraddle, 100, BuildParams{PremiumCall: 10.45, PremiumPut: 5.57})

	a, err := Analyze(s, refParams, nil)
	require.NoError(t, err)

	require.Len(t, a.LegValues, 2)
	assert.InDelta(t, 10.4506, a.LegValues[0], 1e-3)
	assert.InDelta(t, 5.5735, a.LegValues[1], 1e-3)
	assert.InDelta(t, a.LegValues[0]+a.LegValues[1], a.NetValue, 1e-12)

	assert.Len(t, a.Curve.Spots, DefaultCurvePoints)
	assert.InDelta(t, -16.02, a.MaxLoss, 0.5)
	require.Len(t, a.Breakevens, 2)
	assert.InDelta(t, 83.98, a.Breakevens[0], 1e-6)
	assert.InDelta(t, 116.02, a.Breakevens[1], 1e-6)
}
