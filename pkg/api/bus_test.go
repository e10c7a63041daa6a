package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pnats "optlab.com/pkg/nats"
	"optlab.com/pkg/quote"
)

type closeCall struct {
	ticker string
	day    time.Time
	price  float64
}

type recordingCloses struct {
	calls []closeCall
	err   error
}

func (r *recordingCloses) RecordClose(_ context.Context, ticker string, day time.Time, price float64) error {
	r.calls = append(r.calls, closeCall{ticker, day, price})
	return r.err
}

func TestBus_PriceOption(t *testing.T) {
	bus := NewBus(newService(t, nil), nil, nil)

	out, err := bus.PriceOption(context.Background(), []byte(`{"model":"bs","kind":"put",`+refBody[1:]))
	require.NoError(t, err)
	q := out.(*quote.OptionQuote)
	assert.InDelta(t, 5.5735, q.Price, 1e-4)

	_, err = bus.PriceOption(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, ErrBadPayload)
	assert.Equal(t, pnats.CodeInvalidArgument, Classify(err))

	_, err = bus.PriceOption(context.Background(), []byte(`{"model":"bs","spot":0,"strike":100,"maturity":1}`))
	assert.Equal(t, pnats.CodeInvalidArgument, Classify(err))
}

func TestBus_AnalyzeStrategy(t *testing.T) {
	bus := NewBus(newService(t, nil), nil, nil)

	out, err := bus.AnalyzeStrategy(context.Background(), []byte(`{"spot":100,"maturity":0.5,"rate":0.03,"volatility":0.25,"template":"Iron Condor","build":{"width":10}}`))
	require.NoError(t, err)
	q := out.(*quote.StrategyQuote)
	assert.Equal(t, []float64{90, 80, 110, 120}, q.Analysis.Strategy.Strikes())
}

func TestBus_RecordClose(t *testing.T) {
	closes := &recordingCloses{}
	bus := NewBus(newService(t, nil), closes, nil)

	require.NoError(t, bus.RecordClose("marketdata.closes", []byte(`{"ticker":"AAPL","date":"2025-03-14","close":213.49}`)))
	require.Len(t, closes.calls, 1)
	assert.Equal(t, "AAPL", closes.calls[0].ticker)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), closes.calls[0].day)
	assert.Equal(t, 213.49, closes.calls[0].price)

	for _, bad := range []string{
		`{"ticker":"AAPL","date":"14/03/2025","close":1}`,
		`{"ticker":"","date":"2025-03-14","close":1}`,
		`{"ticker":"AAPL","date":"2025-03-14","close":0}`,
		`[]`,
	} {
		assert.ErrorIs(t, bus.RecordClose("marketdata.closes", []byte(bad)), ErrBadPayload, bad)
	}
	assert.Len(t, closes.calls, 1)

	closes.err = errors.New("redis down")
	assert.Error(t, bus.RecordClose("marketdata.closes", []byte(`{"ticker":"MSFT","date":"2025-03-14","close":388.56}`)))

	// 没有存储时直接丢弃
	assert.NoError(t, NewBus(newService(t, nil), nil, nil).RecordClose("x", []byte(`garbage`)))
}

func TestBus_HandleBatch(t *testing.T) {
	journal := &memJournal{}
	bus := NewBus(newService(t, journal), nil, nil)

	batch := BatchRequest{
		Options: []quote.OptionRequest{
			{MarketRequest: quote.MarketRequest{Maturity: 1}, Model: "bs", Strike: 100},
			{MarketRequest: quote.MarketRequest{Maturity: 1}, Model: "nope", Strike: 100},
			{MarketRequest: quote.MarketRequest{Maturity: 1}, Model: "binomial", Kind: "put", Strike: 95},
		},
		Strategies: []quote.StrategyRequest{
			{MarketRequest: quote.MarketRequest{Maturity: 0.25}, Template: "Long Strangle"},
		},
	}
	value, err := json.Marshal(batch)
	require.NoError(t, err)

	err = bus.HandleBatch(context.Background(), &sarama.ConsumerMessage{Topic: "pricing.requests", Value: value})
	require.Error(t, err)
	assert.ErrorIs(t, err, quote.ErrUnknownModel)
	assert.Contains(t, err.Error(), "option 1")
	assert.Len(t, journal.recs, 3, "valid items are priced and journaled")

	err = bus.HandleBatch(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{`)})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, pnats.CodeInvalidArgument, Classify(quote.ErrUnknownModel))
	assert.Equal(t, pnats.CodeInternal, Classify(quote.ErrMarketDataDisabled))
	assert.Equal(t, pnats.CodeInternal, Classify(errors.New("boom")))
}

// =============================================================================
// NATS 端到端
// =============================================================================

func TestBus_NATSRoundTrip(t *testing.T) {
	conn, err := pnats.Connect(pnats.DefaultConfig(), nil)
	if err != nil {
		t.Skipf("skipping test; nats not available: %v", err)
	}
	defer conn.Close()

	sub := pnats.NewSubscriber(conn, time.Second, nil)
	defer sub.Close()

	subjects := Subjects{
		Queue:    "pricer-test",
		Option:   "test.pricing.option." + t.Name(),
		Strategy: "test.pricing.strategy." + t.Name(),
	}
	require.NoError(t, NewBus(newService(t, nil), nil, nil).Register(sub, subjects))
	require.NoError(t, conn.Flush())

	pub := pnats.NewPublisher(conn, 2*time.Second)
	ctx := context.Background()

	var q quote.OptionQuote
	req := map[string]any{"model": "bs", "spot": 100, "strike": 100, "maturity": 1, "rate": 0.05, "volatility": 0.2}
	require.NoError(t, pub.Request(ctx, subjects.Option, req, &q))
	assert.InDelta(t, 10.4506, q.Price, 1e-4)

	err = pub.Request(ctx, subjects.Option, map[string]any{"model": "bs", "spot": -1, "strike": 100, "maturity": 1}, &q)
	var remote *pnats.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, pnats.CodeInvalidArgument, remote.Code)

	var sq quote.StrategyQuote
	require.NoError(t, pub.Request(ctx, subjects.Strategy, map[string]any{"spot": 100, "maturity": 1, "template": "Straddle"}, &sq))
	assert.Len(t, sq.Analysis.Strategy.Legs, 2)
}
