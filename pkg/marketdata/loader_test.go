package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 内存行情源
type fakeProvider struct {
	mu     sync.Mutex
	last   map[string]float64
	closes map[string][]float64
	calls  int
}

func (f *fakeProvider) LastClose(_ context.Context, ticker string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	v, ok := f.last[ticker]
	if !ok {
		return 0, ErrNoData
	}
	return v, nil
}

func (f *fakeProvider) Closes(_ context.Context, ticker string, _ time.Time) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	c, ok := f.closes[ticker]
	if !ok {
		return nil, errors.New("feed down")
	}
	return c, nil
}

var sampleCloses = []float64{100, 101, 100, 102, 101, 103, 102, 104, 103, 105, 104, 106}

func TestLoader_Load(t *testing.T) {
	p := &fakeProvider{
		last:   map[string]float64{"AAPL": 187.5, "^IRX": 4.5},
		closes: map[string][]float64{"AAPL": sampleCloses},
	}
	l := NewLoader(p, nil, nil)

	snap, err := l.Load(context.Background(), " aapl ", 0.2)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", snap.Ticker)
	assert.Equal(t, "^IRX", snap.Treasury.Symbol)
	assert.Equal(t, "3mo", snap.VolWindow)
	require.NotNil(t, snap.Inputs.Spot)
	assert.Equal(t, 187.5, *snap.Inputs.Spot)
	require.NotNil(t, snap.Inputs.Rate)
	assert.InDelta(t, 0.045, *snap.Inputs.Rate, 1e-12)
	require.NotNil(t, snap.Inputs.Volatility)

	want, _ := HistoricalVolatility(sampleCloses)
	assert.InDelta(t, want, *snap.Inputs.Volatility, 1e-12)
}

func TestLoader_PartialFailureFallsBack(t *testing.T) {
	p := &fakeProvider{last: map[string]float64{"MSFT": 410}}
	l := NewLoader(p, nil, nil)

	snap, err := l.Load(context.Background(), "msft", 3)
	require.NoError(t, err)
	assert.NotNil(t, snap.Inputs.Spot)
	assert.Nil(t, snap.Inputs.Rate)
	assert.Nil(t, snap.Inputs.Volatility)
	assert.Equal(t, "^FVX", snap.Treasury.Symbol)

	params, err := Resolve(snap.Inputs, DefaultFallback(), 400, 3)
	require.NoError(t, err)
	assert.Equal(t, 410.0, params.Spot)
	assert.Equal(t, 0.04, params.Rate)
	assert.Equal(t, 0.2, params.Volatility)
}

func TestLoader_EmptyTicker(t *testing.T) {
	l := NewLoader(&fakeProvider{}, nil, nil)
	_, err := l.Load(context.Background(), "   ", 1)
	assert.ErrorIs(t, err, ErrEmptyTicker)
}

func TestLoader_UsesCache(t *testing.T) {
	p := &fakeProvider{
		last:   map[string]float64{"AAPL": 187.5, "^IRX": 4.5},
		closes: map[string][]float64{"AAPL": sampleCloses},
	}
	cache := NewMemorySnapshotCache(time.Minute)
	l := NewLoader(p, cache, nil)

	first, err := l.Load(context.Background(), "AAPL", 0.5)
	require.NoError(t, err)
	calls := p.calls

	second, err := l.Load(context.Background(), "AAPL", 0.5)
	require.NoError(t, err)
	assert.Equal(t, calls, p.calls, "second load should be served from cache")
	assert.Equal(t, *first.Inputs.Spot, *second.Inputs.Spot)

	// 期限不同 → 回看窗口不同 → 不同 key
	_, err = l.Load(context.Background(), "AAPL", 3)
	require.NoError(t, err)
	assert.Greater(t, p.calls, calls)
}

func TestMemorySnapshotCache_Expiry(t *testing.T) {
	cache := NewMemorySnapshotCache(time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	snap := &Snapshot{Ticker: "AAPL", Treasury: SelectTreasury(1), VolWindow: "2y"}
	require.NoError(t, cache.Set(context.Background(), snap))

	got, err := cache.Get(context.Background(), snap.Key())
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Ticker)

	now = now.Add(time.Minute)
	_, err = cache.Get(context.Background(), snap.Key())
	assert.ErrorIs(t, err, ErrSnapshotMiss)
}

// =============================================================================
// Redis (本地没有 Redis 时跳过)
// =============================================================================

func setupRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skipping test; redis not available: %v", err)
	}
	client.FlushDB(context.Background())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisSnapshotCache(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	cache := NewRedisSnapshotCache(client, time.Minute)

	_, err := cache.Get(ctx, snapshotKey("AAPL", "^IRX", "3mo"))
	assert.ErrorIs(t, err, ErrSnapshotMiss)

	snap := &Snapshot{
		Ticker:    "AAPL",
		Treasury:  SelectTreasury(0.1),
		VolWindow: "3mo",
		Inputs:    Inputs{Spot: ptr(187.5)},
		FetchedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.Set(ctx, snap))

	got, err := cache.Get(ctx, snap.Key())
	require.NoError(t, err)
	assert.Equal(t, 187.5, *got.Inputs.Spot)
	assert.Nil(t, got.Inputs.Rate)
	assert.True(t, snap.FetchedAt.Equal(got.FetchedAt))

	ttl, err := client.TTL(ctx, snap.Key()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisCloseStore(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	store := NewRedisCloseStore(client)

	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range sampleCloses {
		require.NoError(t, store.RecordClose(ctx, "aapl", day.AddDate(0, 0, i), c))
	}
	// 同日覆盖
	last := day.AddDate(0, 0, len(sampleCloses)-1)
	require.NoError(t, store.RecordClose(ctx, "AAPL", last, 107))

	v, err := store.LastClose(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 107.0, v)

	closes, err := store.Closes(ctx, "AAPL", day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, closes, len(sampleCloses)-2)
	assert.Equal(t, sampleCloses[2], closes[0])
	assert.Equal(t, 107.0, closes[len(closes)-1])

	_, err = store.LastClose(ctx, "NONE")
	assert.ErrorIs(t, err, ErrNoData)

	assert.Error(t, store.RecordClose(ctx, "AAPL", day, -1))
}
