// 文件: pkg/marketdata/cache.go
// 行情快照缓存
//
// 跨请求的"上次取到的现价/利率/波动率"只放在显式的缓存对象里，
// 定价引擎本身无状态。

package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotTTL 快照有效期
const DefaultSnapshotTTL = 5 * time.Minute

const snapshotKeyPrefix = "marketdata:snapshot:"

// ErrSnapshotMiss 缓存未命中
var ErrSnapshotMiss = errors.New("snapshot cache miss")

// Snapshot 一次行情拉取的结果
type Snapshot struct {
	Ticker    string    `json:"ticker"`
	Treasury  Treasury  `json:"treasury"`
	VolWindow string    `json:"vol_window"`
	Inputs    Inputs    `json:"inputs"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Key 同一标的在不同期限下使用的国债代理和回看窗口可能不同
func (s *Snapshot) Key() string {
	return snapshotKey(s.Ticker, s.Treasury.Symbol, s.VolWindow)
}

func snapshotKey(ticker, treasury, window string) string {
	return snapshotKeyPrefix + ticker + ":" + treasury + ":" + window
}

// SnapshotCache 快照缓存
type SnapshotCache interface {
	Get(ctx context.Context, key string) (*Snapshot, error)
	Set(ctx context.Context, snap *Snapshot) error
}

// =============================================================================
// Redis 实现
// =============================================================================

var _ SnapshotCache = (*RedisSnapshotCache)(nil)

// RedisSnapshotCache 快照 JSON 存 Redis，依赖 key 过期
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache ttl <= 0 时用 DefaultSnapshotTTL
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, key string) (*Snapshot, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// 脏数据按未命中处理，下次 Set 覆盖
		return nil, ErrSnapshotMiss
	}
	return &snap, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, snap.Key(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot %s: %w", snap.Key(), err)
	}
	return nil
}

// =============================================================================
// 进程内实现 (未配置 Redis 时使用)
// =============================================================================

var _ SnapshotCache = (*MemorySnapshotCache)(nil)

type memoryEntry struct {
	snap     Snapshot
	expireAt time.Time
}

// MemorySnapshotCache 单进程缓存，过期项在读取时淘汰
type MemorySnapshotCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySnapshotCache(ttl time.Duration) *MemorySnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &MemorySnapshotCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemorySnapshotCache) Get(_ context.Context, key string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrSnapshotMiss
	}
	if !c.now().Before(e.expireAt) {
		delete(c.entries, key)
		return nil, ErrSnapshotMiss
	}
	snap := e.snap
	return &snap, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[snap.Key()] = memoryEntry{snap: *snap, expireAt: c.now().Add(c.ttl)}
	return nil
}
