package table

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

type cacheEntry struct {
	snapshot Snapshot
	expires  time.Time
}

// Cache はテーブル読み取り結果を TTL 付きで保持します。ttl が 0 の場合は常に読み込みます。
type Cache struct {
	ttl     time.Duration
	clock   Clock
	mu      sync.Mutex
	entries map[string]cacheEntry
	gen     uint64
	group   singleflight.Group
}

// NewCache は Cache を生成します。clock が nil の場合は実時刻を使用します。
func NewCache(ttl time.Duration, clock Clock) *Cache {
	if clock == nil {
		clock = realClock{}
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

// GetOrLoad はキャッシュ済みのスナップショットを返し、無ければ load を呼び出します。
// 劣化したスナップショットは保持しません。
func (c *Cache) GetOrLoad(ctx context.Context, name string, load func(context.Context) (Snapshot, error)) (Snapshot, error) {
	if c == nil || c.ttl <= 0 {
		return load(ctx)
	}

	if snap, ok := c.lookup(name); ok {
		return snap, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		snap, err := load(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		if !snap.Degraded {
			c.mu.Lock()
			// 読み込み中に無効化された場合は古い内容を保持しない
			if c.gen == gen {
				c.entries[name] = cacheEntry{snapshot: snap, expires: c.clock.Now().Add(c.ttl)}
			}
			c.mu.Unlock()
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Invalidate は指定テーブルのエントリを破棄します。
func (c *Cache) Invalidate(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.entries, name)
	c.group.Forget(name)
}

// InvalidateAll は全エントリを破棄します。
func (c *Cache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for name := range c.entries {
		c.group.Forget(name)
	}
	c.entries = make(map[string]cacheEntry)
}

func (c *Cache) lookup(name string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	if !ok {
		return Snapshot{}, false
	}
	if !c.clock.Now().Before(entry.expires) {
		delete(c.entries, name)
		return Snapshot{}, false
	}
	return entry.snapshot, true
}
