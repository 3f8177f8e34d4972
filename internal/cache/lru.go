package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Loader produces the value for a key that is missing or stale.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// LRU is a size-bounded, TTL-aware cache. GetOrLoad collapses concurrent
// misses on one key into a single load, which is how the orchestrator keeps
// a burst of ownership checks down to one owner() read per jar.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	index   map[K]*list.Element
	recency *list.List // front is most recent
	loading map[K]*pendingLoad[V]
	now     func() time.Time

	hits   int64
	misses int64
}

type slot[K comparable, V any] struct {
	key      K
	val      V
	storedAt time.Time
}

type pendingLoad[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// NewLRU returns a cache holding at most size entries (at least one). Entries
// older than ttl are treated as absent; ttl <= 0 keeps them until evicted.
func NewLRU[K comparable, V any](size int, ttl time.Duration) *LRU[K, V] {
	if size < 1 {
		size = 1
	}
	return &LRU[K, V]{
		size:    size,
		ttl:     ttl,
		index:   make(map[K]*list.Element, size),
		recency: list.New(),
		loading: make(map[K]*pendingLoad[V]),
		now:     time.Now,
	}
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *LRU[K, V]) Put(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, val)
}

// Delete drops key and detaches any load in flight for it, so a result that
// was read before the invalidation is not written back.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
	delete(c.loading, key)
}

// GetOrLoad returns the cached value or calls load once for all concurrent
// callers of the same key. Failed loads are not cached. A caller whose ctx
// ends while waiting on another caller's load gets ctx.Err().
func (c *LRU[K, V]) GetOrLoad(ctx context.Context, key K, load Loader[K, V]) (V, error) {
	c.mu.Lock()
	if v, ok := c.lookup(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	if p, ok := c.loading[key]; ok {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.val, p.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	p := &pendingLoad[V]{done: make(chan struct{})}
	c.loading[key] = p
	c.mu.Unlock()

	p.val, p.err = load(ctx, key)

	c.mu.Lock()
	if c.loading[key] == p {
		delete(c.loading, key)
		if p.err == nil {
			c.store(key, p.val)
		}
	}
	c.mu.Unlock()
	close(p.done)
	return p.val, p.err
}

// Len counts stored entries, stale ones included until they are touched.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

func (c *LRU[K, V]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// lookup and store expect c.mu held.
func (c *LRU[K, V]) lookup(key K) (V, bool) {
	var zero V
	el, ok := c.index[key]
	if !ok {
		c.misses++
		return zero, false
	}
	s := el.Value.(*slot[K, V])
	if c.ttl > 0 && c.now().Sub(s.storedAt) > c.ttl {
		c.drop(el)
		c.misses++
		return zero, false
	}
	c.recency.MoveToFront(el)
	c.hits++
	return s.val, true
}

func (c *LRU[K, V]) store(key K, val V) {
	if el, ok := c.index[key]; ok {
		s := el.Value.(*slot[K, V])
		s.val, s.storedAt = val, c.now()
		c.recency.MoveToFront(el)
		return
	}
	for c.recency.Len() >= c.size {
		c.drop(c.recency.Back())
	}
	c.index[key] = c.recency.PushFront(&slot[K, V]{key: key, val: val, storedAt: c.now()})
}

func (c *LRU[K, V]) drop(el *list.Element) {
	c.recency.Remove(el)
	delete(c.index, el.Value.(*slot[K, V]).key)
}
