// Package cache memoizes Rt estimation for series that have not changed
// since the previous run.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"slices"
	"sync"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/observability"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/renewal"
)

// Engine wraps a renewal.Engine with an in-memory LRU cache keyed by the
// series and configuration. Failed estimations are not cached.
type Engine struct {
	inner   renewal.Engine
	cache   *lruCache
	metrics *observability.Metrics
}

// NewEngine creates a cache decorator around an engine.
func NewEngine(inner renewal.Engine, maxEntries int, metrics *observability.Metrics) *Engine {
	return &Engine{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Estimate implements renewal.Engine.
func (e *Engine) Estimate(ctx context.Context, series renewal.Series, cfg renewal.Config) (renewal.Output, error) {
	key := Key(series, cfg)
	if out, ok := e.cache.get(key); ok {
		e.metrics.EngineCache.WithLabelValues("hit").Inc()
		return clone(out), nil
	}
	e.metrics.EngineCache.WithLabelValues("miss").Inc()

	out, err := e.inner.Estimate(ctx, series, cfg)
	if err != nil {
		return out, err
	}
	e.cache.put(key, clone(out))
	return out, nil
}

// Len returns the number of cached outputs.
func (e *Engine) Len() int {
	return e.cache.len()
}

// Key hashes everything the estimate depends on.
func Key(series renewal.Series, cfg renewal.Config) string {
	h := sha256.New()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	putInt(series.Start.Unix())
	putInt(int64(len(series.Values)))
	for _, v := range series.Values {
		putFloat(v)
	}
	putInt(int64(cfg.Window))
	putInt(int64(cfg.SmoothingWindow))
	putFloat(cfg.SerialIntervalMean)
	putFloat(cfg.SerialIntervalSD)
	putInt(int64(cfg.SerialIntervalMaxDays))
	putFloat(cfg.PriorShape)
	putFloat(cfg.PriorScale)

	return hex.EncodeToString(h.Sum(nil))
}

func clone(o renewal.Output) renewal.Output {
	return renewal.Output{
		Dates:  slices.Clone(o.Dates),
		Mean:   slices.Clone(o.Mean),
		Median: slices.Clone(o.Median),
		Lower:  slices.Clone(o.Lower),
		Upper:  slices.Clone(o.Upper),
	}
}

// lruCache is a thread-safe LRU of engine outputs. The front of order is
// the most recently used entry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
}

type entry struct {
	key   string
	value renewal.Output
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *lruCache) get(key string) (renewal.Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return renewal.Output{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (c *lruCache) put(key string, value renewal.Output) {
	if c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})
	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
