package calibration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/couchcryptid/tb-calibration/internal/observability"
)

// Calibrator runs one calibration request.
type Calibrator interface {
	Calibrate(ctx context.Context, req Request) (Report, error)
}

// CachedCalibrator wraps a Calibrator with an in-memory LRU of successful
// reports keyed by request content, so redelivered or resubmitted requests
// skip the grid search.
type CachedCalibrator struct {
	inner   Calibrator
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedCalibrator creates a cache decorator around a calibrator. metrics
// may be nil.
func NewCachedCalibrator(inner Calibrator, maxEntries int, metrics *observability.Metrics) *CachedCalibrator {
	return &CachedCalibrator{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Calibrate returns a cached report when an identical request already
// succeeded. The cached report is returned under the caller's run ID.
func (c *CachedCalibrator) Calibrate(ctx context.Context, req Request) (Report, error) {
	key, err := requestKey(req)
	if err != nil {
		return c.inner.Calibrate(ctx, req)
	}
	if report, ok := c.cache.get(key); ok {
		c.count("hit")
		report.ID = req.ID
		if report.ID == "" {
			report.ID = uuid.NewString()
		}
		return report, nil
	}
	c.count("miss")

	report, err := c.inner.Calibrate(ctx, req)
	if err != nil {
		return report, err
	}
	// Only successful reports are cached so failures caused by cancellation
	// can be retried.
	if report.Status == StatusSucceeded {
		c.cache.put(key, report)
	}
	return report, nil
}

func (c *CachedCalibrator) count(result string) {
	if c.metrics != nil {
		c.metrics.ReportCache.WithLabelValues(result).Inc()
	}
}

// requestKey hashes everything in a request except its ID. Map keys marshal
// in sorted order, so equal requests hash equally.
func requestKey(req Request) (string, error) {
	req.ID = ""
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// lruCache is a simple thread-safe LRU cache for Reports.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value Report
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Report{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
