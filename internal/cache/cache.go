package cache

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"spcpulse/internal/spc"
)

// Entry is a cached analysis result
type Entry struct {
	Result   *spc.Result `json:"result"`
	CachedAt time.Time   `json:"cached_at"`
	Expires  time.Time   `json:"expires_at"`
	HitCount int         `json:"hit_count"`
}

// Stats is a snapshot of cache counters
type Stats struct {
	Entries   int     `json:"entries"`
	MaxSize   int     `json:"max_size"`
	HitCount  int64   `json:"hit_count"`
	MissCount int64   `json:"miss_count"`
	HitRatio  float64 `json:"hit_ratio"`
	TTL       float64 `json:"ttl_seconds"`
}

// ResultCache keeps spec-independent analysis results keyed by a digest of
// the measurement table, so new spec limits can be applied to an already
// analysed table without recomputing the control limits.
type ResultCache struct {
	entries   map[string]Entry
	mutex     sync.RWMutex
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// New creates a cache; maxSize <= 0 disables storage
func New(ttl time.Duration, maxSize int) *ResultCache {
	c := &ResultCache{
		entries:  make(map[string]Entry),
		ttl:      ttl,
		maxSize:  maxSize,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get returns the cached result for key
func (c *ResultCache) Get(key string) (*spc.Result, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists || c.now().After(entry.Expires) {
		c.missCount++
		return nil, false
	}

	entry.HitCount++
	c.entries[key] = entry
	c.hitCount++

	return entry.Result, true
}

// Set stores result under key, evicting the oldest entry when full
func (c *ResultCache) Set(key string, result *spc.Result) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.maxSize <= 0 {
		return
	}

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = Entry{
		Result:   result,
		CachedAt: now,
		Expires:  now.Add(c.ttl),
	}
}

// Stats returns cache statistics
func (c *ResultCache) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}

	return Stats{
		Entries:   len(c.entries),
		MaxSize:   c.maxSize,
		HitCount:  c.hitCount,
		MissCount: c.missCount,
		HitRatio:  ratio,
		TTL:       c.ttl.Seconds(),
	}
}

// Stop ends the background cleanup goroutine
func (c *ResultCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *ResultCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.CachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CachedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ResultCache) purgeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.Expires) {
			delete(c.entries, key)
		}
	}
}

func (c *ResultCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.stopChan:
			return
		}
	}
}

// Key returns the BLAKE2b-256 digest of the table contents. Labels, the
// missing markers and the exact float bits all contribute, so two tables
// share a key only when they analyse identically.
func Key(table spc.MeasurementTable) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys

	var buf [8]byte
	writeInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}

	writeInt(len(table.Subgroups))
	for _, sg := range table.Subgroups {
		writeInt(len(sg.Label))
		h.Write([]byte(sg.Label))
		writeInt(len(sg.Measurements))
		for _, m := range sg.Measurements {
			if !m.Valid {
				h.Write([]byte{0})
				continue
			}
			h.Write([]byte{1})
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.Value))
			h.Write(buf[:])
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
