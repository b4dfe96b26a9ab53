// Package quotecache holds the two process-wide quote caches: latest option
// NBBO by contract, and latest equity quote by underlying.
// Both support concurrent reads with exclusive writes, grounded on the
// teacher's Analyzer.depthMap (a symbol -> latest-snapshot map guarded by a
// single RWMutex).
package quotecache

import (
	"sync"

	"github.com/flowdesk/optionflow/internal/model"
)

// Lookup is what a cache lookup returns: the cached quote (zero value if
// missing), how stale it is relative to the asking timestamp, and whether
// that staleness exceeds the configured max age.
type Lookup struct {
	Found   bool
	AgeMs   int64
	Stale   bool
	Missing bool
}

// OptionCache caches the latest OptionNBBO per contract.
type OptionCache struct {
	mu     sync.RWMutex
	quotes map[string]model.OptionNBBO
	maxAge int64
}

// NewOptionCache builds a cache with the given staleness threshold in ms.
func NewOptionCache(maxAgeMs int64) *OptionCache {
	return &OptionCache{quotes: make(map[string]model.OptionNBBO), maxAge: maxAgeMs}
}

// Update replaces the cached quote only if the incoming (ts, seq) is >= the
// cached one.
func (c *OptionCache) Update(q model.OptionNBBO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.quotes[q.OptionContractID]
	if !ok || isNewer(q.TS, q.Seq, existing.TS, existing.Seq) {
		c.quotes[q.OptionContractID] = q
	}
}

// Get returns the cached quote for contractID along with freshness
// judgment relative to atTs.
func (c *OptionCache) Get(contractID string, atTS int64) (model.OptionNBBO, Lookup) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[contractID]
	if !ok {
		return model.OptionNBBO{}, Lookup{Missing: true}
	}
	age := abs64(atTS - q.TS)
	return q, Lookup{Found: true, AgeMs: age, Stale: age > c.maxAge}
}

// EquityCache caches the latest EquityQuote per underlying.
type EquityCache struct {
	mu     sync.RWMutex
	quotes map[string]model.EquityQuote
	maxAge int64
}

// NewEquityCache builds a cache with the given staleness threshold in ms.
func NewEquityCache(maxAgeMs int64) *EquityCache {
	return &EquityCache{quotes: make(map[string]model.EquityQuote), maxAge: maxAgeMs}
}

// Update replaces the cached quote only if the incoming (ts, seq) is >= the
// cached one.
func (c *EquityCache) Update(q model.EquityQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.quotes[q.UnderlyingID]
	if !ok || isNewer(q.TS, q.Seq, existing.TS, existing.Seq) {
		c.quotes[q.UnderlyingID] = q
	}
}

// Get returns the cached quote for underlyingID along with freshness
// judgment relative to atTs.
func (c *EquityCache) Get(underlyingID string, atTS int64) (model.EquityQuote, Lookup) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[underlyingID]
	if !ok {
		return model.EquityQuote{}, Lookup{Missing: true}
	}
	age := abs64(atTS - q.TS)
	return q, Lookup{Found: true, AgeMs: age, Stale: age > c.maxAge}
}

func isNewer(ts, seq, existingTS, existingSeq int64) bool {
	if ts != existingTS {
		return ts > existingTS
	}
	return seq >= existingSeq
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
