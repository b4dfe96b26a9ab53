package quotecache

import (
	"testing"

	"github.com/flowdesk/optionflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionCacheUpdateAndGet(t *testing.T) {
	c := NewOptionCache(1000)
	c.Update(model.OptionNBBO{TS: 100, Seq: 1, OptionContractID: "X", Bid: 1, Ask: 2})

	q, lk := c.Get("X", 100)
	require.True(t, lk.Found)
	assert.Equal(t, 2.0, q.Ask)
	assert.False(t, lk.Stale)
}

func TestOptionCacheIgnoresOlderUpdate(t *testing.T) {
	c := NewOptionCache(1000)
	c.Update(model.OptionNBBO{TS: 100, Seq: 2, OptionContractID: "X", Ask: 2})
	c.Update(model.OptionNBBO{TS: 100, Seq: 1, OptionContractID: "X", Ask: 5}) // older seq, ignored

	q, _ := c.Get("X", 100)
	assert.Equal(t, 2.0, q.Ask)
}

func TestOptionCacheStaleness(t *testing.T) {
	c := NewOptionCache(500)
	c.Update(model.OptionNBBO{TS: 0, Seq: 1, OptionContractID: "X", Ask: 2})

	_, lk := c.Get("X", 2000)
	assert.True(t, lk.Stale)
	assert.Equal(t, int64(2000), lk.AgeMs)
}

func TestOptionCacheMissing(t *testing.T) {
	c := NewOptionCache(500)
	_, lk := c.Get("NOPE", 100)
	assert.True(t, lk.Missing)
	assert.False(t, lk.Found)
}

func TestEquityCacheUpdateAndGet(t *testing.T) {
	c := NewEquityCache(1000)
	c.Update(model.EquityQuote{TS: 50, Seq: 1, UnderlyingID: "XYZ", Bid: 99.99, Ask: 100.01})

	q, lk := c.Get("XYZ", 100)
	require.True(t, lk.Found)
	assert.Equal(t, 99.99, q.Bid)
	assert.Equal(t, int64(50), lk.AgeMs)
}
