// Package cluster implements C7: per-contract time-windowed clustering of
// option prints into flow packets. One Engine instance is owned exclusively
// by the pipeline's coordinator goroutine; it is not safe for concurrent use
// from multiple goroutines. The coordinator goroutine is the sole owner of
// the mutable cluster map, so no internal locking is needed here.
package cluster

import (
	"sort"

	"github.com/flowdesk/optionflow/internal/model"
)

// PlacementCounts tallies how many members landed in each placement bucket.
type PlacementCounts struct {
	AA, A, Mid, B, BB, Missing, Stale int
}

// Total returns the sum of all buckets, which must equal the cluster's
// member count.
func (p PlacementCounts) Total() int {
	return p.AA + p.A + p.Mid + p.B + p.BB + p.Missing + p.Stale
}

func (p *PlacementCounts) add(pl model.Placement) {
	switch pl {
	case model.PlacementAA:
		p.AA++
	case model.PlacementA:
		p.A++
	case model.PlacementMid:
		p.Mid++
	case model.PlacementB:
		p.B++
	case model.PlacementBB:
		p.BB++
	case model.PlacementStale:
		p.Stale++
	default:
		p.Missing++
	}
}

// Cluster is the transient per-contract accumulation state. It is mutated
// in place while open and handed off by value (via Flushed) the instant it
// closes.
type Cluster struct {
	ContractID    string
	StartTS       int64
	EndTS         int64
	StartSourceTS int64
	EndIngestTS   int64
	EndSeq        int64
	Members       []string // trace IDs, first-seen order
	TotalSize     float64
	TotalPremium  float64
	FirstPrice    float64
	LastPrice     float64
	Placements    PlacementCounts
}

// Flushed is the immutable snapshot emitted when a cluster closes.
type Flushed struct {
	Cluster Cluster
}

// Engine owns the map<contractID, *Cluster> plus the window size W.
type Engine struct {
	windowMs int64
	open     map[string]*Cluster
}

// New creates an Engine with cluster window windowMs.
func New(windowMs int64) *Engine {
	return &Engine{windowMs: windowMs, open: make(map[string]*Cluster)}
}

// Ingest absorbs one option print. classify must resolve the current NBBO
// snapshot for the print's contract into a placement bucket (C4), evaluated
// against the cache state at the moment of ingestion. Any clusters that
// flush as a side effect (including, possibly, the cluster for this same
// contract if it was stale) are returned in arrival-independent order:
// other-contract flushes first, then a same-contract restart flush if one
// occurred.
func (e *Engine) Ingest(p model.OptionPrint, classify func(price float64) model.Placement) []Flushed {
	var flushed []Flushed

	// Step 1: flush every other contract whose cluster has gone silent
	// longer than the window. Other contracts always observe endTs
	// strictly less than p.ts.
	for cid, c := range e.open {
		if cid == p.OptionContractID {
			continue
		}
		if p.TS-c.EndTS > e.windowMs {
			flushed = append(flushed, Flushed{Cluster: *c})
			delete(e.open, cid)
		}
	}

	c, exists := e.open[p.OptionContractID]
	switch {
	case !exists:
		c = newCluster(p)
		e.open[p.OptionContractID] = c
	case p.TS-c.StartTS <= e.windowMs:
		extend(c, p)
	default:
		// Stale cluster for the same contract: flush it, start fresh.
		flushed = append(flushed, Flushed{Cluster: *c})
		c = newCluster(p)
		e.open[p.OptionContractID] = c
	}

	pl := classify(p.Price)
	c.Placements.add(pl)

	return flushed
}

func newCluster(p model.OptionPrint) *Cluster {
	c := &Cluster{
		ContractID:    p.OptionContractID,
		StartTS:       p.TS,
		StartSourceTS: p.SourceTS,
		FirstPrice:    p.Price,
	}
	extend(c, p)
	return c
}

func extend(c *Cluster, p model.OptionPrint) {
	if p.TS > c.EndTS {
		c.EndTS = p.TS
	}
	if p.IngestTS > c.EndIngestTS {
		c.EndIngestTS = p.IngestTS
	}
	if p.Seq > c.EndSeq {
		c.EndSeq = p.Seq
	}
	c.Members = append(c.Members, p.TraceID)
	c.TotalSize += p.Size
	c.TotalPremium += p.Price * p.Size
	c.LastPrice = p.Price
}

// Flush forcibly closes and removes the cluster for contractID, if open.
// Used for shutdown draining: the coordinator flushes every live cluster
// before shutdown.
func (e *Engine) Flush(contractID string) (Flushed, bool) {
	c, ok := e.open[contractID]
	if !ok {
		return Flushed{}, false
	}
	delete(e.open, contractID)
	return Flushed{Cluster: *c}, true
}

// FlushAll closes every open cluster, in contract-ID order for determinism.
func (e *Engine) FlushAll() []Flushed {
	ids := make([]string, 0, len(e.open))
	for id := range e.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Flushed, 0, len(ids))
	for _, id := range ids {
		f, _ := e.Flush(id)
		out = append(out, f)
	}
	return out
}
