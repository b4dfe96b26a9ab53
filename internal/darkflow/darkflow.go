// Package darkflow implements C5: joining equity prints against the
// equity-quote cache and running dark-pool inference (absorbed blocks,
// stealth accumulation, distribution) over off-exchange prints.
package darkflow

import (
	"fmt"
	"sync"

	"github.com/flowdesk/optionflow/internal/model"
	"github.com/flowdesk/optionflow/internal/placement"
	"github.com/flowdesk/optionflow/internal/quotecache"
)

// Thresholds bundles every env-tunable dark-inference knob.
type Thresholds struct {
	MaxAgeMs     int64
	MaxSpreadPct float64
	MinBlockSize float64
	MinPrintSize float64
	WindowMs     int64
	MinCount     int
	MinSize      float64
	CooldownMs   int64
	MaxEvidence  int
}

// Default returns the hardcoded dark-inference threshold defaults.
func Default() Thresholds {
	return Thresholds{
		MaxAgeMs:     2000,
		MaxSpreadPct: 0.02,
		MinBlockSize: 5000,
		MinPrintSize: 1000,
		WindowMs:     5 * 60 * 1000,
		MinCount:     5,
		MinSize:      25000,
		CooldownMs:   10 * 60 * 1000,
		MaxEvidence:  10,
	}
}

// Join builds the EquityPrintJoin for one equity print against the current
// equity-quote cache state.
func Join(p model.EquityPrint, quotes *quotecache.EquityCache, maxAgeMs int64) model.EquityPrintJoin {
	q, lk := quotes.Get(p.UnderlyingID, p.TS)

	pl := model.PlacementMissing
	if !lk.Missing {
		quote := placement.Quote{Bid: q.Bid, Ask: q.Ask, Stale: lk.Stale, Missing: false}
		pl = placement.Classify(p.Price, quote)
	}

	join := model.EquityPrintJoin{
		Envelope:        p.Envelope,
		ID:              fmt.Sprintf("join:%s:%d:%d", p.UnderlyingID, p.TS, p.Seq),
		UnderlyingID:    p.UnderlyingID,
		Price:           p.Price,
		Size:            p.Size,
		OffExchangeFlag: p.OffExchangeFlag,
		Placement:       pl,
		QuoteFresh:      !lk.Missing && !lk.Stale,
	}
	if join.QuoteFresh {
		join.Bid = q.Bid
		join.Ask = q.Ask
		join.Mid = (q.Bid + q.Ask) / 2
		join.Spread = q.Ask - q.Bid
	}
	return join
}

type aggressivePrint struct {
	ts     int64
	joinID string
	size   float64
	isBuy  bool
}

type underlyingState struct {
	recent      []aggressivePrint
	lastEmitted map[model.DarkEventType]int64 // event type -> ts last emitted
}

// Engine runs the dark-inference rules over a stream of equity print joins,
// one instance per process (state is keyed internally by underlying).
type Engine struct {
	mu    sync.Mutex
	state map[string]*underlyingState
}

// NewEngine builds an empty dark-inference engine.
func NewEngine() *Engine {
	return &Engine{state: make(map[string]*underlyingState)}
}

// Observe feeds one equity print join through the dark-inference rules and
// returns any events it produces (0, 1, or more — a single print can trigger
// an absorbed-block hit and independently update the aggregate windows).
func (e *Engine) Observe(join model.EquityPrintJoin, spreadPct float64, t Thresholds) []model.InferredDark {
	if !join.QuoteFresh {
		return nil
	}
	if spreadPct > t.MaxSpreadPct {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[join.UnderlyingID]
	if !ok {
		st = &underlyingState{lastEmitted: make(map[model.DarkEventType]int64)}
		e.state[join.UnderlyingID] = st
	}

	var events []model.InferredDark

	if join.OffExchangeFlag && join.Placement == model.PlacementMid && join.Size >= t.MinBlockSize {
		if e.notCoolingDown(st, model.DarkAbsorbedBlock, join.SourceTS, t.CooldownMs) {
			confidence := clip01(0.35 +
				0.45*minF(1, join.Size/(2*t.MinBlockSize)) +
				0.20*(1-spreadPct/t.MaxSpreadPct))
			events = append(events, model.InferredDark{
				Envelope:     join.Envelope,
				Type:         model.DarkAbsorbedBlock,
				UnderlyingID: join.UnderlyingID,
				Confidence:   confidence,
				EvidenceRefs: []string{join.ID},
			})
			st.lastEmitted[model.DarkAbsorbedBlock] = join.SourceTS
		}
	}

	isBuy := join.Placement == model.PlacementAA || join.Placement == model.PlacementA
	isSell := join.Placement == model.PlacementB || join.Placement == model.PlacementBB
	if join.OffExchangeFlag && (isBuy || isSell) && join.Size >= t.MinPrintSize {
		st.recent = append(st.recent, aggressivePrint{ts: join.SourceTS, joinID: join.ID, size: join.Size, isBuy: isBuy})
	}
	trimWindow(st, join.SourceTS, t.WindowMs)

	if buyCount, buySize, buyRefs := aggregate(st.recent, true, t.MaxEvidence); buyCount >= t.MinCount && buySize >= t.MinSize {
		if e.notCoolingDown(st, model.DarkStealthAccumulation, join.SourceTS, t.CooldownMs) {
			events = append(events, model.InferredDark{
				Envelope:     join.Envelope,
				Type:         model.DarkStealthAccumulation,
				UnderlyingID: join.UnderlyingID,
				Confidence:   clip01(0.4 + 0.1*minF(1, buySize/(2*t.MinSize))),
				EvidenceRefs: buyRefs,
			})
			st.lastEmitted[model.DarkStealthAccumulation] = join.SourceTS
		}
	}

	if sellCount, sellSize, sellRefs := aggregate(st.recent, false, t.MaxEvidence); sellCount >= t.MinCount && sellSize >= t.MinSize {
		if e.notCoolingDown(st, model.DarkDistribution, join.SourceTS, t.CooldownMs) {
			events = append(events, model.InferredDark{
				Envelope:     join.Envelope,
				Type:         model.DarkDistribution,
				UnderlyingID: join.UnderlyingID,
				Confidence:   clip01(0.4 + 0.1*minF(1, sellSize/(2*t.MinSize))),
				EvidenceRefs: sellRefs,
			})
			st.lastEmitted[model.DarkDistribution] = join.SourceTS
		}
	}

	return events
}

func (e *Engine) notCoolingDown(st *underlyingState, typ model.DarkEventType, nowTS int64, cooldownMs int64) bool {
	last, ok := st.lastEmitted[typ]
	if !ok {
		return true
	}
	return nowTS-last >= cooldownMs
}

func trimWindow(st *underlyingState, nowTS int64, windowMs int64) {
	kept := st.recent[:0]
	for _, p := range st.recent {
		if nowTS-p.ts <= windowMs {
			kept = append(kept, p)
		}
	}
	st.recent = kept
}

func aggregate(prints []aggressivePrint, buy bool, maxEvidence int) (count int, size float64, refs []string) {
	for _, p := range prints {
		if p.isBuy != buy {
			continue
		}
		count++
		size += p.size
		refs = append(refs, p.joinID)
	}
	if len(refs) > maxEvidence {
		refs = refs[len(refs)-maxEvidence:]
	}
	return count, size, refs
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
