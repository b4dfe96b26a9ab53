package structure

import "sync"

// Registry is a deterministic recent-legs-by-root ring buffer: it remembers
// the last closed legs for each root so that structures spanning clusters
// closed in adjacent windows (e.g. a straddle whose call leg closed slightly
// before its put leg) are still detectable. Bounded to maxPerRoot entries;
// oldest legs are evicted on overflow.
type Registry struct {
	mu         sync.Mutex
	byRoot     map[string][]Leg
	maxPerRoot int
}

// NewRegistry creates a registry keeping at most maxPerRoot legs per root.
func NewRegistry(maxPerRoot int) *Registry {
	if maxPerRoot <= 0 {
		maxPerRoot = 20
	}
	return &Registry{byRoot: make(map[string][]Leg), maxPerRoot: maxPerRoot}
}

// Record appends a newly-closed leg to its root's ring buffer.
func (r *Registry) Record(leg Leg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	legs := append(r.byRoot[leg.Root], leg)
	if len(legs) > r.maxPerRoot {
		legs = legs[len(legs)-r.maxPerRoot:]
	}
	r.byRoot[leg.Root] = legs
}

// CandidateLegs returns the legs recorded for root that could form a
// structure with the anchor leg: itself plus every other remembered leg
// within ±windowMs of refEndTS, purging stale entries from the buffer as it
// goes (every lookup purges stale entries via the anchor-window filter).
func (r *Registry) CandidateLegs(root string, anchor Leg, refEndTS, windowMs int64) []Leg {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]Leg, 0, len(r.byRoot[root]))
	candidates := []Leg{anchor}
	seen := map[string]bool{anchor.ContractID: true}

	for _, l := range r.byRoot[root] {
		diff := l.EndTS - refEndTS
		if diff < 0 {
			diff = -diff
		}
		if diff > windowMs {
			continue // drop: outside any plausible future anchor window
		}
		kept = append(kept, l)
		if !seen[l.ContractID] {
			candidates = append(candidates, l)
			seen[l.ContractID] = true
		}
	}
	r.byRoot[root] = kept

	return candidates
}
