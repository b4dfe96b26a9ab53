// Package placement implements the C4 placement classifier: which side of
// the posted market a trade printed on.
package placement

import "github.com/flowdesk/optionflow/internal/model"

// Quote is the minimal bid/ask context placement classification needs.
type Quote struct {
	Bid     float64
	Ask     float64
	Stale   bool
	Missing bool
}

// Classify buckets a trade price against a quote.
func Classify(price float64, q Quote) model.Placement {
	if q.Missing || q.Ask <= 0 {
		return model.PlacementMissing
	}
	if q.Stale {
		return model.PlacementStale
	}

	spread := q.Ask - q.Bid
	if spread < 0 {
		spread = 0
	}
	eps := spread * 0.05
	if eps < 0.01 {
		eps = 0.01
	}

	switch {
	case price > q.Ask+eps:
		return model.PlacementAA
	case price >= q.Ask-eps:
		return model.PlacementA
	case price < q.Bid-eps:
		return model.PlacementBB
	case price <= q.Bid+eps:
		return model.PlacementB
	default:
		return model.PlacementMid
	}
}

// IsAggressiveBuy reports whether a placement counts as an aggressive buy
// (at or above the ask) for dark-inference and classifier aggressor logic.
func IsAggressiveBuy(p model.Placement) bool {
	return p == model.PlacementAA || p == model.PlacementA
}

// IsAggressiveSell reports whether a placement counts as an aggressive sell
// (at or below the bid).
func IsAggressiveSell(p model.Placement) bool {
	return p == model.PlacementB || p == model.PlacementBB
}

// IsUsable reports whether a placement is usable for coverage/aggressor
// ratios (excludes MISSING and STALE).
func IsUsable(p model.Placement) bool {
	switch p {
	case model.PlacementAA, model.PlacementA, model.PlacementMid, model.PlacementB, model.PlacementBB:
		return true
	default:
		return false
	}
}
