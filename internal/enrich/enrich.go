// Package enrich implements C8: turning a closed Cluster into a FlowPacket
// with the full feature bag (identity, underlying context, NBBO placement
// aggregates, current NBBO snapshot, rolling baselines, structure tags).
package enrich

import (
	"fmt"
	"math"
	"time"

	"github.com/flowdesk/optionflow/internal/cluster"
	"github.com/flowdesk/optionflow/internal/contractid"
	"github.com/flowdesk/optionflow/internal/model"
	"github.com/flowdesk/optionflow/internal/placement"
	"github.com/flowdesk/optionflow/internal/quotecache"
	"github.com/flowdesk/optionflow/internal/rollingstats"
	"github.com/flowdesk/optionflow/internal/structure"
)

// Deps bundles the shared stores the enricher reads from. None of these are
// owned by the enricher; they are process-wide collaborators wired in by the
// pipeline orchestrator.
type Deps struct {
	OptionQuotes *quotecache.OptionCache
	EquityQuotes *quotecache.EquityCache
	Baselines    *rollingstats.Store
}

// Enrich builds the per-contract FlowPacket for a freshly-flushed cluster.
// traceID is supplied by the caller (orchestrator) and carried through the
// packet's envelope so downstream consumers can correlate it back to the
// triggering prints.
func Enrich(c cluster.Cluster, traceID string, deps Deps) model.FlowPacket {
	packetID := fmt.Sprintf("flowpacket:%s:%d:%d", c.ContractID, c.StartTS, c.EndTS)

	features := map[string]any{}
	joinQuality := map[string]any{}

	count := len(c.Members)
	totalPremium := round4(c.TotalPremium)
	features["option_contract_id"] = c.ContractID
	features["start_ts"] = c.StartTS
	features["end_ts"] = c.EndTS
	features["window_ms"] = c.EndTS - c.StartTS
	features["count"] = count
	features["total_size"] = c.TotalSize
	features["total_premium"] = totalPremium
	features["total_notional"] = round2(totalPremium * 100)
	features["first_price"] = c.FirstPrice
	features["last_price"] = c.LastPrice

	contract, parsed := contractid.Parse(c.ContractID)
	if parsed {
		features["underlying_id"] = contract.Root
		features["right"] = string(contract.Right)
		features["strike"] = contract.Strike
		features["expiry"] = contract.Expiry.Format("2006-01-02")
		refTime := msToTime(c.EndTS)
		features["days_to_expiry"] = contract.DaysToExpiry(refTime)
		features["is_zero_dte"] = contract.IsZeroDTE(refTime)
		addUnderlyingContext(features, joinQuality, deps.EquityQuotes, contract.Root, c.EndTS)
	}

	addPlacementAggregates(features, c.Placements, count)
	addNBBOSnapshot(features, joinQuality, deps.OptionQuotes, c.ContractID, c.EndTS)
	addBaselines(features, deps.Baselines, c.ContractID, totalPremium, c.TotalSize)

	return model.FlowPacket{
		Envelope: model.Envelope{
			SourceTS: c.StartSourceTS,
			IngestTS: c.EndIngestTS,
			Seq:      c.EndSeq,
			TraceID:  traceID,
		},
		ID:          packetID,
		Kind:        model.PacketKindContract,
		Members:     append([]string(nil), c.Members...),
		Features:    features,
		JoinQuality: joinQuality,
	}
}

func addUnderlyingContext(features, joinQuality map[string]any, equityQuotes *quotecache.EquityCache, root string, atTS int64) {
	if equityQuotes == nil {
		joinQuality["underlying_quote_missing"] = true
		return
	}
	q, lk := equityQuotes.Get(root, atTS)
	if lk.Missing {
		joinQuality["underlying_quote_missing"] = true
		return
	}
	if lk.Stale {
		joinQuality["underlying_quote_stale"] = true
		return
	}
	mid := (q.Bid + q.Ask) / 2
	features["underlying_bid"] = q.Bid
	features["underlying_ask"] = q.Ask
	features["underlying_mid"] = mid
	features["underlying_spread"] = round4(q.Ask - q.Bid)
	features["underlying_quote_age_ms"] = lk.AgeMs
}

func addPlacementAggregates(features map[string]any, p cluster.PlacementCounts, count int) {
	features["nbbo_aa"] = p.AA
	features["nbbo_a"] = p.A
	features["nbbo_mid_count"] = p.Mid
	features["nbbo_b"] = p.B
	features["nbbo_bb"] = p.BB
	features["nbbo_missing"] = p.Missing
	features["nbbo_stale_count"] = p.Stale

	if count == 0 {
		return
	}
	placementTotal := p.AA + p.A + p.B + p.BB + p.Mid
	aggressiveTotal := p.AA + p.A + p.B + p.BB

	features["nbbo_coverage_ratio"] = round4(safeDiv(float64(placementTotal), float64(count)))
	if aggressiveTotal > 0 {
		features["nbbo_aggressive_buy_ratio"] = round4(safeDiv(float64(p.AA+p.A), float64(aggressiveTotal)))
		features["nbbo_aggressive_sell_ratio"] = round4(safeDiv(float64(p.BB+p.B), float64(aggressiveTotal)))
	}
	if placementTotal > 0 {
		features["nbbo_inside_ratio"] = round4(safeDiv(float64(p.Mid), float64(placementTotal)))
		features["nbbo_aggressive_ratio"] = round4(safeDiv(float64(aggressiveTotal), float64(placementTotal)))
	}
}

func addNBBOSnapshot(features, joinQuality map[string]any, optionQuotes *quotecache.OptionCache, contractID string, atTS int64) {
	if optionQuotes == nil {
		joinQuality["nbbo_missing"] = true
		return
	}
	q, lk := optionQuotes.Get(contractID, atTS)
	if lk.Missing {
		joinQuality["nbbo_missing"] = true
		return
	}
	if lk.Stale {
		joinQuality["nbbo_stale"] = 1
		return
	}
	mid := (q.Bid + q.Ask) / 2
	features["nbbo_bid"] = q.Bid
	features["nbbo_ask"] = q.Ask
	features["nbbo_mid"] = mid
	features["nbbo_spread"] = round4(q.Ask - q.Bid)
	features["nbbo_bid_size"] = q.BidSize
	features["nbbo_ask_size"] = q.AskSize
	joinQuality["nbbo_age_ms"] = lk.AgeMs
}

func addBaselines(features map[string]any, baselines *rollingstats.Store, contractID string, totalPremium, totalSize float64) {
	keys := map[string]float64{
		"premium": totalPremium,
		"size":    totalSize,
	}
	for name, value := range keys {
		var r rollingstats.Result
		if baselines == nil {
			r = rollingstats.Unavailable()
		} else {
			r = baselines.Update(fmt.Sprintf("%s:%s", name, contractID), value)
		}
		features[name+"_mean"] = round4(r.Mean)
		features[name+"_std"] = round4(r.Stddev)
		features[name+"_z"] = round4(r.Z)
		features[name+"_baseline_n"] = r.N
	}

	if spread, ok := features["nbbo_spread"].(float64); ok && baselines != nil {
		r := baselines.Update(fmt.Sprintf("spread:%s", contractID), spread)
		features["spread_mean"] = round4(r.Mean)
		features["spread_std"] = round4(r.Stddev)
		features["spread_z"] = round4(r.Z)
		features["spread_baseline_n"] = r.N
	}
}

// AttachStructure applies a structure.Summary's fields onto a packet's
// feature bag (used for the per-contract packet's display/audit tags; the
// structure-packet feature bag is built separately by BuildStructurePacket).
func AttachStructure(features map[string]any, s structure.Summary) {
	features["structure_type"] = string(s.Type)
	features["structure_legs"] = s.Legs
	features["structure_strikes"] = s.Strikes
	features["structure_strike_span"] = s.StrikeSpan
	features["structure_rights"] = s.Rights
	if s.HasStrikeDel {
		features["structure_from_expiry"] = s.FromExpiry
		features["structure_to_expiry"] = s.ToExpiry
		features["structure_strike_delta"] = s.StrikeDelta
	}
}

// BuildStructurePacket materializes the companion structure-only packet
// (packet_kind=structure). members is the union of the contributing
// clusters' members, in contract order. anchor is the per-contract packet
// that triggered the
// structure detection; its placement-skew ratios are copied over (but none
// of its other per-contract features) so the structure-family classifiers
// have a buy/sell skew signal to read without reopening every leg's packet.
func BuildStructurePacket(s structure.Summary, anchorEndTS int64, traceID string, members []string, anchor model.FlowPacket) model.FlowPacket {
	features := map[string]any{}
	AttachStructure(features, s)
	for _, k := range []string{"nbbo_aggressive_buy_ratio", "nbbo_aggressive_sell_ratio", "nbbo_coverage_ratio", "nbbo_aggressive_ratio"} {
		if v, ok := anchor.Features[k]; ok {
			features[k] = v
		}
	}

	id := fmt.Sprintf("flowpacket:structure:%s:%d", joinPlus(s.ContractIDs), anchorEndTS)

	return model.FlowPacket{
		Envelope: model.Envelope{
			TraceID: traceID,
		},
		ID:       id,
		Kind:     model.PacketKindStructure,
		Members:  append([]string(nil), members...),
		Features: features,
	}
}

func joinPlus(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += "+"
		}
		out += s
	}
	return out
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

func msToTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
