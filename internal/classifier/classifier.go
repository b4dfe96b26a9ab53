// Package classifier implements C9: a bank of independent classifiers, each
// evaluating one packet and emitting 0 or 1 hit with an auditable confidence
// trail. Per-contract classifiers only look at packet_kind=contract packets;
// structure-family classifiers only look at packet_kind=structure packets.
package classifier

import (
	"fmt"
	"math"

	"github.com/flowdesk/optionflow/internal/model"
)

// Thresholds bundles every env-tunable classifier knob.
type Thresholds struct {
	SweepMinCount      int
	SweepMinPremium    float64
	SweepMinZ          float64
	ZMinSamples        int
	SpikeMinSize       float64
	SpikeMinPremium    float64
	SpikeMinZ          float64
	SizeMinZ           float64
	MinAggressiveRatio float64
	MinCoverage        float64
	FarDatedMinDTE     int
	ZeroDTEMaxATMPct   float64
	ZeroDTEMinPremium  float64
	ZeroDTEMinSize     float64
}

// Default returns the hardcoded classifier threshold defaults, used when an
// env var is unset.
func Default() Thresholds {
	return Thresholds{
		SweepMinCount:      5,
		SweepMinPremium:    25000,
		SweepMinZ:          2.0,
		ZMinSamples:        5,
		SpikeMinSize:       500,
		SpikeMinPremium:    50000,
		SpikeMinZ:          3.0,
		SizeMinZ:           3.0,
		MinAggressiveRatio: 0.6,
		MinCoverage:        0.5,
		FarDatedMinDTE:     60,
		ZeroDTEMaxATMPct:   0.01,
		ZeroDTEMinPremium:  10000,
		ZeroDTEMinSize:     200,
	}
}

// Classifier evaluates one packet and returns a hit if it qualifies.
type Classifier func(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool)

// Bank is the ordered set of classifiers evaluated per packet.
var Bank = []struct {
	ID      string
	Applies func(p model.FlowPacket) bool
	Run     Classifier
}{
	{"large_bullish_call_sweep", isContractRight("C"), sweepClassifier("large_bullish_call_sweep", model.DirectionBullish)},
	{"large_bearish_put_sweep", isContractRight("P"), sweepClassifier("large_bearish_put_sweep", model.DirectionBearish)},
	{"unusual_contract_spike", isContract, spikeClassifier},
	{"large_call_sell_overwrite", isContractRight("C"), overwriteClassifier("large_call_sell_overwrite", model.DirectionBearish)},
	{"large_put_sell_write", isContractRight("P"), overwriteClassifier("large_put_sell_write", model.DirectionBullish)},
	{"straddle", isStructureType("straddle"), structureNeutralClassifier("straddle")},
	{"strangle", isStructureType("strangle"), structureNeutralClassifier("strangle")},
	{"vertical_spread", isStructureType("vertical"), verticalClassifier},
	{"ladder_accumulation", isStructureType("ladder"), ladderClassifier},
	{"far_dated_conviction", isContract, farDatedClassifier},
	{"zero_dte_gamma_punch", isContract, zeroDTEClassifier},
}

// Evaluate runs every applicable classifier against p and returns the hits.
func Evaluate(p model.FlowPacket, t Thresholds) []model.ClassifierHit {
	var hits []model.ClassifierHit
	for _, c := range Bank {
		if !c.Applies(p) {
			continue
		}
		if hit, ok := c.Run(p, t); ok {
			hits = append(hits, hit)
		}
	}
	return hits
}

func isContract(p model.FlowPacket) bool { return p.Kind == model.PacketKindContract }

func isContractRight(right string) func(model.FlowPacket) bool {
	return func(p model.FlowPacket) bool {
		if p.Kind != model.PacketKindContract {
			return false
		}
		r, _ := p.Features["right"].(string)
		return r == right
	}
}

func isStructureType(t string) func(model.FlowPacket) bool {
	return func(p model.FlowPacket) bool {
		if p.Kind != model.PacketKindStructure {
			return false
		}
		st, _ := p.Features["structure_type"].(string)
		return st == t
	}
}

func numFeature(p model.FlowPacket, key string) (float64, bool) {
	v, ok := p.Features[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func intFeature(p model.FlowPacket, key string) int {
	switch n := p.Features[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func boolFeature(p model.FlowPacket, key string) bool {
	b, _ := p.Features[key].(bool)
	return b
}

// baselineNote renders the audit string for a premium/size/etc baseline, per
// the required explanation format.
func baselineNote(z float64, n int, zMinSamples int) string {
	if n < zMinSamples {
		return "Baseline z-score unavailable"
	}
	return fmt.Sprintf("Baseline z-score %.2f over %d samples", z, n)
}

// aggressorNote renders the audit string for aggressor-ratio context, and
// reports the adjustment to apply to the running confidence.
func aggressorNote(p model.FlowPacket, t Thresholds, ratioKey string) (string, float64) {
	coverage, hasCoverage := numFeature(p, "nbbo_coverage_ratio")
	if !hasCoverage || coverage == 0 {
		return "Aggressor context unavailable", -0.15
	}
	ratio, _ := numFeature(p, ratioKey)
	note := fmt.Sprintf("Aggressor coverage %d%%, ratio %d%%", int(math.Round(coverage*100)), int(math.Round(ratio*100)))
	if coverage < t.MinCoverage {
		return note, 0
	}
	if ratio >= t.MinAggressiveRatio {
		return note, 0.05
	}
	return note, -0.10
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 0.95 {
		return 0.95
	}
	return c
}

func newHit(p model.FlowPacket, classifierID string, direction model.Direction, confidence float64, explanations []string) model.ClassifierHit {
	return model.ClassifierHit{
		Envelope: model.Envelope{
			SourceTS: p.SourceTS,
			IngestTS: p.IngestTS,
			Seq:      p.Seq,
			TraceID:  fmt.Sprintf("classifier:%s:%s", classifierID, p.ID),
		},
		ClassifierID: classifierID,
		PacketID:     p.ID,
		Confidence:   clampConfidence(confidence),
		Direction:    direction,
		Explanations: explanations,
	}
}

// sweepClassifier builds large_bullish_call_sweep / large_bearish_put_sweep:
// count ≥ SWEEP_MIN_COUNT AND (premium ≥ SWEEP_MIN_PREMIUM OR baseline z
// qualifies).
func sweepClassifier(id string, direction model.Direction) Classifier {
	return func(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
		count := intFeature(p, "count")
		premium, _ := numFeature(p, "total_premium")
		z, _ := numFeature(p, "premium_z")
		n := intFeature(p, "premium_baseline_n")

		if count < t.SweepMinCount {
			return model.ClassifierHit{}, false
		}
		premiumQualifies := premium >= t.SweepMinPremium
		zQualifies := n >= t.ZMinSamples && z >= t.SweepMinZ
		if !premiumQualifies && !zQualifies {
			return model.ClassifierHit{}, false
		}

		confidence := 0.5
		if premium >= 2*t.SweepMinPremium {
			confidence += 0.15
		}
		if zQualifies && z >= t.SweepMinZ+1 {
			confidence += 0.05
		}
		if count >= 2*t.SweepMinCount {
			confidence += 0.05
		}

		ratioKey := "nbbo_aggressive_buy_ratio"
		if direction == model.DirectionBearish {
			ratioKey = "nbbo_aggressive_sell_ratio"
		}
		note, adj := aggressorNote(p, t, ratioKey)
		confidence += adj

		side := "call"
		if direction == model.DirectionBearish {
			side = "put"
		}
		explanations := []string{
			fmt.Sprintf("Likely sweep-driven %s flow", side),
			fmt.Sprintf("Count %d over threshold %d, premium %.2f vs %.2f", count, t.SweepMinCount, premium, t.SweepMinPremium),
			baselineNote(z, n, t.ZMinSamples),
			note,
		}
		return newHit(p, id, direction, confidence, explanations), true
	}
}

// spikeClassifier builds unusual_contract_spike.
func spikeClassifier(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
	size, _ := numFeature(p, "total_size")
	premium, _ := numFeature(p, "total_premium")
	premiumZ, _ := numFeature(p, "premium_z")
	sizeZ, _ := numFeature(p, "size_z")
	n := intFeature(p, "premium_baseline_n")

	sizePremiumQualifies := size >= t.SpikeMinSize && premium >= t.SpikeMinPremium
	premiumZQualifies := premiumZ >= t.SpikeMinZ
	sizeZQualifies := sizeZ >= t.SizeMinZ
	if !sizePremiumQualifies && !premiumZQualifies && !sizeZQualifies {
		return model.ClassifierHit{}, false
	}

	confidence := 0.45
	if sizePremiumQualifies && size >= 2*t.SpikeMinSize {
		confidence += 0.15
	}
	if premiumZQualifies && premiumZ >= t.SpikeMinZ+1 {
		confidence += 0.05
	}
	note, adj := aggressorNote(p, t, "nbbo_aggressive_ratio")
	// The missing-coverage penalty applies to side-specific classifiers only.
	if coverage, _ := numFeature(p, "nbbo_coverage_ratio"); coverage == 0 {
		adj = 0
	}
	confidence += adj

	explanations := []string{
		"Likely unusual single-contract activity",
		fmt.Sprintf("Size %.2f, premium %.2f against thresholds %.2f/%.2f", size, premium, t.SpikeMinSize, t.SpikeMinPremium),
		baselineNote(premiumZ, n, t.ZMinSamples),
		note,
	}
	return newHit(p, "unusual_contract_spike", model.DirectionNeutral, confidence, explanations), true
}

// overwriteClassifier builds large_call_sell_overwrite / large_put_sell_write:
// spike thresholds plus a dominant sell-side aggressor.
func overwriteClassifier(id string, direction model.Direction) Classifier {
	return func(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
		size, _ := numFeature(p, "total_size")
		premium, _ := numFeature(p, "total_premium")
		premiumZ, _ := numFeature(p, "premium_z")
		n := intFeature(p, "premium_baseline_n")
		sellRatio, hasSellRatio := numFeature(p, "nbbo_aggressive_sell_ratio")

		spikeQualifies := (size >= t.SpikeMinSize && premium >= t.SpikeMinPremium) || premiumZ >= t.SpikeMinZ
		if !spikeQualifies || !hasSellRatio || sellRatio < t.MinAggressiveRatio {
			return model.ClassifierHit{}, false
		}

		confidence := 0.5
		if sellRatio >= t.MinAggressiveRatio+0.2 {
			confidence += 0.1
		}
		note, adj := aggressorNote(p, t, "nbbo_aggressive_sell_ratio")
		confidence += adj

		explanations := []string{
			"Likely sell-side overwrite flow",
			fmt.Sprintf("Sell-aggressor ratio %d%% vs minimum %d%%", int(math.Round(sellRatio*100)), int(math.Round(t.MinAggressiveRatio*100))),
			baselineNote(premiumZ, n, t.ZMinSamples),
			note,
		}
		return newHit(p, id, direction, confidence, explanations), true
	}
}

func structureNeutralClassifier(id string) Classifier {
	return func(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
		legs := intFeature(p, "structure_legs")
		confidence := 0.5
		if legs > 2 {
			confidence += 0.05
		}
		explanations := []string{
			fmt.Sprintf("Likely %s structure", id),
			fmt.Sprintf("Legs observed: %d", legs),
			"Baseline z-score unavailable",
			"Aggressor context unavailable",
		}
		return newHit(p, id, model.DirectionNeutral, confidence, explanations), true
	}
}

func verticalClassifier(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
	rights, _ := p.Features["structure_rights"].(string)
	buyRatio, _ := numFeature(p, "nbbo_aggressive_buy_ratio")
	sellRatio, _ := numFeature(p, "nbbo_aggressive_sell_ratio")

	buyDominant := buyRatio >= sellRatio
	var direction model.Direction
	switch {
	case rights == "C" && buyDominant:
		direction = model.DirectionBullish
	case rights == "C" && !buyDominant:
		direction = model.DirectionBearish
	case rights == "P" && !buyDominant:
		direction = model.DirectionBullish
	case rights == "P" && buyDominant:
		direction = model.DirectionBearish
	default:
		direction = model.DirectionNeutral
	}

	confidence := 0.5
	skew := "buy"
	if !buyDominant {
		skew = "sell"
	}
	explanations := []string{
		"Likely vertical spread positioning",
		fmt.Sprintf("Rights %s, %s-dominant skew", rights, skew),
		"Baseline z-score unavailable",
		fmt.Sprintf("Aggressor coverage derived from anchor leg: buy %d%%, sell %d%%", int(math.Round(buyRatio*100)), int(math.Round(sellRatio*100))),
	}
	return newHit(p, "vertical_spread", direction, confidence, explanations), true
}

func ladderClassifier(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
	strikes := intFeature(p, "structure_strikes")
	if strikes < 3 {
		return model.ClassifierHit{}, false
	}
	rights, _ := p.Features["structure_rights"].(string)
	premiumZ, _ := numFeature(p, "premium_z")
	buyRatio, _ := numFeature(p, "nbbo_aggressive_buy_ratio")

	if premiumZ < t.SweepMinZ && buyRatio < t.MinAggressiveRatio {
		return model.ClassifierHit{}, false
	}

	direction := model.DirectionBullish
	if rights == "P" {
		direction = model.DirectionBearish
	}

	confidence := 0.5
	if strikes >= 4 {
		confidence += 0.1
	}

	explanations := []string{
		"Likely ladder accumulation",
		fmt.Sprintf("Strikes observed: %d, rights %s", strikes, rights),
		baselineNote(premiumZ, intFeature(p, "premium_baseline_n"), t.ZMinSamples),
		fmt.Sprintf("Aggressor buy ratio %d%%", int(math.Round(buyRatio*100))),
	}
	return newHit(p, "ladder_accumulation", direction, confidence, explanations), true
}

func farDatedClassifier(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
	dte := intFeature(p, "days_to_expiry")
	if dte < t.FarDatedMinDTE {
		return model.ClassifierHit{}, false
	}
	size, _ := numFeature(p, "total_size")
	premium, _ := numFeature(p, "total_premium")
	premiumZ, _ := numFeature(p, "premium_z")
	n := intFeature(p, "premium_baseline_n")
	if (size < t.SpikeMinSize || premium < t.SpikeMinPremium) && premiumZ < t.SpikeMinZ {
		return model.ClassifierHit{}, false
	}

	right, _ := p.Features["right"].(string)
	direction := model.DirectionBullish
	if right == "P" {
		direction = model.DirectionBearish
	}

	confidence := 0.5
	if dte >= 2*t.FarDatedMinDTE {
		confidence += 0.05
	}
	note, adj := aggressorNote(p, t, "nbbo_aggressive_buy_ratio")
	confidence += adj

	explanations := []string{
		"Likely far-dated conviction trade",
		fmt.Sprintf("DTE %d against minimum %d", dte, t.FarDatedMinDTE),
		baselineNote(premiumZ, n, t.ZMinSamples),
		note,
	}
	return newHit(p, "far_dated_conviction", direction, confidence, explanations), true
}

func zeroDTEClassifier(p model.FlowPacket, t Thresholds) (model.ClassifierHit, bool) {
	if !boolFeature(p, "is_zero_dte") {
		return model.ClassifierHit{}, false
	}
	strike, _ := numFeature(p, "strike")
	mid, hasMid := numFeature(p, "underlying_mid")
	if !hasMid || mid == 0 {
		return model.ClassifierHit{}, false
	}
	atmPct := math.Abs(strike-mid) / mid
	if atmPct > t.ZeroDTEMaxATMPct {
		return model.ClassifierHit{}, false
	}
	size, _ := numFeature(p, "total_size")
	premium, _ := numFeature(p, "total_premium")
	if size < t.ZeroDTEMinSize || premium < t.ZeroDTEMinPremium {
		return model.ClassifierHit{}, false
	}

	right, _ := p.Features["right"].(string)
	direction := model.DirectionBullish
	if right == "P" {
		direction = model.DirectionBearish
	}

	confidence := 0.55
	if atmPct <= t.ZeroDTEMaxATMPct/2 {
		confidence += 0.1
	}
	note, adj := aggressorNote(p, t, "nbbo_aggressive_buy_ratio")
	confidence += adj

	explanations := []string{
		"Likely 0DTE gamma-chasing flow",
		fmt.Sprintf("ATM distance %.4f within %.4f, size %.2f, premium %.2f", atmPct, t.ZeroDTEMaxATMPct, size, premium),
		"Baseline z-score unavailable",
		note,
	}
	return newHit(p, "zero_dte_gamma_punch", direction, confidence, explanations), true
}
