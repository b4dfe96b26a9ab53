// Package alertscore implements C10: aggregating a packet's non-empty
// classifier hit list into a single scored, severity-bucketed alert. Grounded
// on the weighted-component scoring pattern used for premove scores in the
// examples pack (component scores summed, then clamped and bucketed).
package alertscore

import (
	"math"

	"github.com/flowdesk/optionflow/internal/model"
)

// Score computes premiumScore + confidenceScore + hitScore, clamps to
// [0,100], and derives the severity bucket. Returns ok=false when hits is
// empty (no alert to emit).
func Score(p model.FlowPacket, hits []model.ClassifierHit) (model.AlertEvent, bool) {
	if len(hits) == 0 {
		return model.AlertEvent{}, false
	}

	totalPremium, _ := p.Features["total_premium"].(float64)

	premiumScore := math.Min(70, math.Round(totalPremium/1000))

	maxConfidence := 0.0
	for _, h := range hits {
		if h.Confidence > maxConfidence {
			maxConfidence = h.Confidence
		}
	}
	confidenceScore := math.Round(maxConfidence * 20)

	hitScore := math.Min(20, float64(len(hits))*5)

	score := clamp(premiumScore+confidenceScore+hitScore, 0, 100)
	severity := severityFor(score)

	evidence := make([]string, 0, len(p.Members)+1)
	evidence = append(evidence, p.ID)
	evidence = append(evidence, p.Members...)

	return model.AlertEvent{
		Envelope: model.Envelope{
			SourceTS: p.SourceTS,
			IngestTS: p.IngestTS,
			Seq:      p.Seq,
			TraceID:  "alert:" + p.ID,
		},
		PacketID:     p.ID,
		Score:        score,
		Severity:     severity,
		Hits:         hits,
		EvidenceRefs: evidence,
	}, true
}

func severityFor(score float64) model.Severity {
	switch {
	case score >= 80:
		return model.SeverityHigh
	case score >= 45:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
