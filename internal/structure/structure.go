// Package structure implements the C6 structure summarizer: given a set of
// concurrently-closed legs on one root, classify the shape (straddle,
// strangle, vertical, ladder, roll, multi_leg).
package structure

import (
	"sort"

	"github.com/flowdesk/optionflow/internal/contractid"
)

// Leg is one closed cluster's identity, as seen by the structure summarizer.
type Leg struct {
	ContractID string
	Root       string
	Expiry     string // "2006-01-02"
	Strike     float64
	Right      contractid.Right
	EndTS      int64
	Members    []string // the closed cluster's trace IDs, carried through so a detected structure can report its member union
}

// Type enumerates the recognizable multi-leg shapes.
type Type string

const (
	Straddle Type = "straddle"
	Strangle Type = "strangle"
	Vertical Type = "vertical"
	Ladder   Type = "ladder"
	Roll     Type = "roll"
	MultiLeg Type = "multi_leg"
)

// Summary is the C6 output.
type Summary struct {
	Type         Type
	Legs         int
	Strikes      int
	StrikeSpan   float64
	Rights       string
	ContractIDs  []string
	FromExpiry   string // only set when Type == Roll
	ToExpiry     string
	StrikeDelta  float64
	HasStrikeDel bool
}

// Summarize classifies legs anchored around refEndTS, keeping only legs
// within ±windowMs of the anchor. Returns ok=false when fewer than 2 legs
// qualify (no structure to report).
func Summarize(legs []Leg, refEndTS int64, windowMs int64) (Summary, bool) {
	eligible := make([]Leg, 0, len(legs))
	for _, l := range legs {
		diff := l.EndTS - refEndTS
		if diff < 0 {
			diff = -diff
		}
		if diff <= windowMs {
			eligible = append(eligible, l)
		}
	}
	if len(eligible) < 2 {
		return Summary{}, false
	}

	expirySet := map[string]bool{}
	rightSet := map[contractid.Right]bool{}
	strikeSet := map[float64]bool{}
	contractIDs := make([]string, 0, len(eligible))
	for _, l := range eligible {
		expirySet[l.Expiry] = true
		rightSet[l.Right] = true
		strikeSet[l.Strike] = true
		contractIDs = append(contractIDs, l.ContractID)
	}
	sort.Strings(contractIDs)

	strikes := sortedFloatKeys(strikeSet)
	rights := rightsLabel(rightSet)

	summary := Summary{
		Legs:        len(eligible),
		Strikes:     len(strikeSet),
		Rights:      rights,
		ContractIDs: contractIDs,
	}
	if len(strikes) > 0 {
		summary.StrikeSpan = strikes[len(strikes)-1] - strikes[0]
	}

	nExpiries := len(expirySet)
	nRights := len(rightSet)
	nStrikes := len(strikeSet)

	switch {
	case nExpiries == 1 && nRights == 2 && nStrikes == 1:
		summary.Type = Straddle
	case nExpiries == 1 && nRights == 2 && nStrikes >= 2:
		summary.Type = Strangle
	case nExpiries == 1 && nRights == 1 && nStrikes == 2:
		summary.Type = Vertical
	case nExpiries == 1 && nRights == 1 && nStrikes >= 3:
		summary.Type = Ladder
	case nRights == 1 && nExpiries == 2:
		summary.Type = Roll
		from, to, delta, ok := rollDeltas(eligible)
		if ok {
			summary.FromExpiry = from
			summary.ToExpiry = to
			summary.StrikeDelta = delta
			summary.HasStrikeDel = true
		}
	default:
		summary.Type = MultiLeg
	}

	return summary, true
}

// rollDeltas picks the chronologically earlier/later expiry among legs that
// share a single right, and returns the strike delta (to - from).
func rollDeltas(legs []Leg) (from, to string, delta float64, ok bool) {
	byExpiry := map[string]Leg{}
	for _, l := range legs {
		byExpiry[l.Expiry] = l
	}
	expiries := make([]string, 0, len(byExpiry))
	for e := range byExpiry {
		expiries = append(expiries, e)
	}
	if len(expiries) != 2 {
		return "", "", 0, false
	}
	sort.Strings(expiries)
	fromLeg := byExpiry[expiries[0]]
	toLeg := byExpiry[expiries[1]]
	return expiries[0], expiries[1], toLeg.Strike - fromLeg.Strike, true
}

func rightsLabel(rights map[contractid.Right]bool) string {
	hasCall := rights[contractid.Call]
	hasPut := rights[contractid.Put]
	switch {
	case hasCall && hasPut:
		return "C/P"
	case hasCall:
		return string(contractid.Call)
	case hasPut:
		return string(contractid.Put)
	default:
		return ""
	}
}

func sortedFloatKeys(m map[float64]bool) []float64 {
	out := make([]float64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}
