package structure

import (
	"testing"

	"github.com/flowdesk/optionflow/internal/contractid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeStraddle(t *testing.T) {
	legs := []Leg{
		{ContractID: "AAA-2025-03-21-100-C", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Call, EndTS: 1000},
		{ContractID: "AAA-2025-03-21-100-P", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Put, EndTS: 1150},
	}
	s, ok := Summarize(legs, 1150, 500)
	require.True(t, ok)
	assert.Equal(t, Straddle, s.Type)
	assert.Equal(t, 2, s.Legs)
	assert.Equal(t, 1, s.Strikes)
	assert.Equal(t, "C/P", s.Rights)
}

func TestSummarizeStrangle(t *testing.T) {
	legs := []Leg{
		{ContractID: "C1", Root: "AAA", Expiry: "2025-03-21", Strike: 95, Right: contractid.Put, EndTS: 1000},
		{ContractID: "C2", Root: "AAA", Expiry: "2025-03-21", Strike: 105, Right: contractid.Call, EndTS: 1000},
	}
	s, ok := Summarize(legs, 1000, 500)
	require.True(t, ok)
	assert.Equal(t, Strangle, s.Type)
	assert.Equal(t, 10.0, s.StrikeSpan)
}

func TestSummarizeVertical(t *testing.T) {
	legs := []Leg{
		{ContractID: "C1", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Call, EndTS: 1000},
		{ContractID: "C2", Root: "AAA", Expiry: "2025-03-21", Strike: 105, Right: contractid.Call, EndTS: 1000},
	}
	s, ok := Summarize(legs, 1000, 500)
	require.True(t, ok)
	assert.Equal(t, Vertical, s.Type)
}

func TestSummarizeLadder(t *testing.T) {
	legs := []Leg{
		{ContractID: "C1", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Call, EndTS: 1000},
		{ContractID: "C2", Root: "AAA", Expiry: "2025-03-21", Strike: 105, Right: contractid.Call, EndTS: 1000},
		{ContractID: "C3", Root: "AAA", Expiry: "2025-03-21", Strike: 110, Right: contractid.Call, EndTS: 1000},
	}
	s, ok := Summarize(legs, 1000, 500)
	require.True(t, ok)
	assert.Equal(t, Ladder, s.Type)
	assert.Equal(t, 3, s.Strikes)
}

func TestSummarizeRoll(t *testing.T) {
	legs := []Leg{
		{ContractID: "C1", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Call, EndTS: 1000},
		{ContractID: "C2", Root: "AAA", Expiry: "2025-04-18", Strike: 110, Right: contractid.Call, EndTS: 1000},
	}
	s, ok := Summarize(legs, 1000, 500)
	require.True(t, ok)
	assert.Equal(t, Roll, s.Type)
	assert.Equal(t, "2025-03-21", s.FromExpiry)
	assert.Equal(t, "2025-04-18", s.ToExpiry)
	assert.Equal(t, 10.0, s.StrikeDelta)
}

func TestSummarizeMultiLeg(t *testing.T) {
	legs := []Leg{
		{ContractID: "C1", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Call, EndTS: 1000},
		{ContractID: "C2", Root: "AAA", Expiry: "2025-04-18", Strike: 110, Right: contractid.Put, EndTS: 1000},
	}
	s, ok := Summarize(legs, 1000, 500)
	require.True(t, ok)
	assert.Equal(t, MultiLeg, s.Type)
}

func TestSummarizeOutsideWindowExcluded(t *testing.T) {
	legs := []Leg{
		{ContractID: "C1", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Call, EndTS: 1000},
		{ContractID: "C2", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Put, EndTS: 5000},
	}
	_, ok := Summarize(legs, 1000, 500)
	assert.False(t, ok, "the put leg is 4000ms away, outside the 500ms window")
}

func TestRegistryCandidateLegs(t *testing.T) {
	r := NewRegistry(20)
	r.Record(Leg{ContractID: "C1", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Call, EndTS: 1000})

	anchor := Leg{ContractID: "C2", Root: "AAA", Expiry: "2025-03-21", Strike: 100, Right: contractid.Put, EndTS: 1150}
	candidates := r.CandidateLegs("AAA", anchor, 1150, 500)
	require.Len(t, candidates, 2)

	s, ok := Summarize(candidates, 1150, 500)
	require.True(t, ok)
	assert.Equal(t, Straddle, s.Type)
}

func TestRegistryBoundedSize(t *testing.T) {
	r := NewRegistry(2)
	for i := 0; i < 5; i++ {
		r.Record(Leg{ContractID: "x", Root: "AAA", EndTS: int64(i)})
	}
	assert.LessOrEqual(t, len(r.byRoot["AAA"]), 2)
}
