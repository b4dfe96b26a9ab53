package cluster

import (
	"testing"

	"github.com/flowdesk/optionflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aa(_ float64) model.Placement { return model.PlacementAA }

func print(contractID string, ts int64, price, size float64) model.OptionPrint {
	return model.OptionPrint{
		Envelope:         model.Envelope{SourceTS: ts, IngestTS: ts + 1, Seq: ts, TraceID: "t"},
		TS:               ts,
		OptionContractID: contractID,
		Price:            price,
		Size:             size,
	}
}

func TestIngestAccumulatesWithinWindow(t *testing.T) {
	e := New(1000)
	flushed := e.Ingest(print("C1", 0, 1.0, 10), aa)
	assert.Empty(t, flushed)
	flushed = e.Ingest(print("C1", 500, 1.5, 20), aa)
	assert.Empty(t, flushed)

	c := e.open["C1"]
	require.NotNil(t, c)
	assert.Equal(t, int64(0), c.StartTS)
	assert.Equal(t, int64(500), c.EndTS)
	assert.Equal(t, 30.0, c.TotalSize)
	assert.Equal(t, 1.0*10+1.5*20, c.TotalPremium)
	assert.Equal(t, 1.0, c.FirstPrice)
	assert.Equal(t, 1.5, c.LastPrice)
	assert.Equal(t, []string{"t", "t"}, c.Members)
	assert.Equal(t, 2, c.Placements.Total())
}

func TestIngestFlushesOtherSilentContracts(t *testing.T) {
	e := New(1000)
	e.Ingest(print("C1", 0, 1.0, 10), aa)

	flushed := e.Ingest(print("C2", 2000, 2.0, 5), aa)
	require.Len(t, flushed, 1)
	assert.Equal(t, "C1", flushed[0].Cluster.ContractID)
	assert.Less(t, flushed[0].Cluster.EndTS, int64(2000))

	_, stillOpen := e.open["C1"]
	assert.False(t, stillOpen)
	_, c2Open := e.open["C2"]
	assert.True(t, c2Open)
}

func TestIngestRestartsStaleClusterForSameContract(t *testing.T) {
	e := New(1000)
	e.Ingest(print("C1", 0, 1.0, 10), aa)
	flushed := e.Ingest(print("C1", 2000, 2.0, 5), aa)

	require.Len(t, flushed, 1)
	assert.Equal(t, int64(0), flushed[0].Cluster.StartTS)
	assert.Equal(t, int64(0), flushed[0].Cluster.EndTS)

	c := e.open["C1"]
	require.NotNil(t, c)
	assert.Equal(t, int64(2000), c.StartTS)
	assert.Equal(t, int64(2000), c.EndTS)
	assert.Equal(t, 5.0, c.TotalSize)
	assert.Equal(t, []string{"t"}, c.Members)
}

func TestFlushAllDrainsInContractOrder(t *testing.T) {
	e := New(1000)
	e.Ingest(print("B", 0, 1.0, 1), aa)
	e.Ingest(print("A", 0, 1.0, 1), aa)
	e.Ingest(print("C", 0, 1.0, 1), aa)

	flushed := e.FlushAll()
	require.Len(t, flushed, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{
		flushed[0].Cluster.ContractID,
		flushed[1].Cluster.ContractID,
		flushed[2].Cluster.ContractID,
	})
	assert.Empty(t, e.open)
}

func TestFlushMissingContractReturnsFalse(t *testing.T) {
	e := New(1000)
	_, ok := e.Flush("nope")
	assert.False(t, ok)
}

func TestPlacementCountsTotalMatchesMemberCount(t *testing.T) {
	e := New(1000)
	classify := func(price float64) model.Placement {
		if price > 1 {
			return model.PlacementAA
		}
		return model.PlacementBB
	}
	e.Ingest(print("C1", 0, 2.0, 1), classify)
	e.Ingest(print("C1", 10, 0.5, 1), classify)
	e.Ingest(print("C1", 20, 0.5, 1), classify)

	c := e.open["C1"]
	require.NotNil(t, c)
	assert.Equal(t, 3, c.Placements.Total())
	assert.Equal(t, 1, c.Placements.AA)
	assert.Equal(t, 2, c.Placements.BB)
	assert.Equal(t, len(c.Members), c.Placements.Total())
}
