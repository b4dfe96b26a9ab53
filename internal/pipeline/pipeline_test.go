package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdesk/optionflow/internal/bus"
	"github.com/flowdesk/optionflow/internal/classifier"
	"github.com/flowdesk/optionflow/internal/config"
	"github.com/flowdesk/optionflow/internal/darkflow"
	"github.com/flowdesk/optionflow/internal/metrics"
	"github.com/flowdesk/optionflow/internal/model"
	"github.com/flowdesk/optionflow/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		ClusterWindowMs:     500,
		OptionNBBOMaxAgeMs:  2000,
		EquityQuoteMaxAgeMs: 2000,
		RollingWindowSize:   100,
		RollingWindowTTL:    24 * time.Hour,
		Classifier:          classifier.Default(),
		Dark:                darkflow.Default(),
		DeliverPolicy:       bus.DeliverNew,
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config) (*Pipeline, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := New(cfg, bus.NewMemoryBus(nil), s, m, nil)
	return p, s
}

type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) Insert(ctx context.Context, table string, row store.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("transient store error")
	}
	return nil
}

func TestPersistRetriesThenSucceeds(t *testing.T) {
	fs := &flakyStore{failures: 2}
	reg := prometheus.NewRegistry()
	p := New(testConfig(), bus.NewMemoryBus(nil), fs, metrics.New(reg), nil)

	ok := p.persist(context.Background(), store.TableFlowPackets, model.FlowPacket{})

	assert.True(t, ok)
	assert.Equal(t, 3, fs.calls)
}

func TestPersistExhaustsRetriesAndRecordsFailure(t *testing.T) {
	fs := &flakyStore{failures: 99}
	reg := prometheus.NewRegistry()
	p := New(testConfig(), bus.NewMemoryBus(nil), fs, metrics.New(reg), nil)

	ok := p.persist(context.Background(), store.TableFlowPackets, model.FlowPacket{})

	assert.False(t, ok)
	assert.Equal(t, retryAttempts, fs.calls)
}

func TestHandleOptionPrintEmitsFlowPacketOnFlush(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterWindowMs = 100
	p, s := newTestPipeline(t, cfg)
	ctx := context.Background()

	p.handleOptionPrint(ctx, model.OptionPrint{
		Envelope:         model.Envelope{SourceTS: 1000, Seq: 1, TraceID: "t1"},
		TS:               1000,
		OptionContractID: "AAA-2025-03-21-100-C",
		Price:            5,
		Size:             10,
	})
	rows, err := s.Latest(ctx, store.TableFlowPackets, 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "cluster window still open, nothing should have flushed yet")

	p.handleOptionPrint(ctx, model.OptionPrint{
		Envelope:         model.Envelope{SourceTS: 2000, Seq: 2, TraceID: "t2"},
		TS:               2000,
		OptionContractID: "BBB-2025-03-21-50-C",
		Price:            1,
		Size:             1,
	})

	rows, err = s.Latest(ctx, store.TableFlowPackets, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	packet := rows[0].(model.FlowPacket)
	assert.Equal(t, model.PacketKindContract, packet.Kind)
	assert.Equal(t, []string{"t1"}, packet.Members)
}

func TestEmitClusterDetectsStraddleStructure(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterWindowMs = 100
	p, s := newTestPipeline(t, cfg)
	ctx := context.Background()

	callID := "AAA-2025-03-21-100-C"
	putID := "AAA-2025-03-21-100-P"
	unrelatedID := "BBB-2025-03-21-50-C"

	p.handleOptionPrint(ctx, model.OptionPrint{
		Envelope: model.Envelope{SourceTS: 1000, Seq: 1, TraceID: "t-call"},
		TS: 1000, OptionContractID: callID, Price: 5, Size: 10,
	})
	p.handleOptionPrint(ctx, model.OptionPrint{
		Envelope: model.Envelope{SourceTS: 1050, Seq: 2, TraceID: "t-put"},
		TS: 1050, OptionContractID: putID, Price: 4, Size: 12,
	})
	p.handleOptionPrint(ctx, model.OptionPrint{
		Envelope: model.Envelope{SourceTS: 2000, Seq: 3, TraceID: "t-unrelated"},
		TS: 2000, OptionContractID: unrelatedID, Price: 1, Size: 1,
	})

	rows, err := s.Latest(ctx, store.TableFlowPackets, 10)
	require.NoError(t, err)

	var structureCount, contractCount int
	for _, r := range rows {
		packet := r.(model.FlowPacket)
		if packet.Kind == model.PacketKindStructure {
			structureCount++
			assert.Equal(t, "straddle", packet.Features["structure_type"])
			assert.ElementsMatch(t, []string{"t-call", "t-put"}, packet.Members)
		} else {
			contractCount++
		}
	}
	assert.Equal(t, 1, structureCount)
	assert.Equal(t, 2, contractCount)
}

func TestHandleEquityPrintPersistsJoinAndDarkEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Dark.MinBlockSize = 100
	cfg.Dark.MaxSpreadPct = 1.0
	p, s := newTestPipeline(t, cfg)
	ctx := context.Background()

	p.equityQuotes.Update(model.EquityQuote{
		Envelope:     model.Envelope{SourceTS: 900, Seq: 1},
		TS:           900,
		UnderlyingID: "AAA",
		Bid:          99,
		Ask:          101,
	})

	p.handleEquityPrint(ctx, model.EquityPrint{
		Envelope:        model.Envelope{SourceTS: 1000, Seq: 2, TraceID: "eq-1"},
		TS:              1000,
		UnderlyingID:    "AAA",
		Price:           100,
		Size:            200,
		OffExchangeFlag: true,
	})

	joinRows, err := s.Latest(ctx, store.TableEquityPrints, 10)
	require.NoError(t, err)
	require.Len(t, joinRows, 1)

	darkRows, err := s.Latest(ctx, store.TableInferredDark, 10)
	require.NoError(t, err)
	require.Len(t, darkRows, 1)
	ev := darkRows[0].(model.InferredDark)
	assert.Equal(t, model.DarkAbsorbedBlock, ev.Type)
}

func TestDrainFlushesLiveClustersOnShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterWindowMs = 1000
	p, s := newTestPipeline(t, cfg)
	ctx := context.Background()

	p.handleOptionPrint(ctx, model.OptionPrint{
		Envelope:         model.Envelope{SourceTS: 1000, Seq: 1, TraceID: "t-drain"},
		TS:               1000,
		OptionContractID: "AAA-2025-03-21-100-C",
		Price:            5,
		Size:             10,
	})

	rows, err := s.Latest(ctx, store.TableFlowPackets, 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "cluster should still be open before drain")

	p.drain(ctx)

	rows, err = s.Latest(ctx, store.TableFlowPackets, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
