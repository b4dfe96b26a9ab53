package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labelValue string) float64 {
	t.Helper()
	var m dto.Metric
	c, err := vec.GetMetricWithLabelValues(labelValue)
	require.NoError(t, err)
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestPacketEmittedIncrementsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PacketEmitted("contract")
	m.PacketEmitted("contract")
	m.PacketEmitted("structure")

	assert.Equal(t, 2.0, counterValue(t, m.packetsEmitted, "contract"))
	assert.Equal(t, 1.0, counterValue(t, m.packetsEmitted, "structure"))
}

func TestAlertEmittedIncrementsBySeverity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AlertEmitted("high")
	assert.Equal(t, 1.0, counterValue(t, m.alertsEmitted, "high"))
	assert.Equal(t, 0.0, counterValue(t, m.alertsEmitted, "low"))
}

func TestPersistenceAndPublishFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PersistenceFailure("flow_packets")
	m.PublishFailure("alerts")
	m.BusOverflow("alerts")

	assert.Equal(t, 1.0, counterValue(t, m.persistenceFailures, "flow_packets"))
	assert.Equal(t, 1.0, counterValue(t, m.publishFailures, "alerts"))
	assert.Equal(t, 1.0, counterValue(t, m.busOverflows, "alerts"))
}
