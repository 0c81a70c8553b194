package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()

	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestDispatchMetrics(t *testing.T) {
	before := value(t, batchesDispatched.WithLabelValues("test-chain", "nft", "error"))

	BatchDispatchedInc("test-chain", "nft", false)
	BatchDispatchedInc("test-chain", "nft", true)
	RecordsDispatchedInc("test-chain", "nft", 3)
	LastDispatchedBlockSet("test-chain", "nft", 42)

	require.InDelta(t, before+1, value(t, batchesDispatched.WithLabelValues("test-chain", "nft", "error")), 0)
	require.InDelta(t, 3, value(t, recordsDispatched.WithLabelValues("test-chain", "nft")), 0)
	require.InDelta(t, 42, value(t, LastDispatchedBlock.WithLabelValues("test-chain", "nft")), 0)
}

func TestComponentHealthSet(t *testing.T) {
	ComponentHealthSet("orchestrator", true)
	require.InDelta(t, 1, value(t, ComponentHealth.WithLabelValues("orchestrator")), 0)

	ComponentHealthSet("orchestrator", false)
	require.InDelta(t, 0, value(t, ComponentHealth.WithLabelValues("orchestrator")), 0)
}

func TestUpdateSystemMetrics(t *testing.T) {
	UpdateSystemMetrics()

	require.Positive(t, value(t, Goroutines))
	require.Positive(t, value(t, MemoryUsage.WithLabelValues("sys")))
}
