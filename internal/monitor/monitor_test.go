package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slopbox/controlplane/internal/billing"
	"github.com/slopbox/controlplane/internal/store"
)

func TestClampZeroNeverReturnsNegative(t *testing.T) {
	assert.Equal(t, int64(0), clampZero(-5))
	assert.Equal(t, int64(0), clampZero(0))
	assert.Equal(t, int64(42), clampZero(42))
}

func TestStubCollectorEchoesCumulativeTotals(t *testing.T) {
	vps := store.Vps{BandwidthTotal: 100, CPUMsTotal: 200, MemMBSecTotal: 300}

	totals, err := StubCollector{}.Collect(context.Background(), vps)

	assert.NoError(t, err)
	assert.Equal(t, Totals{BandwidthBytesTotal: 100, CPUMsTotal: 200, MemoryMBSecondsTotal: 300}, totals)
}

func TestOffendingResourcePrefersBandwidthThenCPU(t *testing.T) {
	assert.Equal(t, "bandwidth", offendingResource(billing.OverResource{Bandwidth: true, CPU: true, Memory: true}))
	assert.Equal(t, "cpu", offendingResource(billing.OverResource{CPU: true, Memory: true}))
	assert.Equal(t, "memory", offendingResource(billing.OverResource{Memory: true}))
}

func TestAggregateAndCapValueSelectMatchingAxis(t *testing.T) {
	agg := store.AggregateUsage{BandwidthBytes: 1, CPUUsedMs: 2, MemoryUsedMBSeconds: 3}
	plan := &store.Plan{MaxBandwidthBytes: 10, MaxCPUMillisecondsMonth: 20, MaxMemoryMBSeconds: 30}

	assert.Equal(t, int64(1), aggregateValue(agg, "bandwidth"))
	assert.Equal(t, int64(2), aggregateValue(agg, "cpu"))
	assert.Equal(t, int64(3), aggregateValue(agg, "memory"))

	assert.Equal(t, int64(10), capValue(plan, "bandwidth"))
	assert.Equal(t, int64(20), capValue(plan, "cpu"))
	assert.Equal(t, int64(30), capValue(plan, "memory"))
}
