package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slopbox/controlplane/internal/store"
)

func TestOverageCentsBoundaryScenario(t *testing.T) {
	plan := store.Plan{
		MaxCPUMillisecondsMonth: 100,
		PricePerCPUHourCents:    3600, // 1 cent per ms of overage
	}
	agg := store.AggregateUsage{CPUUsedMs: 150}

	cost := OverageCents(agg, plan)
	assert.Equal(t, int64(50), cost)
}

func TestOverageCentsWithinCapIsZero(t *testing.T) {
	plan := store.Plan{
		MaxBandwidthBytes:        1_000_000_000,
		PricePerGBBandwidthCents: 10,
	}
	agg := store.AggregateUsage{BandwidthBytes: 999_999_999}

	assert.Equal(t, int64(0), OverageCents(agg, plan))
}

func TestOverageCentsRoundsSubCentOverageUp(t *testing.T) {
	plan := store.Plan{
		MaxBandwidthBytes:        1_000_000_000,
		PricePerGBBandwidthCents: 10,
	}
	agg := store.AggregateUsage{BandwidthBytes: 1_000_000_001}

	cost := OverageCents(agg, plan)
	assert.Equal(t, int64(1), cost, "a single byte over cap must never price as free")
}

func TestOverDetectsEachAxisIndependently(t *testing.T) {
	plan := store.Plan{MaxBandwidthBytes: 100, MaxCPUMillisecondsMonth: 100, MaxMemoryMBSeconds: 100}
	agg := store.AggregateUsage{BandwidthBytes: 101, CPUUsedMs: 100, MemoryUsedMBSeconds: 50}

	over := Over(agg, plan)
	assert.True(t, over.Bandwidth)
	assert.False(t, over.CPU)
	assert.False(t, over.Memory)
	assert.True(t, over.Any())
}
