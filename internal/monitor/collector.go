package monitor

import (
	"context"

	"github.com/slopbox/controlplane/internal/store"
)

// Totals is a provider's reported cumulative resource usage for one VPS
// (spec.md §4.4 "Pluggability": "Vps → {bandwidth_bytes_total,
// cpu_ms_total, memory_mb_seconds_total}").
type Totals struct {
	BandwidthBytesTotal  int64
	CPUMsTotal           int64
	MemoryMBSecondsTotal int64
}

// MetricsCollector abstracts the provider-specific metrics API call the
// monitor polls every tick (spec.md §4.4 "Pluggability").
type MetricsCollector interface {
	Collect(ctx context.Context, vps store.Vps) (Totals, error)
}

// StubCollector echoes the VPS row's existing cumulative totals, producing
// a zero delta every tick. It exists for bootstrap and testing where no
// live provider metrics endpoint is wired (spec.md §4.4: "A stub collector
// that echoes the existing DB totals must exist for testing and for
// bootstrap").
type StubCollector struct{}

func (StubCollector) Collect(_ context.Context, vps store.Vps) (Totals, error) {
	return Totals{
		BandwidthBytesTotal:  vps.BandwidthTotal,
		CPUMsTotal:           vps.CPUMsTotal,
		MemoryMBSecondsTotal: vps.MemMBSecTotal,
	}, nil
}
